package models

// Agent is an insurance agent customers can book or contact.
type Agent struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:100;not null" json:"name"`
	Email string `gorm:"size:120;uniqueIndex;not null" json:"email"`
	Phone string `gorm:"size:20" json:"phone"`
}
