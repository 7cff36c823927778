package models

import "time"

// BankAccount links a customer to an account at a supported bank.
type BankAccount struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        uint   `gorm:"index;not null" json:"user_id"`
	BankName      string `gorm:"size:100;not null" json:"bank_name"`
	AccountNumber string `gorm:"size:50" json:"account_number"`
	IsConnected   bool   `gorm:"default:false" json:"is_connected"`
}

// BankTransaction records a payment initiated through the bank gateway.
type BankTransaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	BankName        string    `gorm:"size:100" json:"bank_name"`
	TransactionType string    `gorm:"size:50" json:"transaction_type"`
	Amount          float64   `json:"amount"`
	Currency        string    `gorm:"size:3;default:EUR" json:"currency"`
	Reference       string    `gorm:"size:64;index" json:"reference"`
	Status          string    `gorm:"size:20" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
