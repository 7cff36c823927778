package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/utils"
)

// anomalyWindow is how many recent transactions are checked for anomalies.
const anomalyWindow = 10

type BankController struct {
	db      *gorm.DB
	gateway services.BankGateway
	advisor ai.Advisor
}

func NewBankController(db *gorm.DB, gateway services.BankGateway, advisor ai.Advisor) *BankController {
	return &BankController{db: db, gateway: gateway, advisor: advisor}
}

func (b *BankController) Accounts(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var accounts []models.BankAccount
	if err := b.db.Where("user_id = ?", userID).Order("id ASC").Find(&accounts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to retrieve bank accounts")
		return
	}
	utils.Success(ctx, accounts)
}

// Connect links an account, updating the account number when the bank is already linked.
func (b *BankController) Connect(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req struct {
		BankName      string `json:"bank_name"`
		AccountNumber string `json:"account_number"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BankName) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40071, "bank_name is required")
		return
	}
	bank, err := b.gateway.Resolve(req.BankName)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "unsupported bank")
		return
	}
	accountNumber := utils.SanitizeText(req.AccountNumber, 50)

	var account models.BankAccount
	err = b.db.Where("user_id = ? AND bank_name = ?", userID, bank).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = models.BankAccount{UserID: userID, BankName: bank, AccountNumber: accountNumber, IsConnected: true}
		err = b.db.Create(&account).Error
	case err == nil:
		account.AccountNumber = accountNumber
		account.IsConnected = true
		err = b.db.Save(&account).Error
	}
	if err != nil {
		utils.Logger.Error("connect bank failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to connect bank account")
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "Bank account connected", account)
}

type transactionRequest struct {
	BankName        string  `json:"bank_name"`
	ToAccount       string  `json:"to_account"`
	Amount          float64 `json:"amount"`
	Description     string  `json:"description"`
	TransactionType string  `json:"transaction_type"`
}

// Transaction initiates a payment from a connected account and screens recent activity.
func (b *BankController) Transaction(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var req transactionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40073, "invalid request payload")
		return
	}
	if req.Amount <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40072, "amount must be positive")
		return
	}
	bank, err := b.gateway.Resolve(req.BankName)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "unsupported bank")
		return
	}

	var account models.BankAccount
	if err := b.db.Where("user_id = ? AND bank_name = ? AND is_connected = ?", userID, bank, true).First(&account).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40470, "bank account not connected")
		return
	}

	result, err := b.gateway.Initiate(ctx.Request.Context(), bank, services.TransferRequest{
		FromAccount: account.AccountNumber,
		ToAccount:   utils.SanitizeText(req.ToAccount, 50),
		Amount:      req.Amount,
		Description: utils.SanitizeText(req.Description, 255),
	})
	if err != nil {
		respondBankError(ctx, err)
		return
	}

	txType := strings.TrimSpace(req.TransactionType)
	if txType == "" {
		txType = "payment"
	}
	record := models.BankTransaction{
		UserID:          userID,
		BankName:        bank,
		TransactionType: utils.SanitizeText(txType, 50),
		Amount:          req.Amount,
		Currency:        "EUR",
		Reference:       result.TransactionID,
		Status:          result.Status,
	}
	if err := b.db.Create(&record).Error; err != nil {
		utils.Logger.Error("record bank transaction failed", zap.String("reference", result.TransactionID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to record transaction")
		return
	}

	var recent []models.BankTransaction
	if err := b.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Limit(anomalyWindow).Find(&recent).Error; err != nil {
		utils.Logger.Warn("load recent transactions failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	history := make([]ai.Transaction, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		t := recent[i]
		history = append(history, ai.Transaction{Bank: t.BankName, Type: t.TransactionType, Amount: t.Amount, Currency: t.Currency, CreatedAt: t.CreatedAt})
	}
	anomaly := b.advisor.DetectTransactionAnomaly(userContext(ctx, userID), history)
	if anomaly.IsAnomaly {
		utils.Logger.Warn("transaction flagged", zap.Uint("user_id", userID), zap.String("reference", record.Reference),
			zap.String("risk_level", anomaly.RiskLevel))
	}

	utils.Created(ctx, "Transaction initiated", gin.H{
		"transaction": result,
		"record":      record,
		"anomaly":     anomaly,
	})
}

// Verify asks the bank for the final state of a recorded transaction.
func (b *BankController) Verify(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	var record models.BankTransaction
	if err := b.db.Where("user_id = ? AND reference = ?", userID, ctx.Param("reference")).First(&record).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40471, "transaction not found")
		return
	}
	result, err := b.gateway.Verify(ctx.Request.Context(), record.BankName, record.Reference)
	if err != nil {
		respondBankError(ctx, err)
		return
	}
	if result.Status != record.Status {
		if err := b.db.Model(&record).Update("status", result.Status).Error; err != nil {
			utils.Logger.Warn("update transaction status failed", zap.String("reference", record.Reference), zap.Error(err))
		}
	}
	utils.Success(ctx, result)
}

func (b *BankController) Balance(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40074, "invalid account id")
		return
	}
	var account models.BankAccount
	if err := b.db.Where("id = ? AND user_id = ?", id, userID).First(&account).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40472, "bank account not found")
		return
	}
	balance, err := b.gateway.Balance(ctx.Request.Context(), account.BankName, account.AccountNumber)
	if err != nil {
		respondBankError(ctx, err)
		return
	}
	utils.Success(ctx, balance)
}

func respondBankError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrBankAuth):
		utils.Error(ctx, http.StatusServiceUnavailable, 50370, "bank integration is not configured")
	case errors.Is(err, services.ErrUnsupportedBank):
		utils.Error(ctx, http.StatusBadRequest, 40070, "unsupported bank")
	default:
		utils.Logger.Error("bank gateway failed", zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50270, "bank request failed")
	}
}
