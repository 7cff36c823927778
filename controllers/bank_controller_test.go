package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/services"
	"github.com/swissaxa/portal/testutil"
)

func bankEnv(t *testing.T, keys map[string]string) *env {
	t.Helper()
	e := newEnv(t)
	b := NewBankController(e.db, services.NewStubBankGateway(keys), disabledAdvisor())
	e.router.GET("/bank/accounts", b.Accounts)
	e.router.POST("/bank/connect", b.Connect)
	e.router.POST("/bank/transactions", b.Transaction)
	e.router.POST("/bank/transactions/:reference/verify", b.Verify)
	e.router.GET("/bank/accounts/:id/balance", b.Balance)
	return e
}

func TestConnectBankIsUpsert(t *testing.T) {
	e := bankEnv(t, nil)
	user := testutil.CreateUser(t, e.db, "anna@example.com")

	w := e.doJSON(t, http.MethodPost, "/bank/connect", user.ID, map[string]string{"bank_name": "Sparkasse KölnBonn", "account_number": "DE001"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.doJSON(t, http.MethodPost, "/bank/connect", user.ID, map[string]string{"bank_name": "sparkasse", "account_number": "DE002"})
	require.Equal(t, http.StatusOK, w.Code)

	var accounts []models.BankAccount
	require.NoError(t, e.db.Where("user_id = ?", user.ID).Find(&accounts).Error)
	require.Len(t, accounts, 1)
	assert.Equal(t, services.BankSparkasse, accounts[0].BankName)
	assert.Equal(t, "DE002", accounts[0].AccountNumber)
	assert.True(t, accounts[0].IsConnected)

	w = e.doJSON(t, http.MethodPost, "/bank/connect", user.ID, map[string]string{"bank_name": "Volksbank"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40070, decode(t, w).Code)
}

func TestBankTransactionFlow(t *testing.T) {
	e := bankEnv(t, map[string]string{services.BankN26: "n26-key"})
	user := testutil.CreateUser(t, e.db, "ben@example.com")

	w := e.doJSON(t, http.MethodPost, "/bank/transactions", user.ID, map[string]any{"bank_name": "N26", "amount": 50})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40470, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/bank/connect", user.ID, map[string]string{"bank_name": "N26", "account_number": "DE123"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.doJSON(t, http.MethodPost, "/bank/transactions", user.ID, map[string]any{"bank_name": "N26", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40072, decode(t, w).Code)

	w = e.doJSON(t, http.MethodPost, "/bank/transactions", user.ID, map[string]any{
		"bank_name": "N26", "amount": 120.5, "to_account": "DE999", "description": "Premium",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Transaction services.TransferResult `json:"transaction"`
		Anomaly     struct {
			IsAnomaly bool   `json:"is_anomaly"`
			RiskLevel string `json:"risk_level"`
		} `json:"anomaly"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.True(t, strings.HasPrefix(data.Transaction.TransactionID, "TXN-N26-"))
	assert.Equal(t, "pending", data.Transaction.Status)
	assert.False(t, data.Anomaly.IsAnomaly)
	assert.Equal(t, "low", data.Anomaly.RiskLevel)

	var record models.BankTransaction
	require.NoError(t, e.db.Where("reference = ?", data.Transaction.TransactionID).First(&record).Error)
	assert.Equal(t, user.ID, record.UserID)
	assert.InDelta(t, 120.5, record.Amount, 1e-9)

	w = e.do(t, http.MethodPost, "/bank/transactions/"+record.Reference+"/verify", user.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, e.db.First(&record, record.ID).Error)
	assert.Equal(t, "completed", record.Status)
}

func TestBankWithoutCredentialsIsUnavailable(t *testing.T) {
	e := bankEnv(t, nil)
	user := testutil.CreateUser(t, e.db, "clara@example.com")
	account := models.BankAccount{UserID: user.ID, BankName: services.BankDeutscheBank, AccountNumber: "DE1", IsConnected: true}
	require.NoError(t, e.db.Create(&account).Error)

	w := e.do(t, http.MethodGet, fmt.Sprintf("/bank/accounts/%d/balance", account.ID), user.ID, nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 50370, decode(t, w).Code)

	other := testutil.CreateUser(t, e.db, "dora@example.com")
	w = e.do(t, http.MethodGet, fmt.Sprintf("/bank/accounts/%d/balance", account.ID), other.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
