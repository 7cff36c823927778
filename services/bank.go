package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Supported banks.
const (
	BankSparkasse    = "sparkasse"
	BankN26          = "n26"
	BankDeutscheBank = "deutsche_bank"
)

var (
	// ErrBankAuth is returned when no API key is configured for the bank.
	ErrBankAuth = errors.New("bank authentication required")
	// ErrUnsupportedBank is returned for bank names that match no integration.
	ErrUnsupportedBank = errors.New("unsupported bank")
)

var bankBaseURLs = map[string]string{
	BankSparkasse:    "https://api.sparkasse.de/v1",
	BankN26:          "https://api.tech26.de",
	BankDeutscheBank: "https://api.deutsche-bank.de/v1",
}

type Balance struct {
	Balance       float64 `json:"balance"`
	Currency      string  `json:"currency"`
	AccountNumber string  `json:"account_number"`
	Bank          string  `json:"bank"`
}

type TransferRequest struct {
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type TransferResult struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	FromAccount   string  `json:"from_account"`
	ToAccount     string  `json:"to_account"`
	Description   string  `json:"description"`
	Verified      bool    `json:"verified,omitempty"`
}

// BankGateway talks to a customer's bank. The shipped implementation is a stub that
// authenticates on the presence of an API key and never moves money.
type BankGateway interface {
	// Resolve maps a free-form bank name to a supported bank id.
	Resolve(bankName string) (string, error)
	Balance(ctx context.Context, bank, accountNumber string) (Balance, error)
	Initiate(ctx context.Context, bank string, req TransferRequest) (TransferResult, error)
	Verify(ctx context.Context, bank, transactionID string) (TransferResult, error)
}

// StubBankGateway keeps the bank integration surface without calling any bank.
type StubBankGateway struct {
	keys map[string]string
}

func NewStubBankGateway(keys map[string]string) *StubBankGateway {
	cp := make(map[string]string, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	return &StubBankGateway{keys: cp}
}

var _ BankGateway = (*StubBankGateway)(nil)

// ResolveBank matches by substring: "Sparkasse KölnBonn" is sparkasse, "DB Privatbank" is deutsche_bank.
func ResolveBank(bankName string) (string, error) {
	n := strings.ToLower(bankName)
	switch {
	case strings.Contains(n, "sparkasse"):
		return BankSparkasse, nil
	case strings.Contains(n, "n26"):
		return BankN26, nil
	case strings.Contains(n, "deutsche"), strings.Contains(n, "db"):
		return BankDeutscheBank, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBank, bankName)
}

// BankBaseURL returns the API root of a supported bank.
func BankBaseURL(bank string) string { return bankBaseURLs[bank] }

func (g *StubBankGateway) Resolve(bankName string) (string, error) {
	return ResolveBank(bankName)
}

func (g *StubBankGateway) authenticate(bank string) error {
	if _, ok := bankBaseURLs[bank]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedBank, bank)
	}
	if g.keys[bank] == "" {
		return ErrBankAuth
	}
	return nil
}

func (g *StubBankGateway) Balance(ctx context.Context, bank, accountNumber string) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	if err := g.authenticate(bank); err != nil {
		return Balance{}, err
	}
	return Balance{Balance: 0, Currency: "EUR", AccountNumber: accountNumber, Bank: bank}, nil
}

func (g *StubBankGateway) Initiate(ctx context.Context, bank string, req TransferRequest) (TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return TransferResult{}, err
	}
	if err := g.authenticate(bank); err != nil {
		return TransferResult{}, err
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return TransferResult{}, fmt.Errorf("transaction id: %w", err)
	}
	return TransferResult{
		TransactionID: fmt.Sprintf("TXN-%s-%s", strings.ToUpper(bank), hex.EncodeToString(b[:])),
		Status:        "pending",
		Amount:        req.Amount,
		FromAccount:   req.FromAccount,
		ToAccount:     req.ToAccount,
		Description:   req.Description,
	}, nil
}

func (g *StubBankGateway) Verify(ctx context.Context, bank, transactionID string) (TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return TransferResult{}, err
	}
	if err := g.authenticate(bank); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{TransactionID: transactionID, Status: "completed", Verified: true}, nil
}
