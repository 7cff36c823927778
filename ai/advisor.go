// Package ai wraps the language model behind the portal's advisory features.
//
// Every operation returns a typed result and never an error. When the model is not
// configured, times out or fails, the operation returns a fixed fallback value and
// marks it with UsedFallback. When the model answers but the answer cannot be parsed,
// a best-effort value is synthesized from the raw text and marked Synthesized.
package ai

import (
	"context"
	"time"
)

// Advisor is the capability the rest of the portal depends on.
type Advisor interface {
	// Available reports whether a model is configured. It performs no I/O.
	Available() bool
	ComparePolicies(ctx context.Context, in PolicyInput) PolicyComparison
	TagDocument(ctx context.Context, filename, excerpt string) DocumentTag
	AnalyzeClaimDamage(ctx context.Context, in ClaimInput) DamageAnalysis
	RecommendPolicies(ctx context.Context, profile CustomerProfile) Recommendations
	SuggestAppointmentTimes(ctx context.Context, appointmentType string) AppointmentSuggestions
	DetectTransactionAnomaly(ctx context.Context, txs []Transaction) AnomalyReport
	ValidateUserData(ctx context.Context, data UserData) DataValidation
	Chat(ctx context.Context, message string, history []ChatMessage) ChatReply
}

// Outcome flags shared by every result.
type Outcome struct {
	// UsedFallback is set when the fixed fallback was returned (no model, timeout, provider error).
	UsedFallback bool `json:"used_fallback"`
	// Synthesized is set when the model answered but its output was not the expected JSON.
	Synthesized bool `json:"synthesized"`
}

// PolicyInput describes an external policy to compare against the portfolio.
type PolicyInput struct {
	PolicyType       string
	Coverage         string
	Premium          string
	InsuranceCompany string
}

type SimilarProduct struct {
	Name       string `json:"name"`
	Coverage   string `json:"coverage"`
	Premium    string `json:"premium"`
	MatchScore int    `json:"match_score"`
	AIAnalysis string `json:"ai_analysis,omitempty"`
}

type PolicyComparison struct {
	SimilarProducts []SimilarProduct `json:"similar_products"`
	Recommendations []string         `json:"recommendations"`
	Outcome
}

// Valid document tags. Anything else the model returns becomes TagGeneral.
const (
	TagPolicy           = "policy"
	TagClaim            = "claim"
	TagInvoice          = "invoice"
	TagReport           = "report"
	TagIdentity         = "identity"
	TagMedical          = "medical"
	TagProofOfOwnership = "proof_of_ownership"
	TagRepairInvoice    = "repair_invoice"
	TagPoliceReport     = "police_report"
	TagGeneral          = "general"
)

var validTags = map[string]bool{
	TagPolicy: true, TagClaim: true, TagInvoice: true, TagReport: true, TagIdentity: true,
	TagMedical: true, TagProofOfOwnership: true, TagRepairInvoice: true, TagPoliceReport: true, TagGeneral: true,
}

// IsValidTag reports whether tag belongs to the document classification set.
func IsValidTag(tag string) bool { return validTags[tag] }

type DocumentTag struct {
	Tag string `json:"tag"`
	Outcome
}

// ClaimInput is what the damage triage sees of a claim.
type ClaimInput struct {
	Description      string
	ImageDescription string
}

type DamageAnalysis struct {
	DamageType           string  `json:"damage_type"`
	Severity             string  `json:"severity"`
	EstimatedValueMin    float64 `json:"estimated_value_min"`
	EstimatedValueMax    float64 `json:"estimated_value_max"`
	Priority             string  `json:"priority"`
	SuggestedDescription string  `json:"suggested_description"`
	Outcome
}

// CustomerProfile summarises a customer for product recommendations.
type CustomerProfile struct {
	Policies    []string
	ClaimsCount int
	Location    string
	Age         string
}

type PolicyRecommendation struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Reason           string `json:"reason"`
	EstimatedPremium string `json:"estimated_premium"`
}

type Recommendations struct {
	Items []PolicyRecommendation `json:"items"`
	Outcome
}

type AppointmentSuggestions struct {
	Times []string `json:"times"`
	Outcome
}

// Transaction is one bank movement fed into anomaly detection.
type Transaction struct {
	Bank      string    `json:"bank"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type AnomalyReport struct {
	IsAnomaly bool   `json:"is_anomaly"`
	Reason    string `json:"reason"`
	RiskLevel string `json:"risk_level"`
	Outcome
}

// UserData is the contact data checked for inconsistencies on profile updates.
type UserData struct {
	FirstName             string
	LastName              string
	Address               string
	CorrespondenceAddress string
	Phone                 string
	Email                 string
}

type DataValidation struct {
	IsValid         bool     `json:"is_valid"`
	Inconsistencies []string `json:"inconsistencies"`
	RequiresReauth  bool     `json:"requires_reauth"`
	Outcome
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatReply struct {
	Text string `json:"text"`
	Outcome
}
