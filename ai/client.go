package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/swissaxa/portal/config"
	"github.com/swissaxa/portal/metrics"
)

// Operation names, used as the usage-log feature and the metrics label.
const (
	OpComparePolicies    = "compare_policies"
	OpTagDocument        = "tag_document"
	OpAnalyzeClaimDamage = "analyze_claim_damage"
	OpRecommendPolicies  = "recommend_policies"
	OpSuggestAppointment = "suggest_appointment_times"
	OpDetectAnomaly      = "detect_transaction_anomaly"
	OpValidateUserData   = "validate_user_data"
	OpChat               = "chat"
)

const (
	defaultTimeout    = 20 * time.Second
	chatHistoryWindow = 5
	anomalyWindow     = 10
	minTransactions   = 3
	excerptLimit      = 1500
)

// Usage describes one network call for cost accounting.
type Usage struct {
	Feature    string
	UserID     *uint
	TokensUsed int64
	Success    bool
	Error      string
}

// UsageRecorder persists Usage entries. Implementations must not block for long.
type UsageRecorder interface {
	RecordAIUsage(ctx context.Context, u Usage)
}

type userKey struct{}

// WithUserID attaches the acting user to ctx so usage entries can be attributed.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userIDFrom(ctx context.Context) *uint {
	if id, ok := ctx.Value(userKey{}).(uint); ok {
		return &id
	}
	return nil
}

// Client implements Advisor on top of a Completer. A Client without a completer
// answers every operation with its fallback.
type Client struct {
	completer Completer
	timeout   time.Duration
	recorder  UsageRecorder
	logger    *zap.Logger
}

type Option func(*Client)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRecorder(r UsageRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds the advisor from configuration. Without an API key the client is disabled.
func NewClient(cfg config.AppConfig, recorder UsageRecorder, logger *zap.Logger) *Client {
	var completer Completer
	if cfg.AIEnabled() {
		completer = NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.AIModel)
	}
	return NewClientWithCompleter(completer,
		WithTimeout(time.Duration(cfg.AITimeoutSeconds)*time.Second),
		WithRecorder(recorder),
		WithLogger(logger),
	)
}

// NewClientWithCompleter builds a client around completer, which may be nil.
func NewClientWithCompleter(completer Completer, opts ...Option) *Client {
	c := &Client{
		completer: completer,
		timeout:   defaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Advisor = (*Client)(nil)

func (c *Client) Available() bool {
	return c.completer != nil
}

// complete runs one model call under the client timeout and records usage.
// The bool is false when the call failed; the failure is already logged and counted.
func (c *Client) complete(ctx context.Context, op string, req Request) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.completer.Complete(callCtx, req)
	metrics.ObserveAILatency(op, time.Since(start))

	usage := Usage{Feature: op, UserID: userIDFrom(ctx), TokensUsed: res.TotalTokens, Success: err == nil}
	if err != nil {
		usage.Error = err.Error()
		c.logger.Warn("ai call failed, using fallback", zap.String("operation", op), zap.Error(err))
		metrics.RecordAICall(op, "error")
	}
	if c.recorder != nil {
		c.recorder.RecordAIUsage(ctx, usage)
	}
	return res.Text, err == nil
}

func (c *Client) unavailable(op string) {
	metrics.RecordAICall(op, "unavailable")
}

func (c *Client) answered(op string, synthesized bool) {
	if synthesized {
		c.logger.Debug("ai output was not the expected JSON", zap.String("operation", op))
		metrics.RecordAICall(op, "synthesized")
		return
	}
	metrics.RecordAICall(op, "success")
}

func messages(system, user string) []ChatMessage {
	return []ChatMessage{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func (c *Client) ComparePolicies(ctx context.Context, in PolicyInput) PolicyComparison {
	if !c.Available() {
		c.unavailable(OpComparePolicies)
		return comparisonFallback(in)
	}
	prompt := fmt.Sprintf(`Analyze this external insurance policy and compare it with SwissAxa insurance products:

Policy Type: %s
Coverage: %s
Premium: %s
Insurance Company: %s

Provide:
1. Similar SwissAxa products with match scores (0-100%%)
2. Key differences and advantages of SwissAxa products
3. Recommendations for the customer

Format as JSON with 'similar_products' (array of objects with name, coverage, premium, match_score) and 'recommendations' (array of strings).`,
		orUnknown(in.PolicyType), orUnknown(in.Coverage), orUnknown(in.Premium), orUnknown(in.InsuranceCompany))

	text, ok := c.complete(ctx, OpComparePolicies, Request{
		Messages:    messages("You are an insurance comparison expert. Provide detailed, accurate comparisons.", prompt),
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if !ok {
		return comparisonFallback(in)
	}

	res, ok := parseJSON(text)
	if !ok || !res.IsObject() {
		c.answered(OpComparePolicies, true)
		return synthesizedComparison(in, text)
	}
	out := PolicyComparison{SimilarProducts: []SimilarProduct{}, Recommendations: stringList(res.Get("recommendations"))}
	res.Get("similar_products").ForEach(func(_, p gjson.Result) bool {
		out.SimilarProducts = append(out.SimilarProducts, SimilarProduct{
			Name:       p.Get("name").String(),
			Coverage:   p.Get("coverage").String(),
			Premium:    p.Get("premium").String(),
			MatchScore: percent(p.Get("match_score")),
		})
		return true
	})
	c.answered(OpComparePolicies, false)
	return out
}

func (c *Client) TagDocument(ctx context.Context, filename, excerpt string) DocumentTag {
	if !c.Available() {
		c.unavailable(OpTagDocument)
		return DocumentTag{Tag: tagFromFilename(filename), Outcome: Outcome{UsedFallback: true}}
	}
	var b strings.Builder
	b.WriteString("Analyze this document and determine its type:\nFilename: ")
	b.WriteString(filename)
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		b.WriteString("\nContent excerpt:\n")
		b.WriteString(truncateRunes(excerpt, excerptLimit))
	}
	b.WriteString("\n\nClassify it as one of: policy, claim, invoice, report, identity, medical, proof_of_ownership, repair_invoice, police_report, or general.\n\nReturn only the classification word.")

	text, ok := c.complete(ctx, OpTagDocument, Request{
		Messages:    messages("You are a document classification expert. Classify documents accurately.", b.String()),
		Temperature: 0.3,
		MaxTokens:   50,
	})
	if !ok {
		return DocumentTag{Tag: TagGeneral, Outcome: Outcome{UsedFallback: true}}
	}

	tag := strings.ToLower(strings.Trim(stripFences(text), " \t\r\n.\"'`"))
	if !IsValidTag(tag) {
		c.answered(OpTagDocument, true)
		return DocumentTag{Tag: TagGeneral, Outcome: Outcome{Synthesized: true}}
	}
	c.answered(OpTagDocument, false)
	return DocumentTag{Tag: tag}
}

func (c *Client) AnalyzeClaimDamage(ctx context.Context, in ClaimInput) DamageAnalysis {
	if !c.Available() {
		c.unavailable(OpAnalyzeClaimDamage)
		return damageFallback(in)
	}
	desc := in.Description
	if strings.TrimSpace(desc) == "" {
		desc = "No description provided"
	}
	img := in.ImageDescription
	if strings.TrimSpace(img) == "" {
		img = "No image analysis available"
	}
	prompt := fmt.Sprintf(`Analyze this insurance claim:
Description: %s
Image Analysis: %s

Provide:
1. Damage type (e.g. Water Damage, Fire Damage, Theft, Collision, Vandalism, Natural Disaster, Other)
2. Severity (low, medium, high, critical)
3. Estimated claim value range (in EUR)
4. Priority (urgent, normal, low)
5. Suggested detailed description

Return as JSON with keys: damage_type, severity, estimated_value_min, estimated_value_max, priority, suggested_description`, desc, img)

	text, ok := c.complete(ctx, OpAnalyzeClaimDamage, Request{
		Messages:    messages("You are an insurance claims assessment expert. Analyze damage accurately.", prompt),
		Temperature: 0.5,
		MaxTokens:   500,
	})
	if !ok {
		return damageFallback(in)
	}

	res, ok := parseJSON(text)
	if !ok || !res.IsObject() {
		c.answered(OpAnalyzeClaimDamage, true)
		return synthesizedDamage(in, text)
	}
	out := DamageAnalysis{
		DamageType:           strings.TrimSpace(res.Get("damage_type").String()),
		Severity:             strings.ToLower(res.Get("severity").String()),
		EstimatedValueMin:    res.Get("estimated_value_min").Float(),
		EstimatedValueMax:    res.Get("estimated_value_max").Float(),
		Priority:             strings.ToLower(strings.TrimSpace(res.Get("priority").String())),
		SuggestedDescription: strings.TrimSpace(res.Get("suggested_description").String()),
	}
	if v := res.Get("estimated_value"); v.Exists() && out.EstimatedValueMax == 0 {
		out.EstimatedValueMin = v.Float()
		out.EstimatedValueMax = v.Float()
	}
	c.answered(OpAnalyzeClaimDamage, false)
	return out
}

func (c *Client) RecommendPolicies(ctx context.Context, profile CustomerProfile) Recommendations {
	if !c.Available() {
		c.unavailable(OpRecommendPolicies)
		return Recommendations{Items: []PolicyRecommendation{}, Outcome: Outcome{UsedFallback: true}}
	}
	policies := "none"
	if len(profile.Policies) > 0 {
		policies = strings.Join(profile.Policies, ", ")
	}
	prompt := fmt.Sprintf(`Based on this customer profile, recommend relevant insurance add-ons or policy upgrades:

Current Policies: %s
Claims History: %d claims
Location: %s
Age: %s

Suggest 3-5 relevant insurance products or add-ons with brief explanations.
Return as JSON array with: name, type, reason, estimated_premium`,
		policies, profile.ClaimsCount, orUnknown(profile.Location), orUnknown(profile.Age))

	text, ok := c.complete(ctx, OpRecommendPolicies, Request{
		Messages:    messages("You are an insurance advisor. Provide personalized recommendations.", prompt),
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if !ok {
		return Recommendations{Items: []PolicyRecommendation{}, Outcome: Outcome{UsedFallback: true}}
	}

	res, ok := parseJSON(text)
	if !ok || !(res.IsArray() || res.IsObject()) {
		c.answered(OpRecommendPolicies, true)
		return Recommendations{Items: []PolicyRecommendation{}, Outcome: Outcome{Synthesized: true}}
	}
	toItem := func(r gjson.Result) PolicyRecommendation {
		return PolicyRecommendation{
			Name:             r.Get("name").String(),
			Type:             r.Get("type").String(),
			Reason:           r.Get("reason").String(),
			EstimatedPremium: r.Get("estimated_premium").String(),
		}
	}
	items := []PolicyRecommendation{}
	if res.IsObject() {
		items = append(items, toItem(res))
	} else {
		res.ForEach(func(_, r gjson.Result) bool {
			if r.IsObject() {
				items = append(items, toItem(r))
			}
			return true
		})
	}
	c.answered(OpRecommendPolicies, false)
	return Recommendations{Items: items}
}

func (c *Client) SuggestAppointmentTimes(ctx context.Context, appointmentType string) AppointmentSuggestions {
	empty := []string{}
	if !c.Available() {
		c.unavailable(OpSuggestAppointment)
		return AppointmentSuggestions{Times: empty, Outcome: Outcome{UsedFallback: true}}
	}
	prompt := fmt.Sprintf(`Suggest 5 optimal appointment times for %s appointments, starting from %s.
Consider typical agent availability patterns and customer preferences.

Return as JSON array of suggested times in format: ["YYYY-MM-DD HH:MM", ...]`,
		orUnknown(appointmentType), time.Now().Format("2006-01-02"))

	text, ok := c.complete(ctx, OpSuggestAppointment, Request{
		Messages:    messages("You are a scheduling assistant. Suggest optimal appointment times.", prompt),
		Temperature: 0.5,
		MaxTokens:   200,
	})
	if !ok {
		return AppointmentSuggestions{Times: empty, Outcome: Outcome{UsedFallback: true}}
	}
	res, ok := parseJSON(text)
	if !ok || !res.IsArray() {
		c.answered(OpSuggestAppointment, true)
		return AppointmentSuggestions{Times: empty, Outcome: Outcome{Synthesized: true}}
	}
	c.answered(OpSuggestAppointment, false)
	return AppointmentSuggestions{Times: stringList(res)}
}

func (c *Client) DetectTransactionAnomaly(ctx context.Context, txs []Transaction) AnomalyReport {
	if !c.Available() {
		c.unavailable(OpDetectAnomaly)
		return anomalyFallback()
	}
	if len(txs) < minTransactions {
		return anomalyFallback()
	}
	if len(txs) > anomalyWindow {
		txs = txs[len(txs)-anomalyWindow:]
	}
	payload, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return anomalyFallback()
	}
	prompt := fmt.Sprintf(`Analyze these recent transactions for unusual patterns:
%s

Detect if there are anomalies (unusual amounts, frequencies, patterns).
Return JSON with: is_anomaly (boolean), reason (string), risk_level (low/medium/high)`, payload)

	text, ok := c.complete(ctx, OpDetectAnomaly, Request{
		Messages:    messages("You are a fraud detection expert. Identify suspicious transaction patterns.", prompt),
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if !ok {
		return anomalyFallback()
	}
	res, ok := parseJSON(text)
	if !ok || !res.IsObject() {
		c.answered(OpDetectAnomaly, true)
		return AnomalyReport{RiskLevel: "low", Outcome: Outcome{Synthesized: true}}
	}
	out := AnomalyReport{
		IsAnomaly: res.Get("is_anomaly").Bool(),
		Reason:    res.Get("reason").String(),
		RiskLevel: strings.ToLower(res.Get("risk_level").String()),
	}
	if out.RiskLevel == "" {
		out.RiskLevel = "low"
	}
	c.answered(OpDetectAnomaly, false)
	return out
}

func (c *Client) ValidateUserData(ctx context.Context, data UserData) DataValidation {
	if !c.Available() {
		c.unavailable(OpValidateUserData)
		return validationFallback()
	}
	prompt := fmt.Sprintf(`Check this user data for inconsistencies:
Name: %s %s
Address: %s
Correspondence Address: %s
Phone: %s
Email: %s

Check for:
- Address format issues
- Phone number format issues
- Inconsistencies between addresses
- Identity mismatches

Return JSON with: is_valid (boolean), inconsistencies (array of strings), requires_reauth (boolean)`,
		data.FirstName, data.LastName, data.Address, data.CorrespondenceAddress, data.Phone, data.Email)

	text, ok := c.complete(ctx, OpValidateUserData, Request{
		Messages:    messages("You are a data validation expert. Check for inconsistencies.", prompt),
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if !ok {
		return validationFallback()
	}
	res, ok := parseJSON(text)
	if !ok || !res.IsObject() {
		c.answered(OpValidateUserData, true)
		v := validationFallback()
		v.Outcome = Outcome{Synthesized: true}
		return v
	}
	c.answered(OpValidateUserData, false)
	return DataValidation{
		IsValid:         boolOr(res.Get("is_valid"), true),
		Inconsistencies: stringList(res.Get("inconsistencies")),
		RequiresReauth:  res.Get("requires_reauth").Bool(),
	}
}

const chatSystemPrompt = `You are a helpful customer service assistant for SwissAxa Insurance.
You can help with:
- Policy questions
- Claims information
- Document requirements
- General insurance inquiries

Be friendly, professional, and concise. If you cannot answer something, direct the customer to contact support.`

func (c *Client) Chat(ctx context.Context, message string, history []ChatMessage) ChatReply {
	if !c.Available() {
		c.unavailable(OpChat)
		return ChatReply{Text: ChatUnavailableReply, Outcome: Outcome{UsedFallback: true}}
	}
	if len(history) > chatHistoryWindow {
		history = history[len(history)-chatHistoryWindow:]
	}
	msgs := make([]ChatMessage, 0, len(history)+2)
	msgs = append(msgs, ChatMessage{Role: RoleSystem, Content: chatSystemPrompt})
	for _, h := range history {
		if h.Role == RoleUser || h.Role == RoleAssistant {
			msgs = append(msgs, h)
		}
	}
	msgs = append(msgs, ChatMessage{Role: RoleUser, Content: message})

	text, ok := c.complete(ctx, OpChat, Request{Messages: msgs, Temperature: 0.7, MaxTokens: 500})
	if !ok || strings.TrimSpace(text) == "" {
		return ChatReply{Text: ChatErrorReply, Outcome: Outcome{UsedFallback: true}}
	}
	c.answered(OpChat, false)
	return ChatReply{Text: strings.TrimSpace(text)}
}
