package ai

import "strings"

const (
	// ChatUnavailableReply answers chat when no model is configured.
	ChatUnavailableReply = "AI services are currently unavailable. Please contact customer service for assistance."
	// ChatErrorReply answers chat when the model call failed.
	ChatErrorReply = "I'm sorry, I'm having trouble processing your request right now. Please try again or contact customer service."

	fallbackProductName = "Comprehensive Insurance Premium"
	fallbackDamageType  = "General Damage"
)

func comparisonFallback(in PolicyInput) PolicyComparison {
	return PolicyComparison{
		SimilarProducts: []SimilarProduct{fallbackProduct(in)},
		Recommendations: []string{
			"Our premium product offers 20% better coverage",
			"Includes 24/7 customer support",
			"Faster claims processing",
		},
		Outcome: Outcome{UsedFallback: true},
	}
}

func synthesizedComparison(in PolicyInput, text string) PolicyComparison {
	p := fallbackProduct(in)
	p.AIAnalysis = truncateRunes(text, 200)
	return PolicyComparison{
		SimilarProducts: []SimilarProduct{p},
		Recommendations: firstLines(text, 5),
		Outcome:         Outcome{Synthesized: true},
	}
}

func fallbackProduct(in PolicyInput) SimilarProduct {
	coverage := in.PolicyType
	if strings.TrimSpace(coverage) == "" {
		coverage = "General"
	}
	return SimilarProduct{
		Name:       fallbackProductName,
		Coverage:   coverage,
		Premium:    "99.99 EUR/month",
		MatchScore: 85,
	}
}

// tagFromFilename guesses a document tag from keywords in the file name.
func tagFromFilename(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "policy"):
		return TagPolicy
	case strings.Contains(name, "claim"):
		return TagClaim
	case strings.Contains(name, "invoice"), strings.Contains(name, "bill"):
		return TagInvoice
	case strings.Contains(name, "report"):
		return TagReport
	case strings.Contains(name, "id"), strings.Contains(name, "passport"):
		return TagIdentity
	case strings.Contains(name, "medical"), strings.Contains(name, "doctor"):
		return TagMedical
	default:
		return TagGeneral
	}
}

func damageFallback(in ClaimInput) DamageAnalysis {
	desc := in.Description
	if strings.TrimSpace(desc) == "" {
		desc = "Damage claim"
	}
	return DamageAnalysis{
		DamageType:           fallbackDamageType,
		Severity:             "medium",
		Priority:             "normal",
		SuggestedDescription: desc,
		Outcome:              Outcome{UsedFallback: true},
	}
}

func synthesizedDamage(in ClaimInput, text string) DamageAnalysis {
	desc := truncateRunes(strings.TrimSpace(text), 200)
	if desc == "" {
		desc = in.Description
	}
	return DamageAnalysis{
		DamageType:           fallbackDamageType,
		Severity:             "medium",
		EstimatedValueMin:    500,
		EstimatedValueMax:    2000,
		Priority:             "normal",
		SuggestedDescription: desc,
		Outcome:              Outcome{Synthesized: true},
	}
}

func anomalyFallback() AnomalyReport {
	return AnomalyReport{RiskLevel: "low", Outcome: Outcome{UsedFallback: true}}
}

func validationFallback() DataValidation {
	return DataValidation{IsValid: true, Inconsistencies: []string{}, Outcome: Outcome{UsedFallback: true}}
}
