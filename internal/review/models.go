package review

import "ndaflow/internal/policy"

// Finding is the result of one configured clause check against a document.
type Finding struct {
	ClauseID string   `json:"clause_id"`
	Matched  bool     `json:"matched"`
	Flagged  bool     `json:"flagged"`
	Evidence []string `json:"evidence,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Verdict is the structured review outcome for one document. It is derived
// deterministically from a (document, policy) pair: no clock, no randomness,
// no I/O, so re-running review is idempotent and reproducible.
type Verdict struct {
	IsNDA                  bool        `json:"is_nda"`
	Confidence             float64     `json:"confidence"`
	Findings               []Finding   `json:"findings"`
	FlagCount              int         `json:"flag_count"`
	RiskTier               policy.Tier `json:"risk_tier"`
	CriticalFlagsTriggered []string    `json:"critical_flags_triggered,omitempty"`
}

// Outcome maps the verdict to its email template key.
func (v *Verdict) Outcome() policy.Outcome {
	switch {
	case !v.IsNDA:
		return policy.OutcomeNonNDA
	case v.FlagCount > 0:
		return policy.OutcomeFlagged
	default:
		return policy.OutcomeClean
	}
}

// FlaggedClauses lists the ids of flagged findings in evaluation order.
func (v *Verdict) FlaggedClauses() []string {
	var ids []string
	for _, f := range v.Findings {
		if f.Flagged {
			ids = append(ids, f.ClauseID)
		}
	}
	return ids
}
