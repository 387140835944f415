package policy

import (
	"regexp"
	"time"
)

// Tier is the coarse risk classification derived from flag counts.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Outcome keys email templates to a verdict shape.
type Outcome string

const (
	OutcomeClean   Outcome = "clean"
	OutcomeFlagged Outcome = "flagged"
	OutcomeNonNDA  Outcome = "non_nda"
)

// MatcherKind selects how a clause check scans the document text.
type MatcherKind string

const (
	// MatcherKeywords flags on any case-insensitive term occurrence.
	MatcherKeywords MatcherKind = "keywords"
	// MatcherRegex flags on a regular expression match.
	MatcherRegex MatcherKind = "regex"
	// MatcherThreshold locates the clause by term, then extracts a year
	// figure from the surrounding window and compares it to LimitYears.
	MatcherThreshold MatcherKind = "threshold"
)

// Matcher is the declarative match rule for one clause check. Exactly one
// kind-appropriate payload must be set; validation enforces this.
type Matcher struct {
	Kind    MatcherKind `json:"kind"`
	Terms   []string    `json:"terms,omitempty"`
	Pattern string      `json:"pattern,omitempty"`
	// LimitYears bounds threshold matchers; a located duration above it is
	// flagged. FlagPerpetual additionally flags unbounded language.
	LimitYears    int  `json:"limit_years,omitempty"`
	FlagPerpetual bool `json:"flag_perpetual,omitempty"`
	// Accept suppresses the flag when any of these terms appears inside the
	// evidence window, e.g. an accepted jurisdiction next to a governing-law
	// clause.
	Accept []string `json:"accept,omitempty"`

	compiled *regexp.Regexp
}

// Regexp returns the pattern compiled during validation, compiling lazily
// for matchers constructed without a Load pass. Nil for non-regex matchers
// and for patterns that do not compile.
func (m *Matcher) Regexp() *regexp.Regexp {
	if m.compiled == nil && m.Pattern != "" {
		m.compiled, _ = regexp.Compile(m.Pattern)
	}
	return m.compiled
}

// ClauseCheck is one configured review rule.
type ClauseCheck struct {
	ID          string  `json:"id"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity,omitempty"`
	Matcher     Matcher `json:"matcher"`
}

// TierThreshold maps a flag count range to a tier: the tier applies from
// MinFlags up to the next threshold's MinFlags. The first entry must start
// at zero and entries must strictly increase so every count maps to exactly
// one tier.
type TierThreshold struct {
	Tier     Tier `json:"tier"`
	MinFlags int  `json:"min_flags"`
}

// ReviewParams configures clause evaluation.
type ReviewParams struct {
	ClauseChecks  []ClauseCheck `json:"clause_checks"`
	CriticalFlags []string      `json:"critical_flags"`
	// EvidenceWindow bounds the excerpt captured around each match so dense
	// boilerplate cannot balloon a verdict.
	EvidenceWindow int `json:"evidence_window_chars"`
	MaxEvidence    int `json:"max_evidence_per_clause"`
	// EvaluateNonNDA runs clause checks even when detection fails, surfacing
	// partial findings on borderline documents.
	EvaluateNonNDA bool `json:"evaluate_non_nda"`
}

// Detection configures NDA-type classification.
type Detection struct {
	Keywords          []string `json:"keywords"`
	MinKeywordMatches int      `json:"min_keyword_matches"`
}

// Template is one outbound email template. Placeholders: {{.SenderName}},
// {{.RiskTier}}, {{.FlaggedClauses}}, {{.Subject}}, {{.Filename}}.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Polling configures the watch loop.
type Polling struct {
	IntervalSeconds int    `json:"interval_seconds"`
	Folder          string `json:"folder,omitempty"`
}

// Interval returns the polling interval, defaulting when unset.
func (p Polling) Interval() time.Duration {
	if p.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Policy is the validated, in-memory review configuration. Loaded once per
// run and read-only afterwards.
type Policy struct {
	Review     ReviewParams         `json:"review_parameters"`
	Thresholds []TierThreshold      `json:"risk_thresholds"`
	Detection  Detection            `json:"nda_detection"`
	Templates  map[Outcome]Template `json:"email_templates"`
	Polling    Polling              `json:"polling"`
}

// TierFor maps a flag count to its tier via the threshold table.
func (p *Policy) TierFor(flagCount int) Tier {
	tier := p.Thresholds[0].Tier
	for _, t := range p.Thresholds {
		if flagCount >= t.MinFlags {
			tier = t.Tier
		}
	}
	return tier
}

// IsCritical reports whether a clause id force-escalates the verdict.
func (p *Policy) IsCritical(clauseID string) bool {
	for _, id := range p.Review.CriticalFlags {
		if id == clauseID {
			return true
		}
	}
	return false
}
