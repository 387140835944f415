package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"ndaflow/pkg/platform/sentinel"
)

// ValidationError carries every structural problem found in a policy file.
// Operators fixing a config need the full list in one pass, so validation
// never stops at the first issue.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return sentinel.ErrInvalidPolicy }

// Load resolves the active review policy. The override path, when set but
// absent, silently falls back to the default location so a misconfigured
// override alone never stops the workflow; an absent default falls back to
// the built-in policy. A file that exists but fails validation is fatal.
func Load(overridePath, defaultPath string) (*Policy, error) {
	for _, path := range []string{overridePath, defaultPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read policy %s: %w", path, err)
		}
		return parse(data, path)
	}
	return Default(), nil
}

func parse(data []byte, path string) (*Policy, error) {
	var pol Policy
	if err := json.Unmarshal(data, &pol); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("%s: not valid JSON: %v", path, err)}}
	}
	pol.applyDefaults()
	if problems := pol.validate(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &pol, nil
}

func (p *Policy) applyDefaults() {
	if p.Review.EvidenceWindow <= 0 {
		p.Review.EvidenceWindow = 160
	}
	if p.Review.MaxEvidence <= 0 {
		p.Review.MaxEvidence = 3
	}
}

// validate collects every structural problem and compiles regex matchers as
// a side effect, so evaluation never meets an uncompiled pattern.
func (p *Policy) validate() []string {
	var problems []string

	if len(p.Detection.Keywords) == 0 {
		problems = append(problems, "nda_detection: keywords must not be empty")
	}
	if p.Detection.MinKeywordMatches <= 0 {
		problems = append(problems, "nda_detection: min_keyword_matches must be positive")
	}

	if len(p.Thresholds) == 0 {
		problems = append(problems, "risk_thresholds: section missing or empty")
	} else {
		if p.Thresholds[0].MinFlags != 0 {
			problems = append(problems, "risk_thresholds: first tier must start at 0 flags so every count maps to a tier")
		}
		for i := 1; i < len(p.Thresholds); i++ {
			if p.Thresholds[i].MinFlags <= p.Thresholds[i-1].MinFlags {
				problems = append(problems, fmt.Sprintf("risk_thresholds[%d]: min_flags must strictly increase", i))
			}
		}
		for i, t := range p.Thresholds {
			switch t.Tier {
			case TierLow, TierMedium, TierHigh, TierCritical:
			default:
				problems = append(problems, fmt.Sprintf("risk_thresholds[%d]: unknown tier %q", i, t.Tier))
			}
		}
	}

	if len(p.Review.ClauseChecks) == 0 {
		problems = append(problems, "review_parameters: clause_checks must not be empty")
	}
	seen := make(map[string]bool, len(p.Review.ClauseChecks))
	for i := range p.Review.ClauseChecks {
		check := &p.Review.ClauseChecks[i]
		label := check.ID
		if label == "" {
			label = fmt.Sprintf("clause_checks[%d]", i)
			problems = append(problems, label+": missing id")
		}
		if seen[check.ID] && check.ID != "" {
			problems = append(problems, label+": duplicate id")
		}
		seen[check.ID] = true
		problems = append(problems, validateMatcher(label, &check.Matcher)...)
	}

	for _, id := range p.Review.CriticalFlags {
		if !seen[id] {
			problems = append(problems, fmt.Sprintf("critical_flags: %q names no configured clause check", id))
		}
	}

	for _, outcome := range []Outcome{OutcomeClean, OutcomeFlagged, OutcomeNonNDA} {
		tpl, ok := p.Templates[outcome]
		if !ok {
			problems = append(problems, fmt.Sprintf("email_templates: missing template %q", outcome))
			continue
		}
		if tpl.Subject == "" || tpl.Body == "" {
			problems = append(problems, fmt.Sprintf("email_templates.%s: subject and body are required", outcome))
		}
	}

	return problems
}

func validateMatcher(label string, m *Matcher) []string {
	var problems []string
	switch m.Kind {
	case MatcherKeywords:
		if len(m.Terms) == 0 {
			problems = append(problems, label+": keywords matcher has no terms")
		}
	case MatcherRegex:
		if m.Pattern == "" {
			problems = append(problems, label+": regex matcher has no pattern")
			break
		}
		re, err := regexp.Compile("(?i)" + m.Pattern)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: bad pattern: %v", label, err))
			break
		}
		m.compiled = re
	case MatcherThreshold:
		if len(m.Terms) == 0 {
			problems = append(problems, label+": threshold matcher has no locating terms")
		}
		if m.LimitYears <= 0 && !m.FlagPerpetual {
			problems = append(problems, label+": threshold matcher needs limit_years or flag_perpetual")
		}
	case "":
		problems = append(problems, label+": clause check has no matcher")
	default:
		problems = append(problems, fmt.Sprintf("%s: unknown matcher kind %q", label, m.Kind))
	}
	return problems
}
