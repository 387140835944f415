package review

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"ndaflow/internal/parser"
	"ndaflow/internal/policy"
)

// degradedPenalty scales confidence down when text came from a fallback
// strategy or carried extraction warnings.
const degradedPenalty = 0.75

// Review evaluates a parsed document against the policy and produces a
// verdict. It never fails for well-formed input: a document that cannot be
// classified as an NDA returns IsNDA=false with empty findings, because
// classification failure is data, not an error.
func Review(doc *parser.Document, pol *policy.Policy) *Verdict {
	body := doc.RawText
	matches := countDetectionMatches(doc.SourcePath, body, pol.Detection.Keywords)

	verdict := &Verdict{
		IsNDA:      matches >= pol.Detection.MinKeywordMatches,
		Confidence: confidence(matches, pol.Detection.MinKeywordMatches, doc.Degraded()),
		Findings:   []Finding{},
		RiskTier:   pol.TierFor(0),
	}

	if !verdict.IsNDA && !pol.Review.EvaluateNonNDA {
		return verdict
	}

	for _, check := range pol.Review.ClauseChecks {
		finding := evaluateClause(body, check, pol.Review)
		verdict.Findings = append(verdict.Findings, finding)
		if !finding.Flagged {
			continue
		}
		verdict.FlagCount++
		if pol.IsCritical(check.ID) {
			verdict.CriticalFlagsTriggered = append(verdict.CriticalFlagsTriggered, check.ID)
		}
	}

	verdict.RiskTier = pol.TierFor(verdict.FlagCount)
	// A single critical clause must not be diluted by an otherwise-clean
	// document: the override ignores the count-based table entirely.
	if len(verdict.CriticalFlagsTriggered) > 0 {
		verdict.RiskTier = policy.TierCritical
	}
	return verdict
}

// countDetectionMatches counts distinct policy keywords present in the
// filename or body. Each keyword counts once regardless of how often it
// occurs; matching is case-insensitive on term boundaries.
func countDetectionMatches(filename, body string, keywords []string) int {
	matches := 0
	for _, keyword := range keywords {
		re := termPattern(keyword)
		if re.MatchString(filename) || re.MatchString(body) {
			matches++
		}
	}
	return matches
}

// confidence grows with match count above the detection threshold, capped at
// 1.0. Below the threshold it stays under 0.5, reflecting how far detection
// fell short.
func confidence(matches, minMatches int, degraded bool) float64 {
	if minMatches <= 0 {
		minMatches = 1
	}
	c := float64(matches) / float64(minMatches*2)
	if c > 1.0 {
		c = 1.0
	}
	if degraded {
		c *= degradedPenalty
	}
	return c
}

// evaluateClause runs the generic matcher interpreter for one check. All
// matcher kinds share the same shape: locate hits, capture bounded evidence
// windows, then decide the flag condition.
func evaluateClause(body string, check policy.ClauseCheck, params policy.ReviewParams) Finding {
	finding := Finding{ClauseID: check.ID}

	hits := locate(body, check.Matcher)
	if len(hits) == 0 {
		return finding
	}
	finding.Matched = true

	if len(hits) > params.MaxEvidence {
		hits = hits[:params.MaxEvidence]
	}
	for _, h := range hits {
		finding.Evidence = append(finding.Evidence, excerpt(body, h[0], h[1], params.EvidenceWindow))
	}

	switch check.Matcher.Kind {
	case policy.MatcherThreshold:
		finding.Flagged, finding.Detail = thresholdFlag(finding.Evidence, check.Matcher)
	default:
		finding.Flagged = true
		finding.Detail = fmt.Sprintf("matched %d location(s)", len(hits))
	}

	if finding.Flagged && len(check.Matcher.Accept) > 0 {
		if windowContainsAny(finding.Evidence, check.Matcher.Accept) {
			finding.Flagged = false
			finding.Detail = "matched, but an accepted term appears alongside"
		}
	}
	return finding
}

// locate returns match index pairs in text order for any matcher kind.
func locate(body string, m policy.Matcher) [][]int {
	if m.Kind == policy.MatcherRegex {
		re := m.Regexp()
		if re == nil {
			return nil
		}
		return re.FindAllStringIndex(body, -1)
	}
	var hits [][]int
	for _, term := range m.Terms {
		hits = append(hits, termPattern(term).FindAllStringIndex(body, -1)...)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i][0] < hits[j][0] })
	return hits
}

// thresholdFlag inspects the evidence windows around a located clause for
// unbounded language or a duration above the configured limit.
func thresholdFlag(evidence []string, m policy.Matcher) (bool, string) {
	for _, window := range evidence {
		lower := strings.ToLower(window)
		if m.FlagPerpetual {
			for _, marker := range perpetualMarkers {
				if strings.Contains(lower, marker) {
					return true, "unbounded term language: " + marker
				}
			}
		}
		if m.LimitYears > 0 {
			if years, ok := extractYears(lower); ok && years > m.LimitYears {
				return true, fmt.Sprintf("term of %d years exceeds limit of %d", years, m.LimitYears)
			}
		}
	}
	return false, "term within configured bounds"
}

var perpetualMarkers = []string{"perpetuity", "perpetual", "indefinitely", "indefinite", "no expiration", "without limitation of time"}

var yearsPattern = regexp.MustCompile(`\b(\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten)\s*(?:\(\d+\)\s*)?years?\b`)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// extractYears pulls the largest duration-in-years figure from a window.
func extractYears(window string) (int, bool) {
	best, found := 0, false
	for _, match := range yearsPattern.FindAllStringSubmatch(window, -1) {
		n, ok := wordNumbers[match[1]]
		if !ok {
			fmt.Sscanf(match[1], "%d", &n)
		}
		if n > 0 {
			found = true
			if n > best {
				best = n
			}
		}
	}
	return best, found
}

func windowContainsAny(windows, terms []string) bool {
	for _, w := range windows {
		lower := strings.ToLower(w)
		for _, term := range terms {
			if strings.Contains(lower, strings.ToLower(term)) {
				return true
			}
		}
	}
	return false
}

// excerpt captures the bounded window around a match, snapped to rune
// boundaries so multi-byte text never gets split.
func excerpt(body string, start, end, window int) string {
	half := window / 2
	lo := start - half
	if lo < 0 {
		lo = 0
	}
	hi := end + half
	if hi > len(body) {
		hi = len(body)
	}
	for lo > 0 && !isRuneStart(body[lo]) {
		lo--
	}
	for hi < len(body) && !isRuneStart(body[hi]) {
		hi++
	}
	return strings.TrimSpace(body[lo:hi])
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// termPattern compiles a case-insensitive, boundary-anchored pattern for a
// literal keyword so "nda" never matches inside "standard".
func termPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
}

