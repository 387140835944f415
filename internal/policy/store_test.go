package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"ndaflow/pkg/platform/sentinel"
)

type PolicySuite struct {
	suite.Suite
	dir string
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func (s *PolicySuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *PolicySuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validPolicyJSON = `{
  "nda_detection": {
    "keywords": ["non-disclosure agreement", "confidential information"],
    "min_keyword_matches": 2
  },
  "risk_thresholds": [
    {"tier": "low", "min_flags": 0},
    {"tier": "medium", "min_flags": 1},
    {"tier": "high", "min_flags": 3}
  ],
  "review_parameters": {
    "clause_checks": [
      {"id": "non_compete", "matcher": {"kind": "keywords", "terms": ["shall not compete"]}},
      {"id": "ip_assignment", "matcher": {"kind": "regex", "pattern": "assigns all right"}}
    ],
    "critical_flags": ["ip_assignment"]
  },
  "email_templates": {
    "clean": {"subject": "ok {{.Filename}}", "body": "hi {{.SenderName}}"},
    "flagged": {"subject": "issues {{.Filename}}", "body": "{{.FlaggedClauses}}"},
    "non_nda": {"subject": "re {{.Subject}}", "body": "not an nda"}
  },
  "polling": {"interval_seconds": 60, "folder": "Intake"}
}`

func (s *PolicySuite) TestLoadValidFile() {
	path := s.write("policy.json", validPolicyJSON)

	pol, err := Load(path, "")
	s.Require().NoError(err)

	s.Equal(2, pol.Detection.MinKeywordMatches)
	s.Len(pol.Review.ClauseChecks, 2)
	s.Equal("Intake", pol.Polling.Folder)
	// Omitted evaluation bounds pick up defaults.
	s.Equal(160, pol.Review.EvidenceWindow)
	s.Equal(3, pol.Review.MaxEvidence)
	// Regex matchers come back pre-compiled.
	s.NotNil(pol.Review.ClauseChecks[1].Matcher.Regexp())
	s.True(pol.Review.ClauseChecks[1].Matcher.Regexp().MatchString("ASSIGNS ALL RIGHT"))
}

func (s *PolicySuite) TestLoadFallsBackThroughMissingFiles() {
	s.Run("missing override falls back to default path", func() {
		path := s.write("default.json", validPolicyJSON)
		pol, err := Load(filepath.Join(s.dir, "absent.json"), path)
		s.Require().NoError(err)
		s.Equal("Intake", pol.Polling.Folder)
	})

	s.Run("both missing yields built-in policy", func() {
		pol, err := Load(filepath.Join(s.dir, "nope.json"), filepath.Join(s.dir, "also-nope.json"))
		s.Require().NoError(err)
		s.NotEmpty(pol.Review.ClauseChecks)
		s.Equal("INBOX", pol.Polling.Folder)
	})
}

func (s *PolicySuite) TestLoadPresentButInvalidIsFatal() {
	path := s.write("broken.json", `{"nda_detection": {"keywords": []}}`)

	_, err := Load(path, "")
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrInvalidPolicy)
}

func (s *PolicySuite) TestLoadMalformedJSON() {
	path := s.write("garbage.json", `{not json`)

	_, err := Load(path, "")
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrInvalidPolicy)
	s.Contains(err.Error(), "not valid JSON")
}

func (s *PolicySuite) TestValidationCollectsAllProblems() {
	path := s.write("multi.json", `{
	  "nda_detection": {"keywords": [], "min_keyword_matches": 0},
	  "risk_thresholds": [
	    {"tier": "medium", "min_flags": 2},
	    {"tier": "weird", "min_flags": 2}
	  ],
	  "review_parameters": {
	    "clause_checks": [
	      {"id": "", "matcher": {"kind": "keywords"}},
	      {"id": "dup", "matcher": {"kind": "regex", "pattern": "("}},
	      {"id": "dup", "matcher": {"kind": "mystery"}}
	    ],
	    "critical_flags": ["ghost"]
	  },
	  "email_templates": {
	    "clean": {"subject": "", "body": ""}
	  }
	}`)

	_, err := Load(path, "")
	s.Require().Error(err)

	var verr *ValidationError
	s.Require().True(errors.As(err, &verr))

	// One pass over a badly broken file reports every class of problem at
	// once instead of stopping at the first.
	joined := verr.Error()
	s.Contains(joined, "keywords must not be empty")
	s.Contains(joined, "min_keyword_matches must be positive")
	s.Contains(joined, "first tier must start at 0")
	s.Contains(joined, "min_flags must strictly increase")
	s.Contains(joined, `unknown tier "weird"`)
	s.Contains(joined, "missing id")
	s.Contains(joined, "duplicate id")
	s.Contains(joined, "bad pattern")
	s.Contains(joined, `unknown matcher kind "mystery"`)
	s.Contains(joined, `"ghost" names no configured clause check`)
	s.Contains(joined, `missing template "flagged"`)
	s.Contains(joined, `missing template "non_nda"`)
	s.Contains(joined, "subject and body are required")
	s.GreaterOrEqual(len(verr.Problems), 10)
}

func (s *PolicySuite) TestThresholdMatcherValidation() {
	path := s.write("threshold.json", `{
	  "nda_detection": {"keywords": ["nda"], "min_keyword_matches": 1},
	  "risk_thresholds": [{"tier": "low", "min_flags": 0}],
	  "review_parameters": {
	    "clause_checks": [
	      {"id": "term", "matcher": {"kind": "threshold"}}
	    ]
	  },
	  "email_templates": {
	    "clean": {"subject": "a", "body": "b"},
	    "flagged": {"subject": "a", "body": "b"},
	    "non_nda": {"subject": "a", "body": "b"}
	  }
	}`)

	_, err := Load(path, "")
	s.Require().Error(err)
	s.Contains(err.Error(), "threshold matcher has no locating terms")
	s.Contains(err.Error(), "needs limit_years or flag_perpetual")
}

func (s *PolicySuite) TestTierFor() {
	pol := Default()

	s.Equal(TierLow, pol.TierFor(0))
	s.Equal(TierMedium, pol.TierFor(1))
	s.Equal(TierMedium, pol.TierFor(2))
	s.Equal(TierHigh, pol.TierFor(3))
	s.Equal(TierHigh, pol.TierFor(4))
	s.Equal(TierCritical, pol.TierFor(5))
	s.Equal(TierCritical, pol.TierFor(50))
}

func (s *PolicySuite) TestIsCritical() {
	pol := Default()
	s.True(pol.IsCritical("injunctive_relief_no_court"))
	s.False(pol.IsCritical("non_compete"))
}

func (s *PolicySuite) TestPollingInterval() {
	s.Equal("5m0s", Polling{}.Interval().String())
	s.Equal("1m0s", Polling{IntervalSeconds: 60}.Interval().String())
}

func (s *PolicySuite) TestDefaultPolicyIsValid() {
	pol := Default()
	s.Empty(pol.validate())
	for _, check := range pol.Review.ClauseChecks {
		if check.Matcher.Kind == MatcherRegex {
			s.NotNil(check.Matcher.Regexp(), check.ID)
		}
	}
}
