package policy

// Default returns the built-in policy used when no configuration source is
// available. It defines the minimum viable risk surface the engine always
// supports: the clause set below is intentionally conservative and every
// entry is safe to evaluate against arbitrary contract text.
func Default() *Policy {
	pol := &Policy{
		Detection: Detection{
			Keywords: []string{
				"non-disclosure agreement",
				"nondisclosure agreement",
				"confidentiality agreement",
				"confidential information",
				"disclosing party",
				"receiving party",
				"proprietary information",
				"nda",
			},
			MinKeywordMatches: 2,
		},
		Thresholds: []TierThreshold{
			{Tier: TierLow, MinFlags: 0},
			{Tier: TierMedium, MinFlags: 1},
			{Tier: TierHigh, MinFlags: 3},
			{Tier: TierCritical, MinFlags: 5},
		},
		Review: ReviewParams{
			EvidenceWindow: 160,
			MaxEvidence:    3,
			CriticalFlags:  []string{"injunctive_relief_no_court"},
			ClauseChecks: []ClauseCheck{
				{
					ID:          "term_length",
					Description: "confidentiality term unbounded or beyond five years",
					Severity:    "high",
					Matcher: Matcher{
						Kind:          MatcherThreshold,
						Terms:         []string{"term of this agreement", "shall remain in effect", "shall survive", "period of"},
						LimitYears:    5,
						FlagPerpetual: true,
					},
				},
				{
					ID:          "non_compete",
					Description: "non-compete obligations hidden inside an NDA",
					Severity:    "high",
					Matcher: Matcher{
						Kind:  MatcherKeywords,
						Terms: []string{"non-compete", "noncompete", "shall not compete", "refrain from competing"},
					},
				},
				{
					ID:          "ip_assignment",
					Description: "IP assignment reaching beyond confidential information",
					Severity:    "high",
					Matcher: Matcher{
						Kind:    MatcherRegex,
						Pattern: `(assigns?|transfers?|conveys?)\s+(all\s+)?(right,?\s*title,?\s*(and\s+)?interest|intellectual\s+property)`,
					},
				},
				{
					ID:          "jurisdiction",
					Description: "governing law outside the accepted list",
					Severity:    "medium",
					Matcher: Matcher{
						Kind:   MatcherKeywords,
						Terms:  []string{"governed by the laws of", "exclusive jurisdiction", "venue shall be"},
						Accept: []string{"delaware", "new york", "california"},
					},
				},
				{
					ID:          "unilateral_obligations",
					Description: "one-way agreement where mutual terms are preferred",
					Severity:    "low",
					Matcher: Matcher{
						Kind:  MatcherKeywords,
						Terms: []string{"unilateral", "one-way", "sole obligation of the receiving party"},
					},
				},
				{
					ID:          "injunctive_relief_no_court",
					Description: "injunctive relief granted without court determination",
					Severity:    "critical",
					Matcher: Matcher{
						Kind:    MatcherRegex,
						Pattern: `injunctive\s+relief\s+(without|without\s+the\s+necessity\s+of)\s+(posting\s+bond|proof|a\s+court)`,
					},
				},
				{
					ID:          "broad_confidentiality_definition",
					Description: "confidential information defined to cover effectively everything",
					Severity:    "medium",
					Matcher: Matcher{
						Kind:  MatcherKeywords,
						Terms: []string{"all information disclosed", "any and all information", "whether or not marked"},
					},
				},
				{
					ID:          "survival_duration",
					Description: "survival clause outliving the three year cap",
					Severity:    "medium",
					Matcher: Matcher{
						Kind:          MatcherThreshold,
						Terms:         []string{"survive the termination", "survive termination", "surviving obligations"},
						LimitYears:    3,
						FlagPerpetual: true,
					},
				},
			},
		},
		Templates: map[Outcome]Template{
			OutcomeClean: {
				Subject: "NDA review complete: {{.Filename}}",
				Body: "Hi {{.SenderName}},\n\nWe reviewed the NDA you sent ({{.Filename}}) and found no blocking terms. " +
					"Risk tier: {{.RiskTier}}.\n\nWe will follow up with signature steps shortly.\n\nRegards,\nContract Intake",
			},
			OutcomeFlagged: {
				Subject: "NDA review: changes requested for {{.Filename}}",
				Body: "Hi {{.SenderName}},\n\nOur review of {{.Filename}} raised the following concerns (risk tier {{.RiskTier}}):\n\n" +
					"{{.FlaggedClauses}}\n\nA member of the legal team will reach out to discuss revisions.\n\nRegards,\nContract Intake",
			},
			OutcomeNonNDA: {
				Subject: "Re: {{.Subject}}",
				Body: "Hi {{.SenderName}},\n\nThanks for your message. The attachment does not appear to be a non-disclosure " +
					"agreement, so it was not routed to NDA review. If that is unexpected, reply to this email and a human will take a look.\n\nRegards,\nContract Intake",
			},
		},
		Polling: Polling{IntervalSeconds: 300, Folder: "INBOX"},
	}
	// Default construction must satisfy its own validator.
	if problems := pol.validate(); len(problems) > 0 {
		panic("built-in policy invalid: " + problems[0])
	}
	return pol
}
