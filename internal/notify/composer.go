package notify

import (
	"fmt"
	"strings"
	"text/template"

	"ndaflow/internal/ledger"
	"ndaflow/internal/mail"
	"ndaflow/internal/policy"
	"ndaflow/internal/review"
	"ndaflow/pkg/email"
)

// templateData is the placeholder set available to policy email templates.
type templateData struct {
	SenderName     string
	RiskTier       string
	FlaggedClauses string
	Subject        string
	Filename       string
}

// Compose renders the outcome email for a verdict using the policy's
// template for that outcome. The recipient is the original sender unless the
// caller overrides it (one-shot --notify).
func Compose(verdict *review.Verdict, pol *policy.Policy, recipient, originalSubject, filename string) (mail.OutboundMessage, error) {
	tpl, ok := pol.Templates[verdict.Outcome()]
	if !ok {
		return mail.OutboundMessage{}, fmt.Errorf("no template for outcome %q", verdict.Outcome())
	}

	data := templateData{
		SenderName:     email.DeriveName(recipient),
		RiskTier:       string(verdict.RiskTier),
		FlaggedClauses: formatFlagged(verdict, pol),
		Subject:        originalSubject,
		Filename:       filename,
	}

	subject, err := render("subject", tpl.Subject, data)
	if err != nil {
		return mail.OutboundMessage{}, err
	}
	body, err := render("body", tpl.Body, data)
	if err != nil {
		return mail.OutboundMessage{}, err
	}

	return mail.OutboundMessage{To: recipient, Subject: subject, Body: body}, nil
}

// ComposeFromLedger rebuilds an outcome email from a ledger entry alone,
// for the notification-only retry path. Parse and review results are not
// persisted, so the flagged-clause list degrades to a pointer at the earlier
// review; outcome and risk tier survive in the entry.
func ComposeFromLedger(entry *ledger.Entry, pol *policy.Policy, recipient, originalSubject string) (mail.OutboundMessage, error) {
	outcome := policy.OutcomeNonNDA
	if entry.Outcome == ledger.OutcomeReviewed {
		outcome = policy.OutcomeClean
		if entry.RiskTier != "" && entry.RiskTier != policy.TierLow {
			outcome = policy.OutcomeFlagged
		}
	}
	tpl, ok := pol.Templates[outcome]
	if !ok {
		return mail.OutboundMessage{}, fmt.Errorf("no template for outcome %q", outcome)
	}

	data := templateData{
		SenderName:     email.DeriveName(recipient),
		RiskTier:       string(entry.RiskTier),
		FlaggedClauses: "  - see the review recorded on " + entry.ProcessedAt.Format("2006-01-02"),
		Subject:        originalSubject,
	}
	subject, err := render("subject", tpl.Subject, data)
	if err != nil {
		return mail.OutboundMessage{}, err
	}
	body, err := render("body", tpl.Body, data)
	if err != nil {
		return mail.OutboundMessage{}, err
	}
	return mail.OutboundMessage{To: recipient, Subject: subject, Body: body}, nil
}

// formatFlagged renders flagged findings as a bullet list, using the clause
// description from the policy when one exists.
func formatFlagged(verdict *review.Verdict, pol *policy.Policy) string {
	descriptions := make(map[string]string, len(pol.Review.ClauseChecks))
	for _, check := range pol.Review.ClauseChecks {
		descriptions[check.ID] = check.Description
	}

	var lines []string
	for _, finding := range verdict.Findings {
		if !finding.Flagged {
			continue
		}
		label := descriptions[finding.ClauseID]
		if label == "" {
			label = finding.ClauseID
		}
		line := "  - " + label
		if finding.Detail != "" {
			line += " (" + finding.Detail + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func render(name, text string, data templateData) (string, error) {
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return sb.String(), nil
}
