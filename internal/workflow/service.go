package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ndaflow/internal/audit"
	"ndaflow/internal/ledger"
	"ndaflow/internal/mail"
	"ndaflow/internal/notify"
	"ndaflow/internal/parser"
	"ndaflow/internal/policy"
	"ndaflow/internal/review"
	"ndaflow/pkg/platform/sentinel"
)

// Service owns the end-to-end lifecycle of one inbound message: idempotency
// check, attachment selection, parse, review, notification, and the durable
// ledger write that finishes processing. It is the only owner of the ledger
// and the mail transports.
type Service struct {
	policy  *policy.Policy
	ledger  ledger.Store
	sender  mail.Sender
	parser  DocumentParser
	auditor *audit.Publisher
	metrics Metrics
	logger  *slog.Logger
	retry   mail.RetryPolicy
	clock   func() time.Time
}

// DocumentParser converts raw attachment bytes into a normalized document.
// The package-level parser is the production implementation; tests swap in
// canned documents.
type DocumentParser interface {
	Parse(data []byte, filename string) (*parser.Document, error)
}

type parserFunc func(data []byte, filename string) (*parser.Document, error)

func (f parserFunc) Parse(data []byte, filename string) (*parser.Document, error) {
	return f(data, filename)
}

// Metrics is the slice of instrumentation the workflow touches; the
// platform metrics type satisfies it and tests can pass a no-op.
type Metrics interface {
	IncProcessed(outcome string)
	IncParseFailure()
	IncSendRetry()
	ObserveReviewDuration(seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) IncProcessed(string)           {}
func (noopMetrics) IncParseFailure()              {}
func (noopMetrics) IncSendRetry()                 {}
func (noopMetrics) ObserveReviewDuration(float64) {}

// Option configures the Service.
type Option func(*Service)

// WithClock injects a clock for deterministic ledger timestamps in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithRetryPolicy overrides the notification retry policy.
func WithRetryPolicy(rp mail.RetryPolicy) Option {
	return func(s *Service) { s.retry = rp }
}

// WithAuditor attaches the audit publisher. Nil-safe when omitted.
func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithParser overrides document parsing.
func WithParser(p DocumentParser) Option {
	return func(s *Service) { s.parser = p }
}

// New constructs the workflow service.
func New(pol *policy.Policy, store ledger.Store, sender mail.Sender, logger *slog.Logger, m Metrics, opts ...Option) *Service {
	s := &Service{
		policy:  pol,
		ledger:  store,
		sender:  sender,
		parser:  parserFunc(parser.Parse),
		metrics: m,
		logger:  logger,
		retry:   mail.DefaultRetryPolicy(),
		clock:   time.Now,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.OnRetry = func(int) { s.metrics.IncSendRetry() }
	return s
}

// ProcessMessage runs one message through the workflow. Document-level
// failures are recorded as seen-but-failed ledger entries and return nil so
// the polling cycle continues; only a failed ledger write returns an error,
// because without it the message must not count as processed.
func (s *Service) ProcessMessage(ctx context.Context, msg mail.Message) error {
	log := s.logger.With("message_id", msg.ID, "sender", msg.Sender)

	entry, err := s.ledger.Seen(ctx, msg.ID)
	if err == nil {
		return s.handleSeen(ctx, msg, entry, log)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("ledger lookup: %w", err)
	}

	log.InfoContext(ctx, "processing message", "state", StateMessageFetched)
	s.auditor.Emit(ctx, audit.Event{MessageID: msg.ID, Action: audit.ActionMessageFetched})

	verdict, filename, err := s.reviewAttachments(ctx, msg, log)
	if err != nil {
		// Seen-but-failed: a permanently broken attachment must not be
		// reprocessed every cycle, but the outcome stays distinct from a
		// successful review.
		log.WarnContext(ctx, "document failed", "state", StateError, "error", err)
		s.metrics.IncParseFailure()
		s.auditor.Emit(ctx, audit.Event{MessageID: msg.ID, Action: audit.ActionMessageFailed, Detail: err.Error()})
		return s.appendEntry(ctx, ledger.Entry{
			MessageID:   msg.ID,
			ProcessedAt: s.clock(),
			Outcome:     ledger.OutcomeFailed,
		}, log)
	}

	log.InfoContext(ctx, "review complete",
		"state", StateReviewed,
		"is_nda", verdict.IsNDA,
		"risk_tier", verdict.RiskTier,
		"flag_count", verdict.FlagCount,
	)
	s.auditor.Emit(ctx, audit.Event{
		MessageID: msg.ID,
		Action:    audit.ActionReviewCompleted,
		Outcome:   string(verdict.Outcome()),
		RiskTier:  string(verdict.RiskTier),
	})

	sent := s.notifyOutcome(ctx, verdict, msg.ID, msg.Sender, msg.Subject, filename, log)

	outcome := ledger.OutcomeReviewed
	var tier policy.Tier
	if verdict.IsNDA {
		tier = verdict.RiskTier
	} else {
		outcome = ledger.OutcomeNonNDA
	}
	return s.appendEntry(ctx, ledger.Entry{
		MessageID:    msg.ID,
		ProcessedAt:  s.clock(),
		Outcome:      outcome,
		RiskTier:     tier,
		ResponseSent: sent,
	}, log)
}

// handleSeen resolves a message already in the ledger: a full skip when the
// response went out, otherwise a notification-only retry. Parsing and
// scoring are never repeated.
func (s *Service) handleSeen(ctx context.Context, msg mail.Message, entry *ledger.Entry, log *slog.Logger) error {
	if entry.ResponseSent || entry.Outcome == ledger.OutcomeFailed {
		log.DebugContext(ctx, "message already ledgered, skipping", "outcome", entry.Outcome)
		return nil
	}

	log.InfoContext(ctx, "retrying notification for ledgered message", "state", StateNotifying)
	out, err := notify.ComposeFromLedger(entry, s.policy, msg.Sender, msg.Subject)
	if err != nil {
		log.WarnContext(ctx, "compose retry notification failed", "error", err)
		return nil
	}
	if err := mail.SendWithRetry(ctx, s.sender, out, s.retry); err != nil {
		log.WarnContext(ctx, "notification retry failed", "error", err)
		return nil
	}
	s.auditor.Emit(ctx, audit.Event{MessageID: msg.ID, Action: audit.ActionResponseSent, Detail: "retry"})
	return s.ledger.MarkResponseSent(ctx, msg.ID)
}

// reviewAttachments selects supported attachments, parses and reviews them
// in order, and returns the first NDA verdict; with no NDA among them the
// first verdict stands. Unsupported attachments never block the others.
func (s *Service) reviewAttachments(ctx context.Context, msg mail.Message, log *slog.Logger) (*review.Verdict, string, error) {
	var (
		first         *review.Verdict
		firstFilename string
		lastErr       error
		supported     int
	)
	for _, att := range msg.Attachments {
		if !parser.Supported(att.Filename) {
			continue
		}
		supported++
		log.InfoContext(ctx, "parsing attachment", "state", StateAttachmentExtracted, "filename", att.Filename)

		start := s.clock()
		doc, err := s.parser.Parse(att.Data, att.Filename)
		if err != nil {
			lastErr = err
			continue
		}
		verdict := review.Review(doc, s.policy)
		s.metrics.ObserveReviewDuration(s.clock().Sub(start).Seconds())

		if verdict.IsNDA {
			return verdict, att.Filename, nil
		}
		if first == nil {
			first = verdict
			firstFilename = att.Filename
		}
	}

	if first != nil {
		return first, firstFilename, nil
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	if supported == 0 {
		// Nothing reviewable attached; respond as non-NDA correspondence
		// without running detection, so an NDA-flavoured subject line cannot
		// masquerade as a reviewed document.
		return &review.Verdict{
			IsNDA:    false,
			Findings: []review.Finding{},
			RiskTier: s.policy.TierFor(0),
		}, "", nil
	}
	return nil, "", &parser.ExtractionError{Reason: parser.ReasonEmpty}
}

// notifyOutcome composes and sends the outcome email with bounded retries.
// Exhausted retries surface to the operator through logs and the ledger's
// response_sent=false, never through an aborted cycle.
func (s *Service) notifyOutcome(ctx context.Context, verdict *review.Verdict, messageID, recipient, subject, filename string, log *slog.Logger) bool {
	log.InfoContext(ctx, "sending outcome notification", "state", StateNotifying, "outcome", verdict.Outcome())
	out, err := notify.Compose(verdict, s.policy, recipient, subject, filename)
	if err != nil {
		log.ErrorContext(ctx, "compose notification failed", "error", err)
		return false
	}
	if err := mail.SendWithRetry(ctx, s.sender, out, s.retry); err != nil {
		log.ErrorContext(ctx, "notification failed after retries", "error", err)
		return false
	}
	s.auditor.Emit(ctx, audit.Event{MessageID: messageID, Action: audit.ActionResponseSent})
	return true
}

// appendEntry finishes processing with the durable ledger write and updates
// the outcome metrics.
func (s *Service) appendEntry(ctx context.Context, entry ledger.Entry, log *slog.Logger) error {
	if err := s.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("message %s: %w", entry.MessageID, err)
	}
	log.InfoContext(ctx, "message ledgered", "state", StateLedgered, "outcome", entry.Outcome, "response_sent", entry.ResponseSent)
	s.metrics.IncProcessed(string(entry.Outcome))
	return nil
}

// ProcessFile reviews a single document from disk, bypassing mail fetch.
// Used for manual review and testing; notifyAddr, when set, receives the
// outcome email. Returns an error on any document-level failure so one-shot
// mode can exit non-zero.
func (s *Service) ProcessFile(ctx context.Context, path, notifyAddr string) (*review.Verdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	filename := filepath.Base(path)
	doc, err := s.parser.Parse(data, filename)
	if err != nil {
		return nil, err
	}
	verdict := review.Review(doc, s.policy)

	s.logger.InfoContext(ctx, "one-shot review complete",
		"path", path,
		"is_nda", verdict.IsNDA,
		"risk_tier", verdict.RiskTier,
		"flag_count", verdict.FlagCount,
		"confidence", verdict.Confidence,
	)

	id := "file:" + uuid.NewString()
	sent := false
	if notifyAddr != "" {
		sent = s.notifyOutcome(ctx, verdict, id, notifyAddr, filename, filename, s.logger)
	}

	entry := ledger.Entry{
		MessageID:    id,
		ProcessedAt:  s.clock(),
		Outcome:      ledger.OutcomeReviewed,
		ResponseSent: sent,
	}
	if verdict.IsNDA {
		entry.RiskTier = verdict.RiskTier
	} else {
		entry.Outcome = ledger.OutcomeNonNDA
	}
	if err := s.appendEntry(ctx, entry, s.logger); err != nil {
		return verdict, err
	}
	return verdict, nil
}
