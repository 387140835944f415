package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ndaflow/internal/audit"
	"ndaflow/internal/ledger"
	"ndaflow/internal/mail"
	"ndaflow/internal/parser"
	"ndaflow/internal/policy"
	"ndaflow/internal/workflow"
	"ndaflow/pkg/platform/sentinel"
)

const ndaText = "This Non-Disclosure Agreement covers all Confidential Information " +
	"exchanged between the Disclosing Party and the Receiving Party. " +
	"Recipient shall not compete with the Company."

const cleanNDAText = "This Non-Disclosure Agreement covers Confidential Information " +
	"exchanged between the parties under the laws of the State of Delaware."

const letterText = "Thanks for lunch last week, invoice attached as discussed."

// fakeSender records outbound messages and can be programmed to fail.
type fakeSender struct {
	mu         sync.Mutex
	sent       []mail.OutboundMessage
	failures   int
	alwaysFail bool
}

func (f *fakeSender) Send(_ context.Context, msg mail.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alwaysFail {
		return sentinel.ErrTransport
	}
	if f.failures > 0 {
		f.failures--
		return sentinel.ErrTransport
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) last() mail.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// fakeParser serves canned documents by filename; an entry with a nil
// document yields its error instead.
type fakeParser struct {
	docs  map[string]*parser.Document
	errs  map[string]error
	calls int
}

func (f *fakeParser) Parse(_ []byte, filename string) (*parser.Document, error) {
	f.calls++
	if err, ok := f.errs[filename]; ok {
		return nil, err
	}
	if doc, ok := f.docs[filename]; ok {
		return doc, nil
	}
	return nil, &parser.ExtractionError{Reason: parser.ReasonCorrupt, Detail: filename}
}

type countingMetrics struct {
	processed     map[string]int
	parseFailures int
	sendRetries   int
	observations  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{processed: make(map[string]int)}
}

func (m *countingMetrics) IncProcessed(outcome string)   { m.processed[outcome]++ }
func (m *countingMetrics) IncParseFailure()              { m.parseFailures++ }
func (m *countingMetrics) IncSendRetry()                 { m.sendRetries++ }
func (m *countingMetrics) ObserveReviewDuration(float64) { m.observations++ }

// failingStore wraps a store and fails every Append.
type failingStore struct {
	ledger.Store
}

func (failingStore) Append(context.Context, ledger.Entry) error {
	return errors.New("disk full: " + sentinel.ErrLedgerWrite.Error())
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *ledger.InMemoryStore
	sender  *fakeSender
	parser  *fakeParser
	metrics *countingMetrics
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = ledger.NewInMemoryStore()
	s.sender = &fakeSender{}
	s.metrics = newCountingMetrics()
	s.now = time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	s.parser = &fakeParser{docs: map[string]*parser.Document{
		"nda.pdf": {
			SourcePath:       "nda.pdf",
			Format:           parser.FormatPDF,
			RawText:          ndaText,
			ExtractionMethod: "pdf_primary",
			PageCount:        2,
		},
		"clean_nda.pdf": {
			SourcePath:       "clean_nda.pdf",
			Format:           parser.FormatPDF,
			RawText:          cleanNDAText,
			ExtractionMethod: "pdf_primary",
			PageCount:        1,
		},
		"letter.pdf": {
			SourcePath:       "letter.pdf",
			Format:           parser.FormatPDF,
			RawText:          letterText,
			ExtractionMethod: "pdf_primary",
			PageCount:        1,
		},
	}}
}

func (s *ServiceSuite) newService() *workflow.Service {
	return s.newServiceWith(s.store)
}

func (s *ServiceSuite) newServiceWith(store ledger.Store, extra ...workflow.Option) *workflow.Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := append([]workflow.Option{
		workflow.WithParser(s.parser),
		workflow.WithClock(func() time.Time { return s.now }),
		workflow.WithRetryPolicy(mail.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}),
	}, extra...)
	return workflow.New(policy.Default(), store, s.sender, log, s.metrics, opts...)
}

func msgWith(id string, attachments ...mail.Attachment) mail.Message {
	return mail.Message{
		ID:          id,
		Sender:      "alex.chen@example.com",
		Subject:     "NDA for countersignature",
		ReceivedAt:  time.Now(),
		Attachments: attachments,
	}
}

func (s *ServiceSuite) TestFlaggedNDAEndToEnd() {
	svc := s.newService()
	msg := msgWith("<m1@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m1@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeReviewed, entry.Outcome)
	s.Equal(policy.TierMedium, entry.RiskTier)
	s.True(entry.ResponseSent)
	s.True(entry.ProcessedAt.Equal(s.now))

	s.Require().Equal(1, s.sender.sentCount())
	out := s.sender.last()
	s.Equal("alex.chen@example.com", out.To)
	s.Contains(out.Subject, "changes requested")
	s.Contains(out.Body, "Alex Chen")
	s.Contains(out.Body, "non-compete")

	s.Equal(1, s.metrics.processed["reviewed"])
	s.Equal(1, s.metrics.observations)
}

func (s *ServiceSuite) TestCleanNDA() {
	svc := s.newService()
	msg := msgWith("<m2@example.com>", mail.Attachment{Filename: "clean_nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m2@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeReviewed, entry.Outcome)
	s.Equal(policy.TierLow, entry.RiskTier)

	s.Contains(s.sender.last().Body, "no blocking terms")
}

func (s *ServiceSuite) TestNonNDAAttachment() {
	svc := s.newService()
	msg := msgWith("<m3@example.com>", mail.Attachment{Filename: "letter.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m3@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeNonNDA, entry.Outcome)
	s.Empty(entry.RiskTier)

	s.Contains(s.sender.last().Subject, "Re: NDA for countersignature")
	s.Equal(1, s.metrics.processed["non_nda"])
}

func (s *ServiceSuite) TestNoSupportedAttachments() {
	svc := s.newService()
	msg := msgWith("<m4@example.com>",
		mail.Attachment{Filename: "photo.png", Data: []byte("x")},
		mail.Attachment{Filename: "notes.txt", Data: []byte("x")},
	)

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m4@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeNonNDA, entry.Outcome)
	// Unsupported files never reach the parser.
	s.Zero(s.parser.calls)
	s.Equal(1, s.sender.sentCount())
}

func (s *ServiceSuite) TestNDAFlavouredSubjectWithoutDocuments() {
	svc := s.newService()
	msg := msgWith("<m15@example.com>", mail.Attachment{Filename: "photo.png", Data: []byte("x")})
	msg.Subject = "NDA attached - confidential information enclosed"

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	// The subject line alone must never pass for a reviewed document.
	entry, err := s.store.Seen(s.ctx, "<m15@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeNonNDA, entry.Outcome)
	s.Empty(entry.RiskTier)
	s.Zero(s.parser.calls)

	s.Require().Equal(1, s.sender.sentCount())
	s.Contains(s.sender.last().Subject, "Re: NDA attached - confidential information enclosed")
	s.Equal(1, s.metrics.processed["non_nda"])
}

func (s *ServiceSuite) TestFirstNDAAttachmentWins() {
	svc := s.newService()
	msg := msgWith("<m5@example.com>",
		mail.Attachment{Filename: "letter.pdf", Data: []byte("x")},
		mail.Attachment{Filename: "nda.pdf", Data: []byte("x")},
	)

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m5@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeReviewed, entry.Outcome)
	s.Equal(2, s.parser.calls)
}

func (s *ServiceSuite) TestEncryptedAttachmentFailsClosed() {
	s.parser.errs = map[string]error{
		"locked.pdf": &parser.ExtractionError{Reason: parser.ReasonEncrypted, Detail: "locked.pdf"},
	}
	svc := s.newService()
	msg := msgWith("<m6@example.com>", mail.Attachment{Filename: "locked.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m6@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeFailed, entry.Outcome)
	s.False(entry.ResponseSent)
	// No email goes out on a document we could not read.
	s.Zero(s.sender.sentCount())
	s.Equal(1, s.metrics.parseFailures)
	s.Equal(1, s.metrics.processed["failed"])
}

func (s *ServiceSuite) TestSendFailureRecordedNotFatal() {
	s.sender.alwaysFail = true
	svc := s.newService()
	msg := msgWith("<m7@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m7@example.com>")
	s.Require().NoError(err)
	s.Equal(ledger.OutcomeReviewed, entry.Outcome)
	s.False(entry.ResponseSent)
	// Two retries after the first attempt.
	s.Equal(2, s.metrics.sendRetries)
}

func (s *ServiceSuite) TestTransientSendFailureRetries() {
	s.sender.failures = 1
	svc := s.newService()
	msg := msgWith("<m8@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m8@example.com>")
	s.Require().NoError(err)
	s.True(entry.ResponseSent)
	s.Equal(1, s.sender.sentCount())
	s.Equal(1, s.metrics.sendRetries)
}

func (s *ServiceSuite) TestSeenMessageFullySkipped() {
	s.Require().NoError(s.store.Append(s.ctx, ledger.Entry{
		MessageID:    "<m9@example.com>",
		ProcessedAt:  s.now.Add(-time.Hour),
		Outcome:      ledger.OutcomeReviewed,
		RiskTier:     policy.TierLow,
		ResponseSent: true,
	}))
	svc := s.newService()
	msg := msgWith("<m9@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	// Nothing re-parsed, nothing re-sent.
	s.Zero(s.parser.calls)
	s.Zero(s.sender.sentCount())
}

func (s *ServiceSuite) TestSeenFailedMessageNotRetried() {
	s.Require().NoError(s.store.Append(s.ctx, ledger.Entry{
		MessageID:   "<m10@example.com>",
		ProcessedAt: s.now.Add(-time.Hour),
		Outcome:     ledger.OutcomeFailed,
	}))
	svc := s.newService()
	msg := msgWith("<m10@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))
	s.Zero(s.parser.calls)
	s.Zero(s.sender.sentCount())
}

func (s *ServiceSuite) TestNotificationOnlyRetry() {
	s.Require().NoError(s.store.Append(s.ctx, ledger.Entry{
		MessageID:   "<m11@example.com>",
		ProcessedAt: s.now.Add(-time.Hour),
		Outcome:     ledger.OutcomeReviewed,
		RiskTier:    policy.TierHigh,
	}))
	svc := s.newService()
	msg := msgWith("<m11@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	// The document is never re-reviewed; only the email goes out.
	s.Zero(s.parser.calls)
	s.Require().Equal(1, s.sender.sentCount())
	s.Contains(s.sender.last().Subject, "changes requested")
	s.Contains(strings.ToLower(s.sender.last().Body), "see the review recorded on")

	entry, err := s.store.Seen(s.ctx, "<m11@example.com>")
	s.Require().NoError(err)
	s.True(entry.ResponseSent)
}

func (s *ServiceSuite) TestNotificationRetryFailureLeavesEntryUnsent() {
	s.Require().NoError(s.store.Append(s.ctx, ledger.Entry{
		MessageID:   "<m12@example.com>",
		ProcessedAt: s.now.Add(-time.Hour),
		Outcome:     ledger.OutcomeReviewed,
		RiskTier:    policy.TierHigh,
	}))
	s.sender.alwaysFail = true
	svc := s.newService()
	msg := msgWith("<m12@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	entry, err := s.store.Seen(s.ctx, "<m12@example.com>")
	s.Require().NoError(err)
	s.False(entry.ResponseSent)
}

func (s *ServiceSuite) TestLedgerWriteFailureSurfaces() {
	svc := s.newServiceWith(failingStore{ledger.NewInMemoryStore()})
	msg := msgWith("<m13@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	err := svc.ProcessMessage(s.ctx, msg)
	s.Require().Error(err)
	s.Contains(err.Error(), "<m13@example.com>")
}

func (s *ServiceSuite) TestProcessFile() {
	path := filepath.Join(s.T().TempDir(), "nda.pdf")
	s.Require().NoError(os.WriteFile(path, []byte("raw bytes"), 0o600))
	svc := s.newService()

	s.Run("reviews and ledgers without notifying", func() {
		verdict, err := svc.ProcessFile(s.ctx, path, "")
		s.Require().NoError(err)
		s.True(verdict.IsNDA)
		s.Equal(policy.TierMedium, verdict.RiskTier)
		s.Zero(s.sender.sentCount())

		entries, err := s.store.Recent(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(ledger.OutcomeReviewed, entries[0].Outcome)
		s.False(entries[0].ResponseSent)
	})

	s.Run("notifies when an address is given", func() {
		_, err := svc.ProcessFile(s.ctx, path, "legal@example.com")
		s.Require().NoError(err)
		s.Require().Equal(1, s.sender.sentCount())
		s.Equal("legal@example.com", s.sender.last().To)
	})

	s.Run("missing file surfaces an error", func() {
		_, err := svc.ProcessFile(s.ctx, filepath.Join(s.T().TempDir(), "absent.pdf"), "")
		s.Require().Error(err)
	})
}

func (s *ServiceSuite) TestProcessFileAuditSharesLedgerID() {
	path := filepath.Join(s.T().TempDir(), "nda.pdf")
	s.Require().NoError(os.WriteFile(path, []byte("raw bytes"), 0o600))
	pub := audit.NewPublisher(8, nil)
	svc := s.newServiceWith(s.store, workflow.WithAuditor(pub))

	_, err := svc.ProcessFile(s.ctx, path, "legal@example.com")
	s.Require().NoError(err)

	entries, err := s.store.Recent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(strings.HasPrefix(entries[0].MessageID, "file:"))

	// The response_sent event and the ledger entry describe the same run.
	var sent *audit.Event
drain:
	for {
		select {
		case ev := <-pub.Events():
			if ev.Action == audit.ActionResponseSent {
				sent = &ev
			}
		default:
			break drain
		}
	}
	s.Require().NotNil(sent)
	s.Equal(entries[0].MessageID, sent.MessageID)
}

func (s *ServiceSuite) TestIdempotentAcrossCycles() {
	svc := s.newService()
	msg := msgWith("<m14@example.com>", mail.Attachment{Filename: "nda.pdf", Data: []byte("x")})

	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))
	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))
	s.Require().NoError(svc.ProcessMessage(s.ctx, msg))

	// Exactly one review and one response no matter how often it reappears.
	s.Equal(1, s.parser.calls)
	s.Equal(1, s.sender.sentCount())
	s.Equal(1, s.metrics.processed["reviewed"])
}
