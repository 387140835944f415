package ledger

import (
	"context"
	"time"

	"ndaflow/internal/policy"
)

// Outcome records how a message left the workflow.
type Outcome string

const (
	// OutcomeNonNDA: attachment parsed but detection said not an NDA.
	OutcomeNonNDA Outcome = "non_nda"
	// OutcomeReviewed: full clause review completed.
	OutcomeReviewed Outcome = "reviewed"
	// OutcomeFailed: seen-but-failed; recorded so a permanently broken
	// attachment is never reprocessed forever.
	OutcomeFailed Outcome = "failed"
)

// Entry is the durable record preventing re-processing of a message across
// polling cycles and restarts. Keyed by the protocol-assigned message id.
type Entry struct {
	MessageID    string      `json:"message_id"`
	ProcessedAt  time.Time   `json:"processed_at"`
	Outcome      Outcome     `json:"outcome"`
	RiskTier     policy.Tier `json:"risk_tier,omitempty"`
	ResponseSent bool        `json:"response_sent"`
}

// Store is the append-only processing ledger.
//
// Error contract:
// - Seen returns sentinel.ErrNotFound (wrapped) when the id is absent
// - write failures wrap sentinel.ErrLedgerWrite; the caller must not treat
//   the message as processed until Append succeeds
type Store interface {
	Seen(ctx context.Context, messageID string) (*Entry, error)
	Append(ctx context.Context, entry Entry) error
	MarkResponseSent(ctx context.Context, messageID string) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
