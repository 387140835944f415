package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ndaflow/internal/policy"
	"ndaflow/pkg/platform/sentinel"
)

// PostgresStore persists ledger entries in PostgreSQL for deployments where
// several operators need to inspect the same intake history. Uses
// database/sql over the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS processed_messages (
			message_id    TEXT PRIMARY KEY,
			processed_at  TIMESTAMPTZ NOT NULL,
			outcome       TEXT NOT NULL,
			risk_tier     TEXT,
			response_sent BOOLEAN NOT NULL DEFAULT FALSE
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Seen(ctx context.Context, messageID string) (*Entry, error) {
	query := `
		SELECT message_id, processed_at, outcome, risk_tier, response_sent
		FROM processed_messages WHERE message_id = $1
	`
	var entry Entry
	var tier sql.NullString
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(
		&entry.MessageID, &entry.ProcessedAt, &entry.Outcome, &tier, &entry.ResponseSent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger entry %s: %w", messageID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup ledger entry: %w", err)
	}
	if tier.Valid {
		entry.RiskTier = policy.Tier(tier.String)
	}
	return &entry, nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO processed_messages (message_id, processed_at, outcome, risk_tier, response_sent)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (message_id) DO UPDATE SET
			processed_at  = EXCLUDED.processed_at,
			outcome       = EXCLUDED.outcome,
			risk_tier     = EXCLUDED.risk_tier,
			response_sent = EXCLUDED.response_sent
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.MessageID, entry.ProcessedAt, entry.Outcome, string(entry.RiskTier), entry.ResponseSent,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry %s: %v: %w", entry.MessageID, err, sentinel.ErrLedgerWrite)
	}
	return nil
}

func (s *PostgresStore) MarkResponseSent(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE processed_messages SET response_sent = TRUE WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("mark response sent %s: %v: %w", messageID, err, sentinel.ErrLedgerWrite)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("ledger entry %s: %w", messageID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT message_id, processed_at, outcome, risk_tier, response_sent
		FROM processed_messages ORDER BY processed_at DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var tier sql.NullString
		if err := rows.Scan(&entry.MessageID, &entry.ProcessedAt, &entry.Outcome, &tier, &entry.ResponseSent); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if tier.Valid {
			entry.RiskTier = policy.Tier(tier.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
