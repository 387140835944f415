package workflow

import (
	"context"
	"log/slog"
	"time"

	"ndaflow/internal/mail"
)

// Poller drives watch mode: one sequential cycle per interval against a
// single mailbox session. Cycles never overlap and messages are processed in
// arrival order; the mail session and ledger are not built for concurrent
// mutation, so this loop is the only writer.
type Poller struct {
	service  *Service
	fetcher  mail.Fetcher
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller wires the polling loop.
func NewPoller(service *Service, fetcher mail.Fetcher, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{service: service, fetcher: fetcher, interval: interval, logger: logger}
}

// Run polls until the context is cancelled. Shutdown is observed between
// cycles and between messages: an in-flight message completes before the
// loop exits, a send is never aborted mid-flight. The sleep is a fixed
// interval regardless of how long the cycle took.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "polling started", "interval", p.interval.String())
	for {
		p.cycle(ctx)
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "polling stopped")
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	p.logger.DebugContext(ctx, "polling cycle", "state", StatePolling)

	messages, err := p.fetcher.Unseen(ctx)
	if err != nil {
		// Transport trouble costs this cycle only; the next one redials.
		p.logger.WarnContext(ctx, "fetch unseen failed", "error", err)
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if err := p.service.ProcessMessage(ctx, msg); err != nil {
			// Ledger write failures leave the message unprocessed on
			// purpose: it will be picked up again next cycle.
			p.logger.ErrorContext(ctx, "message processing failed",
				"message_id", msg.ID,
				"error", err,
			)
			continue
		}
		// Read-flag upkeep is cosmetic; the ledger is the dedup authority.
		if err := p.fetcher.MarkSeen(ctx, msg); err != nil {
			p.logger.WarnContext(ctx, "mark seen failed", "message_id", msg.ID, "error", err)
		}
	}
}
