package mail

import (
	"context"
	"time"
)

// RetryPolicy bounds outbound delivery attempts. After exhaustion the
// failure surfaces to the caller; nothing here retries indefinitely.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// OnRetry is invoked before each attempt after the first, for metrics.
	OnRetry func(attempt int)
}

// DefaultRetryPolicy matches the workflow's notification contract: three
// attempts with short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}
}

// SendWithRetry delivers msg, backing off exponentially between attempts.
// Context cancellation wins over the backoff timer; an in-flight Send is
// never aborted, only the wait between attempts.
func SendWithRetry(ctx context.Context, sender Sender, msg OutboundMessage, policy RetryPolicy) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt)
			}
			delay := policy.BaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = sender.Send(ctx, msg); err == nil {
			return nil
		}
	}
	return err
}
