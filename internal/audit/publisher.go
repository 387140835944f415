package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher buffers audit events for background persistence. This trail is
// ops-grade, not compliance-grade: when the buffer is full the event is
// dropped and counted rather than blocking message processing.
type Publisher struct {
	inbox  chan Event
	onDrop func()
}

// NewPublisher creates a publisher with the given buffer size. onDrop may be
// nil; when set it is called once per dropped event.
func NewPublisher(buffer int, onDrop func()) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{inbox: make(chan Event, buffer), onDrop: onDrop}
}

// Emit queues an event, assigning id and timestamp when unset. Never blocks.
// Safe to call on a nil publisher so wiring stays optional.
func (p *Publisher) Emit(_ context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		if p.onDrop != nil {
			p.onDrop()
		}
	}
}

// Events exposes the queue for the worker.
func (p *Publisher) Events() <-chan Event { return p.inbox }
