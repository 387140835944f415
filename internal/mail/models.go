package mail

import (
	"context"
	"time"
)

// Attachment is one raw file pulled from an inbound message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is a transient inbound message. It is never persisted beyond its
// ledger entry; ID is the protocol-assigned Message-ID header, which is
// globally unique per mail account and survives process restarts.
type Message struct {
	ID          string
	Sender      string
	Subject     string
	ReceivedAt  time.Time
	Attachments []Attachment

	uid uint32 // IMAP UID, session detail for MarkSeen
}

// OutboundMessage is a composed response ready for the SMTP transport.
type OutboundMessage struct {
	To      string
	Subject string
	Body    string
}

// Fetcher lists and acknowledges inbound messages. Implementations wrap
// failures in sentinel.ErrTransport.
type Fetcher interface {
	// Unseen returns messages not yet flagged read in the watched folder.
	// Dedup against the ledger stays the orchestrator's job: the read flag
	// alone is not trusted because external clients can change it.
	Unseen(ctx context.Context) ([]Message, error)
	MarkSeen(ctx context.Context, msg Message) error
	Close() error
}

// Sender delivers a composed response.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
