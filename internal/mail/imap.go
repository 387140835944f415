package mail

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	_ "github.com/emersion/go-message/charset"

	"ndaflow/internal/platform/config"
	"ndaflow/pkg/platform/sentinel"
)

// IMAPFetcher reads unseen messages from a single mailbox folder over
// implicit TLS. The connection is established lazily and re-established
// after any protocol error, so a dropped session only costs one cycle.
type IMAPFetcher struct {
	cfg  config.IMAPConfig
	conn *client.Client
}

// NewIMAPFetcher builds a fetcher; no connection is made until first use.
func NewIMAPFetcher(cfg config.IMAPConfig) *IMAPFetcher {
	return &IMAPFetcher{cfg: cfg}
}

func (f *IMAPFetcher) ensureConn() (*client.Client, error) {
	if f.conn != nil {
		return f.conn, nil
	}
	conn, err := client.DialTLS(f.cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %v: %w", f.cfg.Addr, err, sentinel.ErrTransport)
	}
	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		conn.Logout()
		return nil, fmt.Errorf("imap login: %v: %w", err, sentinel.ErrTransport)
	}
	if _, err := conn.Select(f.cfg.Folder, false); err != nil {
		conn.Logout()
		return nil, fmt.Errorf("imap select %s: %v: %w", f.cfg.Folder, err, sentinel.ErrTransport)
	}
	f.conn = conn
	return conn, nil
}

func (f *IMAPFetcher) reset() {
	if f.conn != nil {
		f.conn.Logout()
		f.conn = nil
	}
}

// Unseen fetches every message without the \Seen flag, including envelopes
// and decoded attachments.
func (f *IMAPFetcher) Unseen(ctx context.Context) ([]Message, error) {
	conn, err := f.ensureConn()
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := conn.Search(criteria)
	if err != nil {
		f.reset()
		return nil, fmt.Errorf("imap search: %v: %w", err, sentinel.ErrTransport)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, items, ch)
	}()

	var messages []Message
	for raw := range ch {
		select {
		case <-ctx.Done():
			// Drain so the fetch goroutine can finish, then bail.
			for range ch {
			}
			<-done
			return nil, ctx.Err()
		default:
		}
		msg, err := decodeMessage(raw, section)
		if err != nil {
			// A single undecodable message must not block the rest of the
			// mailbox; it stays unseen and is retried next cycle.
			continue
		}
		messages = append(messages, msg)
	}
	if err := <-done; err != nil {
		f.reset()
		return nil, fmt.Errorf("imap fetch: %v: %w", err, sentinel.ErrTransport)
	}
	return messages, nil
}

// MarkSeen flags the message read by UID so seqnum churn between cycles
// cannot flag the wrong message.
func (f *IMAPFetcher) MarkSeen(_ context.Context, msg Message) error {
	conn, err := f.ensureConn()
	if err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(msg.uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := conn.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		f.reset()
		return fmt.Errorf("imap mark seen %s: %v: %w", msg.ID, err, sentinel.ErrTransport)
	}
	return nil
}

// Close logs out the session if one is open.
func (f *IMAPFetcher) Close() error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Logout()
	f.conn = nil
	return err
}

func decodeMessage(raw *imap.Message, section *imap.BodySectionName) (Message, error) {
	msg := Message{uid: raw.Uid}
	if raw.Envelope != nil {
		msg.ID = raw.Envelope.MessageId
		msg.Subject = raw.Envelope.Subject
		if len(raw.Envelope.From) > 0 {
			msg.Sender = raw.Envelope.From[0].Address()
		}
	}
	msg.ReceivedAt = raw.InternalDate
	if msg.ID == "" {
		return msg, fmt.Errorf("message without Message-ID")
	}

	body := raw.GetBody(section)
	if body == nil {
		return msg, nil
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return msg, fmt.Errorf("create mail reader: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, fmt.Errorf("read mime part: %w", err)
		}
		header, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := header.Filename()
		if err != nil || strings.TrimSpace(filename) == "" {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return msg, fmt.Errorf("read attachment %s: %w", filename, err)
		}
		msg.Attachments = append(msg.Attachments, Attachment{Filename: filename, Data: data})
	}
	return msg, nil
}
