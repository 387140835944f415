package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"ndaflow/pkg/platform/sentinel"
)

// FileStore is the default durable ledger: one JSON document per line,
// append-only, fsynced per write. Updates (response_sent) are expressed as a
// re-appended entry; replay takes the last record per message id, so the
// file stays a faithful history while lookups see current state.
type FileStore struct {
	mu      sync.Mutex
	file    *os.File
	entries map[string]*Entry
}

// OpenFileStore opens or creates the ledger file and replays it into memory.
func OpenFileStore(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	entries := make(map[string]*Entry)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			file.Close()
			return nil, fmt.Errorf("ledger %s line %d: %w", path, line, err)
		}
		entries[entry.MessageID] = &entry
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("replay ledger %s: %w", path, err)
	}

	return &FileStore{file: file, entries: entries}, nil
}

func (s *FileStore) Seen(_ context.Context, messageID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[messageID]; ok {
		copied := *entry
		return &copied, nil
	}
	return nil, fmt.Errorf("ledger entry %s: %w", messageID, sentinel.ErrNotFound)
}

func (s *FileStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(&entry); err != nil {
		return err
	}
	s.entries[entry.MessageID] = &entry
	return nil
}

func (s *FileStore) MarkResponseSent(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[messageID]
	if !ok {
		return fmt.Errorf("ledger entry %s: %w", messageID, sentinel.ErrNotFound)
	}
	updated := *entry
	updated.ResponseSent = true
	if err := s.writeLocked(&updated); err != nil {
		return err
	}
	s.entries[messageID] = &updated
	return nil
}

func (s *FileStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProcessedAt.After(entries[j].ProcessedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close releases the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// writeLocked appends one record and forces it to disk. The fsync is what
// makes the at-most-once guarantee hold across a crash.
func (s *FileStore) writeLocked(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", sentinel.ErrLedgerWrite)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger entry %s: %v: %w", entry.MessageID, err, sentinel.ErrLedgerWrite)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %v: %w", err, sentinel.ErrLedgerWrite)
	}
	return nil
}
