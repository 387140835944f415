package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "ndaflow:seen:"

// SeenCache fronts a durable Store with Redis so the hot idempotency lookup
// in every polling cycle avoids the backing store. Writes go through to the
// inner store first; the cache is populated only after the durable write
// succeeds, so a cache entry never exists for an unledgered message.
type SeenCache struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
}

// NewSeenCache decorates a store with a Redis lookup cache.
func NewSeenCache(inner Store, client *redis.Client, ttl time.Duration) *SeenCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SeenCache{inner: inner, client: client, ttl: ttl}
}

func (c *SeenCache) Seen(ctx context.Context, messageID string) (*Entry, error) {
	data, err := c.client.Get(ctx, seenKeyPrefix+messageID).Bytes()
	if err == nil {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err == nil {
			return &entry, nil
		}
		// Corrupt cache value: fall through to the durable store.
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not block dedup; the inner store decides.
		return c.inner.Seen(ctx, messageID)
	}

	entry, err := c.inner.Seen(ctx, messageID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, entry)
	return entry, nil
}

func (c *SeenCache) Append(ctx context.Context, entry Entry) error {
	if err := c.inner.Append(ctx, entry); err != nil {
		return err
	}
	c.put(ctx, &entry)
	return nil
}

func (c *SeenCache) MarkResponseSent(ctx context.Context, messageID string) error {
	if err := c.inner.MarkResponseSent(ctx, messageID); err != nil {
		return err
	}
	if entry, err := c.inner.Seen(ctx, messageID); err == nil {
		c.put(ctx, entry)
	}
	return nil
}

func (c *SeenCache) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return c.inner.Recent(ctx, limit)
}

func (c *SeenCache) put(ctx context.Context, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Best effort; a failed cache write only costs a store lookup later.
	_ = c.client.Set(ctx, seenKeyPrefix+entry.MessageID, data, c.ttl).Err()
}
