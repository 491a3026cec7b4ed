package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-rolepricing/internal/lock"
)

// DefaultKey is the Redis key holding the settings document.
const DefaultKey = "rolepricing:settings"

// Store persists the settings document.
type Store interface {
	// Load returns the stored document. found is false when nothing was saved yet.
	Load(ctx context.Context) (doc Document, found bool, err error)
	// Update applies fn to the current document and persists the result.
	Update(ctx context.Context, fn func(*Document) error) error
}

// RedisStore keeps the settings document as a JSON value in Redis.
type RedisStore struct {
	Client  redis.Cmdable
	Key     string
	Locker  lock.Locker
	LockTTL time.Duration
}

// NewRedisStore builds a store that guards writes with a lock on the same client.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{
		Client:  client,
		Key:     key,
		Locker:  lock.Locker{R: client, RetryBackoff: 20 * time.Millisecond},
		LockTTL: 5 * time.Second,
	}
}

// Load reads and decodes the document.
func (s *RedisStore) Load(ctx context.Context) (Document, bool, error) {
	if s == nil || s.Client == nil {
		return Document{}, false, errors.New("roles store not configured")
	}
	data, err := s.Client.Get(ctx, s.Key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("load settings: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return doc, true, nil
}

// Update performs a locked read-modify-write of the document.
func (s *RedisStore) Update(ctx context.Context, fn func(*Document) error) error {
	if s == nil || s.Client == nil {
		return errors.New("roles store not configured")
	}
	return s.Locker.WithLock(ctx, s.Key, s.LockTTL, func(ctx context.Context) error {
		doc, _, err := s.Load(ctx)
		if err != nil {
			return err
		}
		doc = doc.Clone()
		if err := fn(&doc); err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		if err := s.Client.Set(ctx, s.Key, data, 0).Err(); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
}
