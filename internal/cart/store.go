package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an untouched cart survives.
const DefaultTTL = 7 * 24 * time.Hour

// Store persists carts.
type Store interface {
	Load(ctx context.Context, id string) (Cart, error)
	Save(ctx context.Context, c Cart) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps each cart as a JSON value that expires after TTL.
type RedisStore struct {
	Client redis.Cmdable
	Prefix string
	TTL    time.Duration
}

// NewRedisStore constructs a store with default prefix and TTL.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{Client: client, Prefix: "cart:", TTL: DefaultTTL}
}

func (s *RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + id
}

func (s *RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

// Load returns ErrNotFound when the cart expired or never existed.
func (s *RedisStore) Load(ctx context.Context, id string) (Cart, error) {
	if s == nil || s.Client == nil {
		return Cart{}, errors.New("cart store not configured")
	}
	data, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// Save writes c and refreshes its expiry.
func (s *RedisStore) Save(ctx context.Context, c Cart) error {
	if s == nil || s.Client == nil {
		return errors.New("cart store not configured")
	}
	if c.ID == "" {
		return fmt.Errorf("%w: cart id required", ErrInvalidInput)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.Client.Set(ctx, s.key(c.ID), data, s.ttl()).Err()
}

// Delete removes the cart. Missing carts are not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.Client == nil {
		return errors.New("cart store not configured")
	}
	return s.Client.Del(ctx, s.key(id)).Err()
}
