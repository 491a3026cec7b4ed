package interop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultInvalidationChannel carries eligibility invalidations between processes.
const DefaultInvalidationChannel = "rolepricing:eligibility:invalidate"

const (
	purgeAllMessage = "*"
	userPrefix      = "user:"
)

// Invalidations drops cached eligibility locally and tells every other API replica
// and worker sharing the Redis instance to do the same.
type Invalidations struct {
	Client  *redis.Client
	Channel string
	Layer   *Layer
	Logger  zerolog.Logger
}

func (i *Invalidations) channel() string {
	if i.Channel != "" {
		return i.Channel
	}
	return DefaultInvalidationChannel
}

// Purge drops every cached eligibility, e.g. after a settings write.
func (i *Invalidations) Purge(ctx context.Context) {
	i.Layer.Purge()
	i.publish(ctx, purgeAllMessage)
}

// InvalidateUser drops the cached eligibility of userID.
func (i *Invalidations) InvalidateUser(ctx context.Context, userID string) {
	i.Layer.InvalidateUser(userID)
	i.publish(ctx, userPrefix+userID)
}

func (i *Invalidations) publish(ctx context.Context, msg string) {
	if i.Client == nil {
		return
	}
	if err := i.Client.Publish(ctx, i.channel(), msg).Err(); err != nil {
		i.Logger.Warn().Err(err).Str("message", msg).Msg("eligibility invalidation not broadcast, peers expire on ttl")
	}
}

// Start subscribes to the invalidation channel and applies incoming messages until
// ctx is done. It returns once the subscription is confirmed.
func (i *Invalidations) Start(ctx context.Context) error {
	if i.Client == nil {
		return errors.New("invalidations: redis client not configured")
	}
	sub := i.Client.Subscribe(ctx, i.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", i.channel(), err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				i.apply(msg.Payload)
			}
		}
	}()
	return nil
}

func (i *Invalidations) apply(payload string) {
	switch {
	case payload == purgeAllMessage:
		i.Layer.Purge()
	case strings.HasPrefix(payload, userPrefix):
		i.Layer.InvalidateUser(strings.TrimPrefix(payload, userPrefix))
	default:
		i.Logger.Debug().Str("message", payload).Msg("unknown invalidation message ignored")
	}
}
