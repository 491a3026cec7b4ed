package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-rolepricing/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerialisesWriters(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "settings", time.Second, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "settings", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:settings"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("lock:settings"))
}

func TestWithLockHonoursContext(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set("lock:settings", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "settings", time.Second, func(context.Context) error {
		t.Fatal("callback must not run while the lock is held elsewhere")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLockNotConfigured(t *testing.T) {
	err := lock.Locker{}.WithLock(context.Background(), "x", time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNotConfigured)
}
