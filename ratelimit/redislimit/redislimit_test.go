package redislimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/ratelimit/redislimit"
	"github.com/jrsteele09/go-auth-core/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*redislimit.Limiter, *miniredis.Miniredis, *storetest.Clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	clock := storetest.NewClock()
	return redislimit.New(client, redislimit.WithNowFunc(clock.Now)), mr, clock
}

func TestSlidingWindow(t *testing.T) {
	ctx := context.Background()
	l, mr, clock := setup(t)

	for i := 0; i < 3; i++ {
		d, err := l.CheckAndRecord(ctx, "jane@example.com", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		clock.Advance(10 * time.Second)
	}
	require.True(t, mr.Exists(redislimit.DefaultKeyPrefix+"jane@example.com"))

	d, err := l.CheckAndRecord(ctx, "jane@example.com", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 30*time.Second, d.RetryAfter)

	clock.Advance(30 * time.Second)
	d, err = l.CheckAndRecord(ctx, "jane@example.com", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestNonPositiveMax(t *testing.T) {
	l, _, _ := setup(t)
	d, err := l.CheckAndRecord(context.Background(), "id", time.Minute, 0)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, time.Minute, d.RetryAfter)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	l, _, _ := setup(t)

	_, err := l.CheckAndRecord(ctx, "id", time.Hour, 1)
	require.NoError(t, err)
	d, err := l.CheckAndRecord(ctx, "id", time.Hour, 1)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, l.Reset(ctx, "id"))
	d, err = l.CheckAndRecord(ctx, "id", time.Hour, 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestConcurrentCallersShareTheLimit(t *testing.T) {
	ctx := context.Background()
	l, _, _ := setup(t)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndRecord(ctx, "shared", time.Hour, 5)
			assert.NoError(t, err)
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(5), allowed.Load())
}

func TestBackendDown(t *testing.T) {
	l, mr, _ := setup(t)
	mr.Close()

	_, err := l.CheckAndRecord(context.Background(), "id", time.Minute, 3)
	require.ErrorIs(t, err, errs.ErrUnavailable)
	require.ErrorIs(t, l.Reset(context.Background(), "id"), errs.ErrUnavailable)
}
