package memory_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/memory"
	"github.com/jrsteele09/go-auth-core/store/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.CredentialStore {
		return memory.New(memory.WithNowFunc(now))
	})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBackgroundCleanup(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock()
	out := &syncBuffer{}
	s := memory.New(
		memory.WithNowFunc(clock.Now),
		memory.WithCleanupInterval(10*time.Millisecond),
		memory.WithLogger(zerolog.New(out).Level(zerolog.DebugLevel)),
	)
	defer s.Close()

	require.NoError(t, s.PutToken(ctx, &store.AccessToken{Token: "t", ExpiresAt: clock.Now().Add(time.Second)}))
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "swept expired entries")
	}, 2*time.Second, 10*time.Millisecond)

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := memory.New(memory.WithCleanupInterval(time.Hour))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
