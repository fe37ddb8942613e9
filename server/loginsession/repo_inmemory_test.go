package loginsession_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/server/loginsession"
	"github.com/jrsteele09/go-auth-core/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := storetest.NewClock()
	repo := loginsession.NewInMemoryLoginSessionRepo(30*time.Minute, loginsession.WithNowFunc(clock.Now))

	_, err := repo.Create(ctx, loginsession.Session{})
	require.Error(t, err)

	s, err := repo.Create(ctx, loginsession.Session{UserID: "user-1", Email: "jane@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, clock.Now().Add(30*time.Minute), s.ExpiresAt)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s, got)

	clock.Advance(30 * time.Minute)
	_, err = repo.Get(ctx, s.ID)
	require.ErrorIs(t, err, loginsession.ErrNotFound)
	require.Equal(t, 1, repo.Sweep())

	s, err = repo.Create(ctx, loginsession.Session{UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, s.ID))
	require.NoError(t, repo.Delete(ctx, s.ID))
	_, err = repo.Get(ctx, "")
	require.ErrorIs(t, err, loginsession.ErrNotFound)
}
