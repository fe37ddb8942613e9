package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/sqlitestore"
	"github.com/jrsteele09/go-auth-core/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.CredentialStore {
		s, err := sqlitestore.New(context.Background(), filepath.Join(t.TempDir(), "auth.db"), sqlitestore.WithNowFunc(now))
		require.NoError(t, err)
		return s
	})
}

func TestRecordsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	s, err := sqlitestore.New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutToken(ctx, &store.AccessToken{Token: "durable", ClientID: "c1", Scopes: []string{"read"}}))
	require.NoError(t, s.Close())

	reopened, err := sqlitestore.New(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetToken(ctx, "durable")
	require.NoError(t, err)
	require.Equal(t, "c1", got.ClientID)
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := sqlitestore.New(ctx, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetToken(ctx, "x")
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.NotErrorIs(t, err, store.ErrNotFound)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := sqlitestore.New(context.Background(), "")
	require.Error(t, err)
}
