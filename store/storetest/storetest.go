// Package storetest is a conformance suite for store.CredentialStore
// implementations. Each backend runs it from its own tests.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/clients"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds an empty store that reads time from now.
type Factory func(t *testing.T, now func() time.Time) store.CredentialStore

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("State", func(t *testing.T) { testState(t, newStore) })
	t.Run("Code", func(t *testing.T) { testCode(t, newStore) })
	t.Run("ConcurrentTakeCode", func(t *testing.T) { testConcurrentTakeCode(t, newStore) })
	t.Run("AccessToken", func(t *testing.T) { testAccessToken(t, newStore) })
	t.Run("RefreshToken", func(t *testing.T) { testRefreshToken(t, newStore) })
	t.Run("Client", func(t *testing.T) { testClient(t, newStore) })
	t.Run("Verification", func(t *testing.T) { testVerification(t, newStore) })
	t.Run("ConcurrentUpdateVerification", func(t *testing.T) { testConcurrentUpdate(t, newStore) })
	t.Run("SweepExpired", func(t *testing.T) { testSweep(t, newStore) })
}

func setup(t *testing.T, newStore Factory) (store.CredentialStore, *Clock) {
	t.Helper()
	clock := NewClock()
	s := newStore(t, clock.Now)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func testState(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)

	t.Run("generated id round trip", func(t *testing.T) {
		id, err := s.PutState(ctx, &store.StateEntry{ClientID: "c1", Scopes: []string{"read"}}, time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := s.TakeState(ctx, id)
		require.NoError(t, err)
		require.Equal(t, id, got.State)
		require.Equal(t, "c1", got.ClientID)
		require.Equal(t, []string{"read"}, got.Scopes)
		require.True(t, got.ExpiresAt.Equal(clock.Now().Add(time.Minute)))

		_, err = s.TakeState(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate live state", func(t *testing.T) {
		_, err := s.PutState(ctx, &store.StateEntry{State: "fixed"}, time.Minute)
		require.NoError(t, err)
		_, err = s.PutState(ctx, &store.StateEntry{State: "fixed"}, time.Minute)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("expired one second after expiry", func(t *testing.T) {
		id, err := s.PutState(ctx, &store.StateEntry{}, time.Minute)
		require.NoError(t, err)
		clock.Advance(time.Minute + time.Second)
		_, err = s.TakeState(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		_, err := s.PutState(ctx, &store.StateEntry{}, 0)
		require.ErrorIs(t, err, store.ErrInvalidRecord)
	})
}

func testCode(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)

	code := &store.AuthorizationCode{
		Code:                "code-1",
		ClientID:            "c1",
		Scopes:              []string{"read", "write"},
		CodeChallenge:       "challenge",
		RedirectURI:         "https://app.test/cb",
		RedirectURIExplicit: true,
		Resource:            "https://api.test",
	}
	require.NoError(t, s.PutCode(ctx, code, 5*time.Minute))

	got, err := s.TakeCode(ctx, "code-1")
	require.NoError(t, err)
	require.Equal(t, code.ClientID, got.ClientID)
	require.Equal(t, code.Scopes, got.Scopes)
	require.Equal(t, code.RedirectURI, got.RedirectURI)
	require.True(t, got.RedirectURIExplicit)
	require.Equal(t, code.Resource, got.Resource)

	_, err = s.TakeCode(ctx, "code-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.TakeCode(ctx, "never-issued")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutCode(ctx, &store.AuthorizationCode{Code: "code-2"}, 5*time.Minute))
	clock.Advance(5*time.Minute + time.Second)
	_, err = s.TakeCode(ctx, "code-2")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, s.PutCode(ctx, &store.AuthorizationCode{}, time.Minute), store.ErrInvalidRecord)
}

func testConcurrentTakeCode(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, _ := setup(t, newStore)

	const attempts = 20
	require.NoError(t, s.PutCode(ctx, &store.AuthorizationCode{Code: "race"}, time.Minute))

	var wins, misses atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.TakeCode(ctx, "race")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrNotFound):
				misses.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(attempts-1), misses.Load())
}

func testAccessToken(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)

	tok := &store.AccessToken{
		Token:     "at-1",
		ClientID:  "c1",
		Scopes:    []string{"read"},
		Resource:  "https://api.test/mcp",
		ExpiresAt: clock.Now().Add(time.Hour),
	}
	require.NoError(t, s.PutToken(ctx, tok))

	got, err := s.GetToken(ctx, "at-1")
	require.NoError(t, err)
	require.Equal(t, "c1", got.ClientID)
	require.Equal(t, []string{"read"}, got.Scopes)
	require.Equal(t, "https://api.test/mcp", got.Resource)
	require.False(t, got.CreatedAt.IsZero())

	got.Scopes[0] = "mutated"
	again, err := s.GetToken(ctx, "at-1")
	require.NoError(t, err)
	require.Equal(t, []string{"read"}, again.Scopes)

	require.NoError(t, s.DeleteToken(ctx, "at-1"))
	require.NoError(t, s.DeleteToken(ctx, "at-1"))
	_, err = s.GetToken(ctx, "at-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	t.Run("non-expiring", func(t *testing.T) {
		require.NoError(t, s.PutToken(ctx, &store.AccessToken{Token: "forever", ClientID: "c1"}))
		clock.Advance(1000 * time.Hour)
		_, err := s.GetToken(ctx, "forever")
		require.NoError(t, err)
	})

	t.Run("expired one second after expiry", func(t *testing.T) {
		require.NoError(t, s.PutToken(ctx, &store.AccessToken{Token: "short", ExpiresAt: clock.Now().Add(time.Minute)}))
		clock.Advance(time.Minute + time.Second)
		_, err := s.GetToken(ctx, "short")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testRefreshToken(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)

	rt := &store.RefreshToken{
		Token:     "rt-1",
		ClientID:  "c1",
		Scopes:    []string{"offline_access", "read"},
		UserID:    "u1",
		ExpiresAt: clock.Now().Add(24 * time.Hour),
	}
	require.NoError(t, s.PutRefreshToken(ctx, rt))

	got, err := s.GetRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)

	taken, err := s.TakeRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, rt.Scopes, taken.Scopes)

	_, err = s.TakeRefreshToken(ctx, "rt-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetRefreshToken(ctx, "rt-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutRefreshToken(ctx, &store.RefreshToken{Token: "rt-2", ExpiresAt: clock.Now().Add(time.Hour)}))
	require.NoError(t, s.DeleteRefreshToken(ctx, "rt-2"))
	require.NoError(t, s.DeleteRefreshToken(ctx, "rt-2"))
	_, err = s.GetRefreshToken(ctx, "rt-2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testClient(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, _ := setup(t, newStore)

	c := &clients.Client{
		ID:                      "client-1",
		Type:                    clients.ClientTypeConfidential,
		Secret:                  "s3cret",
		RedirectURIs:            []string{"https://app.test/cb"},
		GrantTypes:              []string{clients.GrantAuthorizationCode},
		Scopes:                  []string{"read"},
		TokenEndpointAuthMethod: clients.AuthMethodSecretBasic,
	}
	require.NoError(t, s.PutClient(ctx, c))

	got, err := s.GetClient(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, c.Secret, got.Secret)
	require.Equal(t, c.RedirectURIs, got.RedirectURIs)
	require.Equal(t, c.TokenEndpointAuthMethod, got.TokenEndpointAuthMethod)

	got.RedirectURIs[0] = "https://evil.test/cb"
	again, err := s.GetClient(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://app.test/cb"}, again.RedirectURIs)

	require.NoError(t, s.DeleteClient(ctx, "client-1"))
	_, err = s.GetClient(ctx, "client-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testVerification(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)
	const id = "sign-in-otp:user@example.com"

	put := func(value string) {
		t.Helper()
		require.NoError(t, s.PutVerification(ctx, &store.VerificationRecord{
			Identifier: id,
			Value:      value,
			ExpiresAt:  clock.Now().Add(5 * time.Minute),
		}))
	}

	t.Run("upsert supersedes", func(t *testing.T) {
		put("first")
		put("second")
		got, err := s.GetVerification(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "second", got.Value)
		require.Zero(t, got.Attempts)
	})

	t.Run("update keep persists mutation", func(t *testing.T) {
		put("v")
		err := s.UpdateVerification(ctx, id, func(rec *store.VerificationRecord) (store.Action, error) {
			rec.Attempts++
			return store.Keep, nil
		})
		require.NoError(t, err)
		got, err := s.GetVerification(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 1, got.Attempts)
		require.Equal(t, "v", got.Value)
	})

	t.Run("update delete removes", func(t *testing.T) {
		put("v")
		err := s.UpdateVerification(ctx, id, func(*store.VerificationRecord) (store.Action, error) {
			return store.Delete, nil
		})
		require.NoError(t, err)
		_, err = s.GetVerification(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update error leaves record unchanged", func(t *testing.T) {
		put("v")
		boom := errors.New("boom")
		err := s.UpdateVerification(ctx, id, func(rec *store.VerificationRecord) (store.Action, error) {
			rec.Attempts = 99
			return store.Keep, boom
		})
		require.ErrorIs(t, err, boom)
		got, err := s.GetVerification(ctx, id)
		require.NoError(t, err)
		require.Zero(t, got.Attempts)
	})

	t.Run("update missing", func(t *testing.T) {
		err := s.UpdateVerification(ctx, "missing", func(*store.VerificationRecord) (store.Action, error) {
			t.Fatal("callback must not run for a missing record")
			return store.Keep, nil
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("take once", func(t *testing.T) {
		put("token")
		got, err := s.TakeVerification(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "token", got.Value)
		_, err = s.TakeVerification(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired one second after expiry", func(t *testing.T) {
		put("v")
		clock.Advance(5*time.Minute + time.Second)
		_, err := s.GetVerification(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
		err = s.UpdateVerification(ctx, id, func(*store.VerificationRecord) (store.Action, error) {
			return store.Keep, nil
		})
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.TakeVerification(ctx, id)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.DeleteVerification(ctx, id))
		require.NoError(t, s.DeleteVerification(ctx, id))
	})
}

func testConcurrentUpdate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)
	const id = "sign-in-otp:race@example.com"
	const workers = 8

	require.NoError(t, s.PutVerification(ctx, &store.VerificationRecord{
		Identifier: id,
		Value:      "v",
		ExpiresAt:  clock.Now().Add(time.Minute),
	}))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpdateVerification(ctx, id, func(rec *store.VerificationRecord) (store.Action, error) {
				rec.Attempts++
				return store.Keep, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetVerification(ctx, id)
	require.NoError(t, err)
	require.Equal(t, workers, got.Attempts)
}

func testSweep(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s, clock := setup(t, newStore)
	exp := clock.Now().Add(time.Minute)

	_, err := s.PutState(ctx, &store.StateEntry{State: "st"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.PutCode(ctx, &store.AuthorizationCode{Code: "cd"}, time.Minute))
	require.NoError(t, s.PutToken(ctx, &store.AccessToken{Token: "at", ExpiresAt: exp}))
	require.NoError(t, s.PutRefreshToken(ctx, &store.RefreshToken{Token: "rt", ExpiresAt: exp}))
	require.NoError(t, s.PutVerification(ctx, &store.VerificationRecord{Identifier: "v", ExpiresAt: exp}))
	require.NoError(t, s.PutToken(ctx, &store.AccessToken{Token: "live", ExpiresAt: exp.Add(time.Hour)}))

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(2 * time.Minute)
	n, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = s.GetToken(ctx, "live")
	require.NoError(t, err)
}
