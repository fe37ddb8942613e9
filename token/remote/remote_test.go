package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/jrsteele09/go-auth-core/token/remote"
	"github.com/stretchr/testify/require"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		ok       bool
	}{
		{"https://auth.example.com/oauth/introspect", true},
		{"http://localhost:8080/oauth/introspect", true},
		{"http://127.0.0.1/introspect", true},
		{"http://[::1]:9000/introspect", true},
		{"http://auth.example.com/oauth/introspect", false},
		{"http://localhost.evil.test/introspect", false},
		{"ftp://auth.example.com/introspect", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			err := remote.ValidateEndpoint(tt.endpoint)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errs.ErrInvalidConfig)
		})
	}

	_, err := remote.New("http://auth.example.com/introspect", "rs", "secret")
	require.ErrorIs(t, err, remote.ErrInsecureEndpoint)
}

func introspectionServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL + "/oauth/introspect"
}

func newVerifier(t *testing.T, endpoint string) *remote.Verifier {
	t.Helper()
	v, err := remote.New(endpoint, "resource-server", "rs-secret",
		remote.WithBackOff(backoff.NewConstantBackOff(time.Millisecond)),
		remote.WithMaxRetries(2),
	)
	require.NoError(t, err)
	return v
}

func TestVerifyToken(t *testing.T) {
	endpoint := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "resource-server" || pass != "rs-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("token") != "good" {
			_ = json.NewEncoder(w).Encode(token.Introspection{Active: false})
			return
		}
		_ = json.NewEncoder(w).Encode(token.Introspection{
			Active:   true,
			ClientID: "app",
			Scope:    "read write",
			Exp:      time.Now().Add(time.Hour).Unix(),
			Aud:      "https://mcp.example.com/mcp",
			Sub:      "user-1",
		})
	})
	v := newVerifier(t, endpoint)
	ctx := context.Background()

	at, err := v.VerifyToken(ctx, "good", "https://mcp.example.com/mcp/tools", true)
	require.NoError(t, err)
	require.Equal(t, "app", at.ClientID)
	require.Equal(t, []string{"read", "write"}, at.Scopes)
	require.Equal(t, "user-1", at.UserID)

	_, err = v.VerifyToken(ctx, "good", "https://elsewhere.example.com", true)
	require.ErrorIs(t, err, token.ErrAudienceMismatch)

	_, err = v.VerifyToken(ctx, "good", "https://elsewhere.example.com", false)
	require.NoError(t, err)

	_, err = v.VerifyToken(ctx, "bad", "", false)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = v.VerifyToken(ctx, "", "", false)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	endpoint := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"client_id":"app"}`))
	})
	v := newVerifier(t, endpoint)

	info, err := v.Introspect(context.Background(), "tok")
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAsUnavailable(t *testing.T) {
	var calls atomic.Int32
	endpoint := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	v := newVerifier(t, endpoint)

	_, err := v.VerifyToken(context.Background(), "tok", "", false)
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, int32(3), calls.Load())
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	endpoint := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	v := newVerifier(t, endpoint)

	_, err := v.Introspect(context.Background(), "tok")
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	require.Equal(t, int32(1), calls.Load())
}

func TestVerifyTokenAudienceArray(t *testing.T) {
	endpoint := introspectionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"client_id":"c1","scope":"read","aud":["https://mcp.example.com/mcp","https://other.example.com"]}`))
	})
	v := newVerifier(t, endpoint)

	at, err := v.VerifyToken(context.Background(), "good", "https://mcp.example.com/mcp", true)
	require.NoError(t, err)
	require.Equal(t, "https://mcp.example.com/mcp", at.Resource)
	require.Equal(t, []string{"read"}, at.Scopes)
}
