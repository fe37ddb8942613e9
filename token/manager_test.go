package token_test

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/memory"
	"github.com/jrsteele09/go-auth-core/store/mocks"
	"github.com/jrsteele09/go-auth-core/store/storetest"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newManager(t *testing.T, opts ...token.ManagerOption) (*token.Manager, *storetest.Clock) {
	t.Helper()
	clock := storetest.NewClock()
	s := memory.New(memory.WithNowFunc(clock.Now))
	t.Cleanup(func() { _ = s.Close() })
	opts = append([]token.ManagerOption{token.WithNowFunc(clock.Now)}, opts...)
	return token.New(s, opts...), clock
}

var grant = token.Grant{
	ClientID: "app",
	Scopes:   []string{"read", "write", "read"},
	Resource: "https://mcp.example.com/mcp",
	UserID:   "user-1",
}

func TestIssueAndIntrospect(t *testing.T) {
	ctx := context.Background()
	m, clock := newManager(t)

	at, rt, err := m.IssueTokens(ctx, grant, true)
	require.NoError(t, err)
	require.NotNil(t, rt)
	require.Equal(t, rt.Token, at.RefreshToken)
	require.Equal(t, at.Token, rt.AccessToken)
	require.Equal(t, []string{"read", "write"}, at.Scopes)
	require.Equal(t, clock.Now().Add(token.DefaultAccessTokenTTL), at.ExpiresAt)

	info, err := m.Introspect(ctx, at.Token, "")
	require.NoError(t, err)
	require.Equal(t, &token.Introspection{
		Active:    true,
		ClientID:  "app",
		Scope:     "read write",
		Exp:       at.ExpiresAt.Unix(),
		Iat:       clock.Now().Unix(),
		TokenType: "access_token",
		Aud:       "https://mcp.example.com/mcp",
		Sub:       "user-1",
	}, info)

	info, err = m.Introspect(ctx, rt.Token, oauth2.RefreshTokenHint)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, "refresh_token", info.TokenType)

	t.Run("expires at absolute time", func(t *testing.T) {
		clock.Advance(token.DefaultAccessTokenTTL + time.Second)
		info, err := m.Introspect(ctx, at.Token, "")
		require.NoError(t, err)
		require.Equal(t, &token.Introspection{Active: false}, info)
	})
}

func TestIntrospectInactiveInputs(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	for _, raw := range []string{"", "   ", "garbage", "!!not-a-token!!"} {
		info, err := m.Introspect(ctx, raw, "")
		require.NoError(t, err)
		require.False(t, info.Active, raw)
	}
}

func TestClientCredentialsSubject(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	at, err := m.IssueAccessToken(ctx, token.Grant{ClientID: "svc", Scopes: []string{"jobs"}})
	require.NoError(t, err)
	require.Empty(t, at.RefreshToken)

	info, err := m.Introspect(ctx, at.Token, "")
	require.NoError(t, err)
	require.Equal(t, "svc", info.Sub)
}

func TestNonExpiringAccessToken(t *testing.T) {
	ctx := context.Background()
	m, clock := newManager(t, token.WithAccessTokenTTL(-1))

	at, err := m.IssueAccessToken(ctx, grant)
	require.NoError(t, err)
	require.True(t, at.ExpiresAt.IsZero())
	require.Zero(t, m.AccessTokenTTL())

	clock.Advance(365 * 24 * time.Hour)
	info, err := m.Introspect(ctx, at.Token, "")
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Zero(t, info.Exp)
}

func TestVerifyToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	at, err := m.IssueAccessToken(ctx, grant)
	require.NoError(t, err)

	got, err := m.VerifyToken(ctx, at.Token, "https://mcp.example.com/mcp/tools", true)
	require.NoError(t, err)
	require.Equal(t, "app", got.ClientID)

	_, err = m.VerifyToken(ctx, at.Token, "https://other.example.com/mcp", true)
	require.ErrorIs(t, err, token.ErrAudienceMismatch)

	_, err = m.VerifyToken(ctx, at.Token, "https://other.example.com/mcp", false)
	require.NoError(t, err)

	_, err = m.VerifyToken(ctx, "unknown", "", false)
	require.ErrorIs(t, err, token.ErrInvalidToken)

	t.Run("token without resource fails strict", func(t *testing.T) {
		unbound, err := m.IssueAccessToken(ctx, token.Grant{ClientID: "app"})
		require.NoError(t, err)
		_, err = m.VerifyToken(ctx, unbound.Token, "https://mcp.example.com/mcp", true)
		require.ErrorIs(t, err, token.ErrAudienceMismatch)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	t.Run("access token is idempotent", func(t *testing.T) {
		at, err := m.IssueAccessToken(ctx, grant)
		require.NoError(t, err)
		require.NoError(t, m.Revoke(ctx, at.Token, ""))
		require.NoError(t, m.Revoke(ctx, at.Token, ""))
		info, err := m.Introspect(ctx, at.Token, "")
		require.NoError(t, err)
		require.False(t, info.Active)
	})

	t.Run("refresh token revokes linked access token", func(t *testing.T) {
		at, rt, err := m.IssueTokens(ctx, grant, true)
		require.NoError(t, err)
		require.NoError(t, m.Revoke(ctx, rt.Token, oauth2.RefreshTokenHint))

		for _, raw := range []string{at.Token, rt.Token} {
			info, err := m.Introspect(ctx, raw, "")
			require.NoError(t, err)
			require.False(t, info.Active)
		}
	})

	t.Run("wrong hint still finds the token", func(t *testing.T) {
		at, err := m.IssueAccessToken(ctx, grant)
		require.NoError(t, err)
		require.NoError(t, m.Revoke(ctx, at.Token, oauth2.RefreshTokenHint))
		_, err = m.VerifyToken(ctx, at.Token, "", false)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("unknown token", func(t *testing.T) {
		require.NoError(t, m.Revoke(ctx, "never-issued", ""))
		require.NoError(t, m.Revoke(ctx, "", ""))
	})
}

func TestBackendFailureIsNotInactive(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	s := mocks.NewMockCredentialStore(ctrl)
	down := errs.Unavailable(errors.New("connection refused"))
	s.EXPECT().GetToken(gomock.Any(), "tok").Return(nil, down).AnyTimes()

	m := token.New(s)

	_, err := m.Introspect(ctx, "tok", "")
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.True(t, errs.IsRetryable(err))

	_, err = m.VerifyToken(ctx, "tok", "", false)
	require.ErrorIs(t, err, store.ErrUnavailable)

	require.ErrorIs(t, m.Revoke(ctx, "tok", ""), store.ErrUnavailable)
}

func TestResourceMatches(t *testing.T) {
	tests := []struct {
		name      string
		granted   string
		requested string
		want      bool
	}{
		{"equal", "https://mcp.example.com/mcp", "https://mcp.example.com/mcp", true},
		{"child path", "https://mcp.example.com/mcp", "https://mcp.example.com/mcp/tools", true},
		{"granted with trailing slash", "https://mcp.example.com/", "https://mcp.example.com/mcp", true},
		{"sibling prefix", "https://mcp.example.com/mcp", "https://mcp.example.com/mcpx", false},
		{"parent", "https://mcp.example.com/mcp/tools", "https://mcp.example.com/mcp", false},
		{"case sensitive", "https://mcp.example.com/MCP", "https://mcp.example.com/mcp", false},
		{"empty granted", "", "https://mcp.example.com/mcp", false},
		{"empty both", "", "", false},
		{"other host", "https://mcp.example.com", "https://mcp.example.com.evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, token.ResourceMatches(tt.granted, tt.requested))
		})
	}
}
