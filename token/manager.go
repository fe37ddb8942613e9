// Package token issues opaque access and refresh tokens and answers
// introspection, verification and revocation against the credential store.
package token

import (
	"context"
	"strings"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/metrics"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/scopes"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultTokenBytes      = 32
)

var (
	// ErrInvalidToken covers unknown, expired, revoked and empty tokens alike.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAudienceMismatch rejects a token bound to a different resource.
	ErrAudienceMismatch = errors.New("token audience does not match resource")
)

// Grant is what a newly issued token is bound to.
type Grant struct {
	ClientID  string
	Scopes    []string
	Resource  string
	UserID    string
	SessionID string

	// RefreshScopes are the refresh token's scopes when a refresh narrows the
	// access token below the original grant. Nil means Scopes.
	RefreshScopes []string
}

// Introspection is the RFC 7662 response body. Only Active is set for an
// inactive token.
type Introspection struct {
	Active    bool   `json:"active"`              // Is the token valid
	ClientID  string `json:"client_id,omitempty"` // Client the token was issued to
	Scope     string `json:"scope,omitempty"`     // Space separated granted scopes
	Exp       int64  `json:"exp,omitempty"`       // Expiration, absent for non-expiring tokens
	Iat       int64  `json:"iat,omitempty"`       // Issued at time
	TokenType string `json:"token_type,omitempty"`
	Aud       string `json:"aud,omitempty"` // Bound resource indicator
	Sub       string `json:"sub,omitempty"` // User id, or the client id for client_credentials
}

// Lookup is an access or refresh token found in the store.
type Lookup struct {
	Access  *store.AccessToken
	Refresh *store.RefreshToken
}

// ClientID returns the client the token was issued to.
func (l *Lookup) ClientID() string {
	if l.Access != nil {
		return l.Access.ClientID
	}
	return l.Refresh.ClientID
}

type Manager struct {
	store           store.TokenStore
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	tokenBytes      int
	nowFunc         func() time.Time
	log             zerolog.Logger
	metrics         *metrics.Metrics
}

type ManagerOption func(*Manager)

// WithAccessTokenTTL sets the access token lifetime. A negative TTL issues
// non-expiring tokens, which is discouraged.
func WithAccessTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenTTL = ttl
	}
}

func WithRefreshTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTokenTTL = ttl
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithTokenBytes sets the entropy of generated tokens. Values under 16 are raised to 16.
func WithTokenBytes(n int) ManagerOption {
	return func(m *Manager) {
		m.tokenBytes = n
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func New(s store.TokenStore, options ...ManagerOption) *Manager {
	m := &Manager{
		store:   s,
		nowFunc: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.accessTokenTTL == 0 {
		m.accessTokenTTL = DefaultAccessTokenTTL
	}
	if m.refreshTokenTTL <= 0 {
		m.refreshTokenTTL = DefaultRefreshTokenTTL
	}
	if m.tokenBytes == 0 {
		m.tokenBytes = DefaultTokenBytes
	}
	return m
}

// AccessTokenTTL is the lifetime reported as expires_in.
func (m *Manager) AccessTokenTTL() time.Duration {
	if m.accessTokenTTL < 0 {
		return 0
	}
	return m.accessTokenTTL
}

// IssueAccessToken stores a new access token for g.
func (m *Manager) IssueAccessToken(ctx context.Context, g Grant) (*store.AccessToken, error) {
	value, err := random.Token(m.tokenBytes)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueAccessToken] generate")
	}
	return m.putAccessToken(ctx, value, g, "")
}

// IssueRefreshToken stores a new refresh token for g.
func (m *Manager) IssueRefreshToken(ctx context.Context, g Grant) (*store.RefreshToken, error) {
	return m.putRefreshToken(ctx, g, "")
}

// IssueTokens stores an access token and, when withRefresh is set, a refresh
// token linked to it so that revoking the refresh token revokes both.
func (m *Manager) IssueTokens(ctx context.Context, g Grant, withRefresh bool) (*store.AccessToken, *store.RefreshToken, error) {
	accessValue, err := random.Token(m.tokenBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Manager.IssueTokens] generate")
	}
	var rt *store.RefreshToken
	refreshValue := ""
	if withRefresh {
		rt, err = m.putRefreshToken(ctx, g, accessValue)
		if err != nil {
			return nil, nil, err
		}
		refreshValue = rt.Token
	}
	at, err := m.putAccessToken(ctx, accessValue, g, refreshValue)
	if err != nil {
		return nil, nil, err
	}
	return at, rt, nil
}

func (m *Manager) putAccessToken(ctx context.Context, value string, g Grant, refreshToken string) (*store.AccessToken, error) {
	now := m.nowFunc()
	at := &store.AccessToken{
		Token:        value,
		ClientID:     g.ClientID,
		Scopes:       scopes.Dedupe(g.Scopes),
		Resource:     g.Resource,
		UserID:       g.UserID,
		RefreshToken: refreshToken,
		CreatedAt:    now,
	}
	if m.accessTokenTTL > 0 {
		at.ExpiresAt = now.Add(m.accessTokenTTL)
	}
	if err := m.store.PutToken(ctx, at); err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueAccessToken] put")
	}
	return at, nil
}

func (m *Manager) putRefreshToken(ctx context.Context, g Grant, accessToken string) (*store.RefreshToken, error) {
	value, err := random.Token(m.tokenBytes)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueRefreshToken] generate")
	}
	granted := g.Scopes
	if g.RefreshScopes != nil {
		granted = g.RefreshScopes
	}
	now := m.nowFunc()
	rt := &store.RefreshToken{
		Token:       value,
		ClientID:    g.ClientID,
		Scopes:      scopes.Dedupe(granted),
		Resource:    g.Resource,
		UserID:      g.UserID,
		SessionID:   g.SessionID,
		AccessToken: accessToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.refreshTokenTTL),
	}
	if err := m.store.PutRefreshToken(ctx, rt); err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueRefreshToken] put")
	}
	return rt, nil
}

// Find looks a token up as an access token and then as a refresh token, or
// the other way round when hint says so. An unknown hint is ignored.
// Returns ErrInvalidToken when neither matches.
func (m *Manager) Find(ctx context.Context, raw string, hint oauth2.TokenTypeHint) (*Lookup, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	order := []oauth2.TokenTypeHint{oauth2.AccessTokenHint, oauth2.RefreshTokenHint}
	if hint == oauth2.RefreshTokenHint {
		order = []oauth2.TokenTypeHint{oauth2.RefreshTokenHint, oauth2.AccessTokenHint}
	}
	for _, kind := range order {
		var (
			l   Lookup
			err error
		)
		if kind == oauth2.AccessTokenHint {
			l.Access, err = m.store.GetToken(ctx, raw)
		} else {
			l.Refresh, err = m.store.GetRefreshToken(ctx, raw)
		}
		switch {
		case err == nil:
			return &l, nil
		case errs.Is(err, store.ErrNotFound):
			continue
		default:
			return nil, errors.Wrap(err, "[Manager.Find]")
		}
	}
	return nil, ErrInvalidToken
}

// Introspect reports the token's state. Unknown, expired and malformed
// tokens are inactive without error; a backend failure is an error.
func (m *Manager) Introspect(ctx context.Context, raw string, hint oauth2.TokenTypeHint) (*Introspection, error) {
	l, err := m.Find(ctx, raw, hint)
	if errors.Is(err, ErrInvalidToken) {
		m.metrics.Introspected(false)
		return &Introspection{Active: false}, nil
	}
	if err != nil {
		m.log.Error().Err(err).Msg("introspection lookup failed")
		return nil, err
	}
	m.metrics.Introspected(true)

	if l.Access != nil {
		at := l.Access
		return &Introspection{
			Active:    true,
			ClientID:  at.ClientID,
			Scope:     scopes.Join(at.Scopes),
			Exp:       unixOrZero(at.ExpiresAt),
			Iat:       at.CreatedAt.Unix(),
			TokenType: string(oauth2.AccessTokenHint),
			Aud:       at.Resource,
			Sub:       subject(at.UserID, at.ClientID),
		}, nil
	}
	rt := l.Refresh
	return &Introspection{
		Active:    true,
		ClientID:  rt.ClientID,
		Scope:     scopes.Join(rt.Scopes),
		Exp:       unixOrZero(rt.ExpiresAt),
		Iat:       rt.CreatedAt.Unix(),
		TokenType: string(oauth2.RefreshTokenHint),
		Aud:       rt.Resource,
		Sub:       subject(rt.UserID, rt.ClientID),
	}, nil
}

// VerifyToken returns the live access token for raw. In strict mode the
// token's resource must cover expectedResource; otherwise the audience is
// not checked.
func (m *Manager) VerifyToken(ctx context.Context, raw, expectedResource string, strict bool) (*store.AccessToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	at, err := m.store.GetToken(ctx, raw)
	if errs.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.VerifyToken]")
	}
	if strict && !ResourceMatches(at.Resource, expectedResource) {
		m.log.Debug().Str("client_id", at.ClientID).Str("resource", expectedResource).Msg("token audience mismatch")
		return nil, ErrAudienceMismatch
	}
	return at, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func subject(userID, clientID string) string {
	if userID != "" {
		return userID
	}
	return clientID
}
