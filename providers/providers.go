// Package providers signs users in through upstream identity providers:
// GitHub and Google over plain OAuth2, and any OpenID Connect issuer found
// by discovery. Every round trip uses PKCE and a single-use state entry.
package providers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/sync/singleflight"
)

type Kind string

const (
	KindGitHub Kind = "github"
	KindGoogle Kind = "google"
	KindOIDC   Kind = "oidc"
)

const (
	DefaultStateTTL = 10 * time.Minute

	githubUserURL = "https://api.github.com/user"
	googleUserURL = "https://openidconnect.googleapis.com/v1/userinfo"
	nonceBytes    = 16
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrInvalidState     = errors.New("invalid or expired state")
	ErrNonceMismatch    = errors.New("id token nonce does not match")
	ErrMissingIDToken   = errors.New("no id_token in token response")
	ErrInvalidReturnURL = errors.New("return url must be a local path")
)

// Config describes one upstream provider.
type Config struct {
	Name         string
	Kind         Kind
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Issuer is the discovery base of a KindOIDC provider.
	Issuer string
	// Endpoint and UserInfoURL replace the well-known GitHub and Google
	// endpoints when set.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

func (c Config) validate() error {
	if c.Name == "" {
		return errs.Config("provider name is required")
	}
	if c.ClientID == "" {
		return errs.Config("provider %s: client id is required", c.Name)
	}
	if c.RedirectURL == "" {
		return errs.Config("provider %s: redirect url is required", c.Name)
	}
	switch c.Kind {
	case KindGitHub, KindGoogle:
	case KindOIDC:
		if c.Issuer == "" {
			return errs.Config("provider %s: issuer is required", c.Name)
		}
	default:
		return errs.Config("provider %s: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// Identity is the upstream account a sign-in resolved to.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type provider struct {
	cfg         Config
	userInfoURL string

	mu       sync.Mutex
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// Registry holds the configured providers.
type Registry struct {
	states     store.StateStore
	providers  map[string]*provider
	httpClient *http.Client
	stateTTL   time.Duration
	discovery  singleflight.Group
	log        zerolog.Logger
}

type Option func(*Registry)

// WithHTTPClient sets the client used for discovery, token exchange and user info.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = c
	}
}

func WithStateTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.stateTTL = ttl
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

func NewRegistry(states store.StateStore, configs []Config, opts ...Option) (*Registry, error) {
	r := &Registry{
		states:     states,
		providers:  make(map[string]*provider, len(configs)),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		stateTTL:   DefaultStateTTL,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, c := range configs {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.providers[c.Name]; dup {
			return nil, errs.Config("provider %s configured twice", c.Name)
		}
		r.providers[c.Name] = newProvider(c)
	}
	return r, nil
}

func newProvider(c Config) *provider {
	p := &provider{cfg: c, userInfoURL: c.UserInfoURL}
	if c.Kind == KindOIDC {
		return p
	}
	endpoint, scopes, userInfo := endpoints.GitHub, []string{"read:user", "user:email"}, githubUserURL
	if c.Kind == KindGoogle {
		endpoint, scopes, userInfo = endpoints.Google, []string{"openid", "email", "profile"}, googleUserURL
	}
	if c.Endpoint.AuthURL != "" {
		endpoint = c.Endpoint
	}
	if len(c.Scopes) > 0 {
		scopes = c.Scopes
	}
	if p.userInfoURL == "" {
		p.userInfoURL = userInfo
	}
	p.oauth = &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
	return p
}

// Names lists the configured providers in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LocalReturnURL accepts raw when it is a path on this server, so a sign-in
// can never be used as an open redirect. Empty means "/".
func LocalReturnURL(raw string) (string, error) {
	if raw == "" {
		return "/", nil
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "", ErrInvalidReturnURL
	}
	return raw, nil
}

// Begin starts a sign-in with the named provider and returns the URL to send
// the user agent to. returnURL is where the caller goes once signed in and
// must be a local path; empty means "/".
func (r *Registry) Begin(ctx context.Context, name, returnURL string) (string, error) {
	p, ok := r.providers[name]
	if !ok {
		return "", ErrUnknownProvider
	}
	returnURL, err := LocalReturnURL(returnURL)
	if err != nil {
		return "", err
	}
	cfg, err := r.oauthConfig(ctx, p)
	if err != nil {
		return "", err
	}

	verifier := oauth2.GenerateVerifier()
	nonce, err := random.Token(nonceBytes)
	if err != nil {
		return "", err
	}
	state, err := r.states.PutState(ctx, &store.StateEntry{
		Provider:     name,
		CodeVerifier: verifier,
		Nonce:        nonce,
		ReturnURL:    returnURL,
	}, r.stateTTL)
	if err != nil {
		return "", errors.Wrap(err, "[Registry.Begin] put state")
	}

	authOpts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if p.cfg.Kind == KindOIDC {
		authOpts = append(authOpts, oidc.Nonce(nonce))
	}
	return cfg.AuthCodeURL(state, authOpts...), nil
}

// Complete finishes a sign-in started by Begin. It returns the upstream
// identity and the return URL recorded at Begin.
func (r *Registry) Complete(ctx context.Context, name, state, code string) (*Identity, string, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, "", ErrUnknownProvider
	}
	entry, err := r.states.TakeState(ctx, state)
	if err != nil {
		if errs.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidState
		}
		return nil, "", errors.Wrap(err, "[Registry.Complete] take state")
	}
	if entry.Provider != name {
		r.log.Info().Str("provider", name).Msg("state issued for another provider")
		return nil, "", ErrInvalidState
	}

	cfg, err := r.oauthConfig(ctx, p)
	if err != nil {
		return nil, "", err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(entry.CodeVerifier))
	if err != nil {
		return nil, "", errors.Wrap(err, "[Registry.Complete] exchange")
	}

	var id *Identity
	if p.cfg.Kind == KindOIDC {
		id, err = r.verifyIDToken(ctx, p, tok, entry.Nonce)
	} else {
		id, err = r.fetchUser(ctx, p, cfg, tok)
	}
	if err != nil {
		return nil, "", err
	}
	id.Provider = name
	r.log.Debug().Str("provider", name).Str("subject", id.Subject).Msg("upstream sign-in completed")
	return id, entry.ReturnURL, nil
}

// oauthConfig returns the provider's oauth2 config, running OIDC discovery on
// first use. Concurrent first uses share one discovery request.
func (r *Registry) oauthConfig(ctx context.Context, p *provider) (*oauth2.Config, error) {
	p.mu.Lock()
	cfg := p.oauth
	p.mu.Unlock()
	if cfg != nil {
		return cfg, nil
	}

	_, err, _ := r.discovery.Do(p.cfg.Name, func() (interface{}, error) {
		p.mu.Lock()
		done := p.oauth != nil
		p.mu.Unlock()
		if done {
			return nil, nil
		}
		// The key set keeps this context for its own refreshes.
		dctx := oidc.ClientContext(context.WithoutCancel(ctx), r.httpClient)
		op, err := oidc.NewProvider(dctx, p.cfg.Issuer)
		if err != nil {
			return nil, errs.Unavailable(err)
		}
		scopes := p.cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "profile", "email"}
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		p.oauth = &oauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			RedirectURL:  p.cfg.RedirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       scopes,
		}
		p.verifier = op.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})
		return nil, nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("provider", p.cfg.Name).Msg("oidc discovery failed")
		return nil, errors.Wrap(err, "[Registry.oauthConfig] discovery")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oauth, nil
}

func (r *Registry) verifyIDToken(ctx context.Context, p *provider, tok *oauth2.Token, nonce string) (*Identity, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, ErrMissingIDToken
	}
	p.mu.Lock()
	verifier := p.verifier
	p.mu.Unlock()

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, r.httpClient), raw)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.verifyIDToken]")
	}
	if subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return nil, ErrNonceMismatch
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Registry.verifyIDToken] claims")
	}
	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
