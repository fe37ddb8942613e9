// Package remote verifies access tokens against the RFC 7662 introspection
// endpoint of another authorization server.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/utils"
	"github.com/jrsteele09/go-auth-core/scopes"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3

	maxResponseBytes = 1 << 20
)

// ErrInsecureEndpoint rejects an introspection URL that would send client
// credentials and tokens in clear text.
var ErrInsecureEndpoint = fmt.Errorf("%w: introspection endpoint must use https (http is only allowed for localhost)", errs.ErrInvalidConfig)

// ValidateEndpoint accepts https URLs, and http only for loopback hosts.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return errs.Config("invalid introspection endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return nil
		}
	}
	return ErrInsecureEndpoint
}

// Verifier checks tokens with a remote authorization server.
type Verifier struct {
	endpoint     string
	clientID     string
	clientSecret string
	client       *http.Client
	maxRetries   uint
	backOff      backoff.BackOff
	log          zerolog.Logger
}

type Option func(*Verifier)

// WithHTTPClient replaces the default client, e.g. to add a custom transport.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.client = c
	}
}

func WithMaxRetries(n uint) Option {
	return func(v *Verifier) {
		v.maxRetries = n
	}
}

// WithBackOff sets the retry schedule. The default is exponential.
func WithBackOff(b backoff.BackOff) Option {
	return func(v *Verifier) {
		v.backOff = b
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(v *Verifier) {
		v.log = l
	}
}

// New returns a Verifier for endpoint that authenticates with HTTP Basic.
func New(endpoint, clientID, clientSecret string, opts ...Option) (*Verifier, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	v := &Verifier{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: DefaultTimeout},
		maxRetries:   DefaultMaxRetries,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Introspect asks the remote server about raw. Network errors and 5xx
// responses are retried and surface as store.ErrUnavailable when retries run
// out.
func (v *Verifier) Introspect(ctx context.Context, raw string) (*token.Introspection, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &token.Introspection{Active: false}, nil
	}
	operation := func() (*token.Introspection, error) {
		return v.introspectOnce(ctx, raw)
	}
	b := v.backOff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}
	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(v.maxRetries+1),
		backoff.WithNotify(func(err error, d time.Duration) {
			v.log.Warn().Err(err).Dur("retry_in", d).Msg("introspection request failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (v *Verifier) introspectOnce(ctx context.Context, raw string) (*token.Introspection, error) {
	form := url.Values{"token": {raw}, "token_type_hint": {"access_token"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build introspection request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if v.clientID != "" {
		req.SetBasicAuth(url.QueryEscape(v.clientID), url.QueryEscape(v.clientSecret))
	}

	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, errs.Unavailable(fmt.Errorf("introspection call failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, errs.Unavailable(fmt.Errorf("introspection failed, status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, backoff.Permanent(errs.Config("introspection unauthorized: %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("introspection failed, status %d", resp.StatusCode))
	}

	var wire wireIntrospection
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&wire); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode introspection response: %w", err))
	}
	if !wire.Active {
		return &token.Introspection{Active: false}, nil
	}
	out := wire.Introspection
	out.Aud = audience(wire.Aud)
	return &out, nil
}

// wireIntrospection accepts aud as a string or, as RFC 7662 allows, an array.
type wireIntrospection struct {
	token.Introspection
	Aud any `json:"aud,omitempty"`
}

// audience reduces an aud claim to the single resource a token is bound to
// here. Of several audiences the first is kept.
func audience(v any) string {
	switch aud := v.(type) {
	case string:
		return aud
	case []any:
		if list := utils.ToStringSlice(aud); len(list) > 0 {
			return list[0]
		}
	}
	return ""
}

// VerifyToken has the same semantics as token.Manager.VerifyToken, answered
// by the remote server.
func (v *Verifier) VerifyToken(ctx context.Context, raw, expectedResource string, strict bool) (*store.AccessToken, error) {
	info, err := v.Introspect(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, token.ErrInvalidToken
	}
	if strict && !token.ResourceMatches(info.Aud, expectedResource) {
		return nil, token.ErrAudienceMismatch
	}
	at := &store.AccessToken{
		Token:    raw,
		ClientID: info.ClientID,
		Scopes:   scopes.Parse(info.Scope),
		Resource: info.Aud,
		UserID:   info.Sub,
	}
	if info.Exp > 0 {
		at.ExpiresAt = time.Unix(info.Exp, 0)
	}
	if info.Iat > 0 {
		at.CreatedAt = time.Unix(info.Iat, 0)
	}
	return at, nil
}
