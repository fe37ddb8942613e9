package clients

import (
	"crypto/subtle"
	"errors"
	"net/url"
	"time"

	"github.com/jrsteele09/go-auth-core/scopes"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// AuthMethod is a token_endpoint_auth_method value.
type AuthMethod string

const (
	AuthMethodSecretPost  AuthMethod = "client_secret_post"
	AuthMethodSecretBasic AuthMethod = "client_secret_basic"
	AuthMethodNone        AuthMethod = "none"
)

// Grant types a client may be registered for.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

var (
	ErrInvalidScope        = errors.New("invalid scope")
	ErrRedirectURIMismatch = errors.New("redirect_uri does not match a registered redirect URI")
	ErrInvalidRedirectURI  = errors.New("redirect_uri must be an absolute URI without a fragment")
	ErrNoRedirectURIs      = errors.New("at least one redirect_uri is required")
	ErrInvalidAuthMethod   = errors.New("unsupported token_endpoint_auth_method")
	ErrInvalidGrantType    = errors.New("unsupported grant_type")
)

// Client is a registered OAuth client.
type Client struct {
	ID                      string     `json:"client_id"`
	Type                    ClientType `json:"type"`
	Name                    string     `json:"client_name,omitempty"`
	Secret                  string     `json:"client_secret,omitempty"`
	RedirectURIs            []string   `json:"redirect_uris"`
	GrantTypes              []string   `json:"grant_types"`
	Scopes                  []string   `json:"scopes"`
	TokenEndpointAuthMethod AuthMethod `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time  `json:"client_id_issued_at"`
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic || c.Secret == ""
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return scopes.Contains(c.Scopes, scope)
}

// AllowsGrant reports whether the client was registered for grantType.
func (c *Client) AllowsGrant(grantType string) bool {
	return scopes.Contains(c.GrantTypes, grantType)
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requested []string) error {
	for _, s := range requested {
		if !c.HasScope(s) {
			return ErrInvalidScope
		}
	}
	return nil
}

// FilterScopes drops requested scopes the client is not allowed. A non-empty
// request that filters down to nothing is an error; nothing is ever added.
func (c *Client) FilterScopes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{}, nil
	}
	granted := scopes.Intersect(requested, c.Scopes)
	if len(granted) == 0 {
		return nil, ErrInvalidScope
	}
	return granted, nil
}

// MatchRedirectURI reports whether uri is exactly one of the registered URIs.
// No normalisation is applied: a trailing slash or a case change is a mismatch.
func (c *Client) MatchRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ResolveRedirectURI returns the redirect URI to bind to an authorization.
// An omitted URI is only accepted when exactly one URI is registered.
func (c *Client) ResolveRedirectURI(requested string) (uri string, explicit bool, err error) {
	if requested == "" {
		if len(c.RedirectURIs) == 1 {
			return c.RedirectURIs[0], false, nil
		}
		return "", false, ErrRedirectURIMismatch
	}
	if !c.MatchRedirectURI(requested) {
		return "", true, ErrRedirectURIMismatch
	}
	return requested, true, nil
}

// CheckSecret compares secret to the client's secret in constant time.
// Public clients only pass with an empty secret.
func (c *Client) CheckSecret(secret string) bool {
	if c.IsPublic() {
		return secret == ""
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(c.Secret)) == 1
}

// ValidateRedirectURI checks that uri is absolute, has a host and carries no fragment.
func ValidateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() || u.Fragment != "" {
		return ErrInvalidRedirectURI
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return ErrInvalidRedirectURI
	}
	return nil
}
