package oauthmodel

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/scopes"
)

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the request body sent to the /token endpoint.
// Supports multiple grant types: authorization_code, refresh_token, client_credentials
type TokenRequest struct {
	// GrantType selects the exchange.
	// Required: Yes
	GrantType oauth2.GrantType

	// ClientID identifies the OAuth2 client making the request.
	// Required: Yes (for all grant types). Taken from HTTP Basic when present.
	// Example: "web-app-client"
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Required: Yes for confidential clients, No for public clients
	// Security: Never log or expose this value
	ClientSecret string

	// BasicAuth records that the client authenticated with HTTP Basic.
	BasicAuth bool

	// Code is the authorization code received from the authorization endpoint.
	// Required: Yes (only for authorization_code grant)
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	// Required: Yes (authorization_code grant)
	// Example: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	// Validation: Server compares SHA256(code_verifier) with stored code_challenge
	CodeVerifier string

	// RedirectURI must repeat the authorization request's redirect_uri when
	// that request sent one explicitly.
	RedirectURI string

	// RefreshToken is used to obtain new access tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	// Behavior: Rotated - the presented refresh token is consumed, a new one issued
	RefreshToken string

	// Scopes narrow a refresh or request client_credentials scopes.
	Scopes []string

	// Resource is the RFC 8707 resource indicator. For authorization_code it
	// must equal the resource bound at authorization.
	Resource string
}

// ClientCredentials are the client authentication presented at an endpoint.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	BasicAuth    bool
}

// ParseClientCredentials reads client authentication from HTTP Basic or the
// form body. Sending both with different client ids is invalid_request.
// r.ParseForm must already have been called.
func ParseClientCredentials(r *http.Request) (ClientCredentials, error) {
	formID := r.PostForm.Get("client_id")
	formSecret := r.PostForm.Get("client_secret")

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ClientCredentials{ClientID: formID, ClientSecret: formSecret}, nil
	}

	// client_secret_basic values are form-urlencoded (RFC 6749 §2.3.1).
	id, err := url.QueryUnescape(user)
	if err != nil {
		return ClientCredentials{}, NewError(InvalidClient, "malformed basic credentials")
	}
	secret, err := url.QueryUnescape(pass)
	if err != nil {
		return ClientCredentials{}, NewError(InvalidClient, "malformed basic credentials")
	}
	if formID != "" && formID != id {
		return ClientCredentials{}, NewError(InvalidRequest, "client_id does not match the authorization header")
	}
	if formSecret != "" {
		return ClientCredentials{}, NewError(InvalidRequest, "multiple client authentication methods")
	}
	return ClientCredentials{ClientID: id, ClientSecret: secret, BasicAuth: true}, nil
}

// ParseTokenRequest reads a token request from a form-encoded POST.
func ParseTokenRequest(r *http.Request) (*TokenRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, NewError(InvalidRequest, "malformed form body")
	}
	creds, err := ParseClientCredentials(r)
	if err != nil {
		return nil, err
	}
	form := r.PostForm
	grantType := strings.TrimSpace(form.Get("grant_type"))
	if grantType == "" {
		return nil, NewError(InvalidRequest, "grant_type is required")
	}
	return &TokenRequest{
		GrantType:    oauth2.GrantType(grantType),
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		BasicAuth:    creds.BasicAuth,
		Code:         form.Get("code"),
		CodeVerifier: form.Get("code_verifier"),
		RedirectURI:  form.Get("redirect_uri"),
		RefreshToken: form.Get("refresh_token"),
		Scopes:       scopes.Parse(form.Get("scope")),
		Resource:     form.Get("resource"),
	}, nil
}
