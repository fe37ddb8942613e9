package oauthmodel

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/pkce"
	"github.com/jrsteele09/go-auth-core/scopes"
)

const maxCodeChallengeLength = 128

// AuthorizationParams holds parameters for the OAuth2 authorization request.
// These are typically received as query parameters at the /oauth/authorize endpoint.
type AuthorizationParams struct {
	// ClientID identifies the application requesting authorization.
	// Required: Yes
	// Validated against: the registered client in the credential store
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Required: Yes ("code" is the only supported value)
	ResponseType oauth2.ResponseType

	// RedirectURI is where the authorization response will be sent.
	// Required: No when the client has exactly one registered redirect URI
	// Security: Must exactly match a pre-registered URI to prevent open redirects.
	// No normalisation is applied.
	RedirectURI string

	// RedirectURIExplicit records whether RedirectURI was sent by the client
	// (true) or implied by its registration (false). When explicit, the token
	// request must repeat it.
	RedirectURIExplicit bool

	// ResponseMode controls how the authorization response is returned (query/fragment/form_post).
	// Required: No (defaults to "query")
	ResponseMode oauth2.ResponseModeType

	// Scopes are the requested permissions, in request order.
	// Required: No (the server's default scope is used when empty)
	// Validated against: clients.Client.Scopes. Unknown scopes are dropped, never added.
	Scopes []string

	// State is an opaque value echoed back on the redirect.
	// Required: Recommended (CSRF protection)
	State string

	// CodeChallenge is the PKCE challenge BASE64URL(SHA256(code_verifier)).
	// Required: Yes for every client
	// Length: 43 characters for S256
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived.
	// Required: No (defaults to S256). "plain" is rejected.
	CodeChallengeMethod string

	// Resource is the RFC 8707 resource indicator the token will be bound to.
	// Required: No
	// Example: "https://mcp.example.com/mcp"
	Resource string

	// Nonce is echoed into the ID token when the openid scope is granted.
	// Required: No
	Nonce string

	// LoginHint pre-fills the username/email on the login page.
	// Security: Should not be trusted, only used for UI pre-population
	LoginHint string
}

// ParseAuthorizationParams reads an authorization request from query or form values.
func ParseAuthorizationParams(values url.Values) *AuthorizationParams {
	redirectURI := values.Get("redirect_uri")
	return &AuthorizationParams{
		ClientID:            values.Get("client_id"),
		ResponseType:        oauth2.ResponseType(values.Get("response_type")),
		RedirectURI:         redirectURI,
		RedirectURIExplicit: redirectURI != "",
		ResponseMode:        oauth2.ResponseModeType(values.Get("response_mode")),
		Scopes:              scopes.Parse(values.Get("scope")),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: values.Get("code_challenge_method"),
		Resource:            values.Get("resource"),
		Nonce:               values.Get("nonce"),
		LoginHint:           values.Get("login_hint"),
	}
}

// Validate checks the parameters that do not depend on the client. Redirect
// URI binding is checked against the client by the authorization service.
func (p *AuthorizationParams) Validate() error {
	if !responseTypeValid(p.ResponseType) {
		return NewError(UnsupportedResponseType, "response_type must be code")
	}
	if !responseModeValid(p.ResponseMode) {
		return NewError(InvalidRequest, "unsupported response_mode")
	}
	if len(p.CodeChallenge) > maxCodeChallengeLength {
		return NewError(InvalidRequest, "code_challenge is too long")
	}
	if err := pkce.ValidateMethod(p.CodeChallengeMethod); err != nil {
		return WrapError(InvalidRequest, err.Error(), err)
	}
	if p.Resource != "" {
		if err := ValidateResource(p.Resource); err != nil {
			return err
		}
	}
	return nil
}

// ValidateResource checks an RFC 8707 resource indicator: an absolute
// http(s) URI with a host and no fragment.
func ValidateResource(resource string) error {
	u, err := url.Parse(resource)
	if err != nil || !u.IsAbs() || u.Host == "" || u.Fragment != "" {
		return NewError(InvalidTarget, "resource must be an absolute URI without a fragment")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return NewError(InvalidTarget, "resource must use http or https")
	}
	return nil
}

func responseModeValid(responseMode oauth2.ResponseModeType) bool {
	if strings.TrimSpace(string(responseMode)) == "" {
		return true
	}
	switch responseMode {
	case oauth2.QueryResponseMode, oauth2.FormPostResponseMode, oauth2.FragmentResponseMode:
		return true
	}
	return false
}

func responseTypeValid(responseType oauth2.ResponseType) bool {
	if strings.TrimSpace(string(responseType)) == "" {
		return true
	}
	return responseType == oauth2.CodeResponseType
}
