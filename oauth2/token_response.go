package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749 §5.1.
// Returned from the /token endpoint for all grant types.
type TokenResponse struct {
	// AccessToken is the opaque bearer token used to access protected resources.
	// Example: "2YotnFZFEjr1zCsicMWpAA"
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Validation: Resource servers introspect it; it carries no claims of its own
	AccessToken string `json:"access_token"`

	// TokenType indicates how to use the access token (always "Bearer").
	// Usage: Tells client to use "Authorization: Bearer <token>" header
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 3600 (for 1 hour)
	// Usage: Client should refresh token before expiration
	ExpiresIn int64 `json:"expires_in"`

	// Scope indicates the access token's granted permissions.
	// Example: "openid profile email api.read"
	// Usage: Space-separated list of scopes
	// Note: May be less than requested if some scopes were denied
	Scope string `json:"scope"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Only present: When "offline_access" was granted
	// Usage: Send to /token endpoint with grant_type=refresh_token
	// Security: Rotates on each use, the presented token is consumed
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OpenID Connect ID token containing user identity information.
	// Only present: When "openid" scope was granted to a signed-in user
	IDToken string `json:"id_token,omitempty"`
}

// BearerTokenType is the only token_type this server issues.
const BearerTokenType = "Bearer"
