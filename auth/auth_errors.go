package auth

import (
	"errors"

	"github.com/jrsteele09/go-auth-core/oauthmodel"
)

// Internal causes carried inside the oauthmodel.Error returned to callers.
// Test with errors.Is against either the cause or the protocol sentinel.
var (
	UnknownClientErr              = errors.New("unknown client")
	RedirectURIMismatchErr        = errors.New("redirect_uri does not match a registered redirect URI")
	MissingPKCEChallengeErr       = errors.New("code_challenge is required")
	UnsupportedChallengeMethodErr = errors.New("unsupported code_challenge_method")
	InvalidClientCredentialsErr   = errors.New("invalid client credentials")
	UnknownStateErr               = errors.New("unknown or expired state")
	DuplicateStateErr             = errors.New("state already in use")
	NoPrincipalErr                = errors.New("no authenticated principal")
	CodeNotFoundErr               = errors.New("authorization code not found")
	CodeClientMismatchErr         = errors.New("authorization code was issued to another client")
	CodeRedirectMismatchErr       = errors.New("redirect_uri does not match the authorization request")
	PKCEVerificationErr           = errors.New("code_verifier does not match code_challenge")
	ResourceMismatchErr           = errors.New("resource does not match the authorization")
	RefreshTokenNotFoundErr       = errors.New("refresh token not found")
	ScopeWideningErr              = errors.New("requested scope exceeds the original grant")
	GrantNotAllowedErr            = errors.New("client is not registered for this grant type")
	RegistrationDisabledErr       = errors.New("client registration is disabled")
	RevocationForbiddenErr        = errors.New("caller may not revoke tokens")
)

// RenderLocally reports whether err must be shown to the user instead of
// being sent to the client's redirect URI, because the redirect URI itself
// could not be trusted.
func RenderLocally(err error) bool {
	return errors.Is(err, UnknownClientErr) ||
		errors.Is(err, RedirectURIMismatchErr) ||
		errors.Is(err, UnknownStateErr)
}

func protocolError(code oauthmodel.ErrorCode, cause error) *oauthmodel.Error {
	return oauthmodel.WrapError(code, cause.Error(), cause)
}
