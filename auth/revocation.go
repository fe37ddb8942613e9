package auth

import (
	"context"
	"crypto/subtle"

	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/token"
)

// RevocationAuth selects how callers of the revocation endpoint authenticate.
type RevocationAuth string

const (
	// RevocationAuthClient requires client authentication; a client may only
	// revoke its own tokens.
	RevocationAuthClient RevocationAuth = "client"
	// RevocationAuthPreshared requires the configured shared secret.
	RevocationAuthPreshared RevocationAuth = "preshared"
	// RevocationAuthOpen lets anyone holding a token revoke it.
	RevocationAuthOpen RevocationAuth = "open"
)

type RevocationPolicy struct {
	Auth   RevocationAuth
	Secret string
}

func (p RevocationPolicy) validate() error {
	switch p.Auth {
	case RevocationAuthClient, RevocationAuthOpen:
		return nil
	case RevocationAuthPreshared:
		if p.Secret == "" {
			return errs.Config("preshared revocation requires a secret")
		}
		return nil
	default:
		return errs.Config("unknown revocation auth mode %q", p.Auth)
	}
}

// Revoke implements RFC 7009. Unknown tokens, and tokens belonging to another
// client, succeed without effect so the endpoint reveals nothing about them.
func (as *AuthorizationService) Revoke(ctx context.Context, creds oauthmodel.ClientCredentials, presentedSecret, raw string, hint oauth2.TokenTypeHint) error {
	var caller *clients.Client
	switch as.revocationPolicy.Auth {
	case RevocationAuthPreshared:
		if subtle.ConstantTimeCompare([]byte(presentedSecret), []byte(as.revocationPolicy.Secret)) != 1 {
			as.log.Info().Str("reason", "bad revocation secret").Msg("revocation rejected")
			return protocolError(oauthmodel.InvalidClient, RevocationForbiddenErr)
		}
	case RevocationAuthOpen:
	default:
		c, err := as.authenticateConfidential(ctx, creds)
		if err != nil {
			return err
		}
		caller = c
	}

	if raw == "" {
		return oauthmodel.NewError(oauthmodel.InvalidRequest, "token is required")
	}

	l, err := as.tokens.Find(ctx, raw, hint)
	if errs.Is(err, token.ErrInvalidToken) {
		return nil
	}
	if err != nil {
		as.log.Error().Err(err).Msg("revocation lookup failed")
		return oauthmodel.FromError(err)
	}
	if caller != nil && l.ClientID() != caller.ID {
		as.log.Debug().Str("client_id", caller.ID).Msg("revocation of a token owned by another client ignored")
		return nil
	}
	if err := as.tokens.RevokeLookup(ctx, l); err != nil {
		as.log.Error().Err(err).Msg("revocation failed")
		return oauthmodel.FromError(err)
	}
	as.log.Info().Str("client_id", l.ClientID()).Msg("token revoked")
	return nil
}

// Introspect implements RFC 7662 for an authenticated confidential client.
func (as *AuthorizationService) Introspect(ctx context.Context, creds oauthmodel.ClientCredentials, raw string, hint oauth2.TokenTypeHint) (*token.Introspection, error) {
	if _, err := as.authenticateConfidential(ctx, creds); err != nil {
		return nil, err
	}
	info, err := as.tokens.Introspect(ctx, raw, hint)
	if err != nil {
		return nil, oauthmodel.FromError(err)
	}
	return info, nil
}

func (as *AuthorizationService) authenticateConfidential(ctx context.Context, creds oauthmodel.ClientCredentials) (*clients.Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, protocolError(oauthmodel.InvalidClient, InvalidClientCredentialsErr)
	}
	c, err := as.authenticateClient(ctx, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}
	if c.IsPublic() {
		return nil, protocolError(oauthmodel.InvalidClient, InvalidClientCredentialsErr)
	}
	return c, nil
}
