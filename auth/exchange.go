package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/pkce"
	"github.com/jrsteele09/go-auth-core/scopes"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/jrsteele09/go-auth-core/token/idtoken"
)

// Token handles the OAuth 2.0 token request.
func (as *AuthorizationService) Token(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if req == nil {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "missing token request")
	}

	var (
		resp *oauth2.TokenResponse
		err  error
	)
	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		resp, err = as.ExchangeCode(ctx, req)
	case oauth2.RefreshTokenCodeGrant:
		resp, err = as.ExchangeRefreshToken(ctx, req)
	case oauth2.ClientCredentialsCodeGrant:
		resp, err = as.ClientCredentials(ctx, req)
	case "":
		err = oauthmodel.NewError(oauthmodel.InvalidRequest, "grant_type is required")
	default:
		err = oauthmodel.NewError(oauthmodel.UnsupportedGrantType, "unsupported grant_type")
	}

	if err != nil {
		pe := oauthmodel.FromError(err)
		as.metrics.ExchangeFailed(string(req.GrantType), string(pe.Code))
		return nil, pe
	}
	as.metrics.TokenIssued(string(req.GrantType))
	return resp, nil
}

// ExchangeCode redeems an authorization code. The code is taken from the
// store before anything else is checked, so a code can never be redeemed
// twice, even by concurrent requests.
func (as *AuthorizationService) ExchangeCode(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.Code == "" {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "code is required")
	}

	code, err := as.store.TakeCode(ctx, req.Code)
	if errs.Is(err, store.ErrNotFound) {
		as.log.Debug().Str("client_id", req.ClientID).Str("reason", "unknown code").Msg("code exchange rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid authorization code", CodeNotFoundErr)
	}
	if err != nil {
		as.log.Error().Err(err).Str("client_id", req.ClientID).Msg("code exchange: take code failed")
		return nil, oauthmodel.FromError(err)
	}

	if code.ClientID != req.ClientID {
		as.log.Info().Str("client_id", req.ClientID).Str("reason", "client mismatch").Msg("code exchange rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid authorization code", CodeClientMismatchErr)
	}

	if (code.RedirectURIExplicit || req.RedirectURI != "") && req.RedirectURI != code.RedirectURI {
		as.log.Debug().Str("client_id", req.ClientID).Str("reason", "redirect_uri").Msg("code exchange rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "redirect_uri mismatch", CodeRedirectMismatchErr)
	}

	client, err := as.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if err := pkce.ValidateVerifier(req.CodeVerifier); err != nil {
		as.log.Debug().Str("client_id", client.ID).Str("reason", "malformed verifier").Msg("code exchange rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid code_verifier", PKCEVerificationErr)
	}
	if !pkce.Verify(req.CodeVerifier, code.CodeChallenge) {
		as.log.Debug().Str("client_id", client.ID).Str("reason", "pkce").Msg("code exchange rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid code_verifier", PKCEVerificationErr)
	}

	if req.Resource != "" && req.Resource != code.Resource {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidTarget, "resource does not match the authorization", ResourceMismatchErr)
	}

	withRefresh := client.AllowsGrant(clients.GrantRefreshToken) &&
		(as.alwaysRefresh || scopes.Contains(code.Scopes, OfflineAccessScope))

	resp, err := as.issue(ctx, token.Grant{
		ClientID:  client.ID,
		Scopes:    code.Scopes,
		Resource:  code.Resource,
		UserID:    code.UserID,
		SessionID: code.SessionID,
	}, withRefresh)
	if err != nil {
		return nil, err
	}

	if as.idTokens != nil && code.UserID != "" && scopes.Contains(code.Scopes, OpenIDScope) {
		idToken, err := as.idTokens.Issue(idtoken.Subject{
			UserID:    code.UserID,
			SessionID: code.SessionID,
			ClientID:  client.ID,
			Nonce:     code.Nonce,
		})
		if err != nil {
			return nil, oauthmodel.FromError(err)
		}
		resp.IDToken = idToken
	}

	as.log.Info().Str("client_id", client.ID).Msg("authorization code exchanged")
	return resp, nil
}

// ExchangeRefreshToken rotates a refresh token. Requested scopes may narrow
// the grant but never widen it; the new refresh token keeps the original
// scopes.
func (as *AuthorizationService) ExchangeRefreshToken(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	client, err := as.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(clients.GrantRefreshToken) {
		return nil, protocolError(oauthmodel.UnauthorizedClient, GrantNotAllowedErr)
	}
	if req.RefreshToken == "" {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "refresh_token is required")
	}

	// Validate against a read first so a bad request does not burn the token.
	current, err := as.store.GetRefreshToken(ctx, req.RefreshToken)
	if errs.Is(err, store.ErrNotFound) {
		as.log.Debug().Str("client_id", client.ID).Str("reason", "unknown refresh token").Msg("refresh rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid refresh token", RefreshTokenNotFoundErr)
	}
	if err != nil {
		as.log.Error().Err(err).Str("client_id", client.ID).Msg("refresh: lookup failed")
		return nil, oauthmodel.FromError(err)
	}
	if current.ClientID != client.ID {
		as.log.Info().Str("client_id", client.ID).Str("reason", "client mismatch").Msg("refresh rejected")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid refresh token", RefreshTokenNotFoundErr)
	}

	granted := current.Scopes
	if len(req.Scopes) > 0 {
		if !scopes.HasRequired(current.Scopes, req.Scopes) {
			return nil, protocolError(oauthmodel.InvalidScope, ScopeWideningErr)
		}
		granted = req.Scopes
	}
	if req.Resource != "" && req.Resource != current.Resource {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidTarget, "resource does not match the grant", ResourceMismatchErr)
	}

	rt, err := as.store.TakeRefreshToken(ctx, req.RefreshToken)
	if errs.Is(err, store.ErrNotFound) {
		// Lost a race with a concurrent refresh.
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid refresh token", RefreshTokenNotFoundErr)
	}
	if err != nil {
		as.log.Error().Err(err).Str("client_id", client.ID).Msg("refresh: take failed")
		return nil, oauthmodel.FromError(err)
	}

	resp, err := as.issue(ctx, token.Grant{
		ClientID:      client.ID,
		Scopes:        granted,
		Resource:      rt.Resource,
		UserID:        rt.UserID,
		SessionID:     rt.SessionID,
		RefreshScopes: rt.Scopes,
	}, true)
	if err != nil {
		return nil, err
	}
	as.log.Info().Str("client_id", client.ID).Msg("refresh token rotated")
	return resp, nil
}

// ClientCredentials issues an access token to a confidential client acting
// on its own behalf. No refresh token is issued.
func (as *AuthorizationService) ClientCredentials(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	client, err := as.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if client.IsPublic() || !client.AllowsGrant(clients.GrantClientCredentials) {
		as.log.Debug().Str("client_id", client.ID).Str("reason", "grant not allowed").Msg("client_credentials rejected")
		return nil, protocolError(oauthmodel.UnauthorizedClient, GrantNotAllowedErr)
	}

	granted := client.Scopes
	if len(req.Scopes) > 0 {
		if granted, err = client.FilterScopes(req.Scopes); err != nil {
			return nil, oauthmodel.WrapError(oauthmodel.InvalidScope, "none of the requested scopes are allowed", err)
		}
	}
	if req.Resource != "" {
		if err := oauthmodel.ValidateResource(req.Resource); err != nil {
			return nil, err
		}
	}

	return as.issue(ctx, token.Grant{
		ClientID: client.ID,
		Scopes:   granted,
		Resource: req.Resource,
	}, false)
}

func (as *AuthorizationService) issue(ctx context.Context, g token.Grant, withRefresh bool) (*oauth2.TokenResponse, error) {
	at, rt, err := as.tokens.IssueTokens(ctx, g, withRefresh)
	if err != nil {
		as.log.Error().Err(err).Str("client_id", g.ClientID).Msg("token issuance failed")
		return nil, oauthmodel.FromError(err)
	}
	resp := &oauth2.TokenResponse{
		AccessToken: at.Token,
		TokenType:   oauth2.BearerTokenType,
		ExpiresIn:   int64(as.tokens.AccessTokenTTL().Seconds()),
		Scope:       scopes.Join(at.Scopes),
	}
	if rt != nil {
		resp.RefreshToken = rt.Token
	}
	return resp, nil
}

// authenticateClient checks client credentials. Public clients authenticate
// with their id alone and must not send a secret.
func (as *AuthorizationService) authenticateClient(ctx context.Context, clientID, secret string) (*clients.Client, error) {
	if clientID == "" {
		return nil, protocolError(oauthmodel.InvalidClient, InvalidClientCredentialsErr)
	}
	client, err := as.store.GetClient(ctx, clientID)
	if errs.Is(err, store.ErrNotFound) {
		as.log.Debug().Str("client_id", clientID).Str("reason", "unknown client").Msg("client authentication failed")
		return nil, protocolError(oauthmodel.InvalidClient, InvalidClientCredentialsErr)
	}
	if err != nil {
		as.log.Error().Err(err).Str("client_id", clientID).Msg("client lookup failed")
		return nil, oauthmodel.FromError(err)
	}
	if !client.CheckSecret(secret) {
		as.log.Info().Str("client_id", clientID).Str("reason", "bad secret").Msg("client authentication failed")
		return nil, protocolError(oauthmodel.InvalidClient, InvalidClientCredentialsErr)
	}
	return client, nil
}
