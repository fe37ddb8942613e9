package auth_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/clients"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/stretchr/testify/require"
)

var openRegistration = auth.WithRegistrationPolicy(auth.RegistrationPolicy{Enabled: true, Mode: auth.RegistrationOpen})

func TestAuthorizeRegistration(t *testing.T) {
	f := setupTestFixture(t)
	err := f.service.AuthorizeRegistration("")
	require.ErrorIs(t, err, oauthmodel.ErrAccessDenied)
	require.ErrorIs(t, err, auth.RegistrationDisabledErr)

	f = setupTestFixture(t, openRegistration)
	require.NoError(t, f.service.AuthorizeRegistration(""))

	f = setupTestFixture(t, auth.WithRegistrationPolicy(auth.RegistrationPolicy{
		Enabled: true,
		Mode:    auth.RegistrationPreshared,
		Secret:  "initial-access-token",
	}))
	require.NoError(t, f.service.AuthorizeRegistration("initial-access-token"))
	require.ErrorIs(t, f.service.AuthorizeRegistration("initial-access-tokeN"), oauthmodel.ErrInvalidClient)
	require.ErrorIs(t, f.service.AuthorizeRegistration(""), oauthmodel.ErrInvalidClient)
}

func TestRegisterClient(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, openRegistration)

	c, err := f.service.RegisterClient(ctx, oauthmodel.ClientMetadata{
		RedirectURIs: []string{"https://new.example.com/cb"},
		ClientName:   " New App ",
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.NotEmpty(t, c.Secret)
	require.Equal(t, clients.ClientTypeConfidential, c.Type)
	require.Equal(t, clients.AuthMethodSecretPost, c.TokenEndpointAuthMethod)
	require.Equal(t, []string{clients.GrantAuthorizationCode, clients.GrantRefreshToken}, c.GrantTypes)
	require.Equal(t, []string{auth.DefaultScope}, c.Scopes)

	stored, err := f.store.GetClient(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "New App", stored.Name)
	require.True(t, stored.CheckSecret(c.Secret))

	resp := auth.NewRegistrationResponse(c)
	require.Equal(t, c.Secret, resp.ClientSecret)
	require.NotNil(t, resp.ClientSecretExpiresAt)
	require.Zero(t, *resp.ClientSecretExpiresAt)
	require.Equal(t, f.clock.Now().Unix(), resp.ClientIDIssuedAt)
	require.Equal(t, []string{"code"}, resp.ResponseTypes)
	require.Equal(t, "user", resp.Scope)

	public, err := f.service.RegisterClient(ctx, oauthmodel.ClientMetadata{
		RedirectURIs:            []string{"http://localhost:8080/callback"},
		TokenEndpointAuthMethod: "none",
		Scope:                   "read offline_access",
	})
	require.NoError(t, err)
	require.True(t, public.IsPublic())
	require.Empty(t, public.Secret)
	resp = auth.NewRegistrationResponse(public)
	require.Empty(t, resp.ClientSecret)
	require.Nil(t, resp.ClientSecretExpiresAt)
	require.Equal(t, "read offline_access", resp.Scope)
}

func TestRegisterClient_InvalidMetadata(t *testing.T) {
	tests := []struct {
		name string
		md   oauthmodel.ClientMetadata
		code oauthmodel.ErrorCode
	}{
		{"no redirect uris", oauthmodel.ClientMetadata{}, oauthmodel.InvalidRedirectURI},
		{"relative redirect", oauthmodel.ClientMetadata{RedirectURIs: []string{"/cb"}}, oauthmodel.InvalidRedirectURI},
		{"fragment redirect", oauthmodel.ClientMetadata{RedirectURIs: []string{"https://a.example.com/cb#x"}}, oauthmodel.InvalidRedirectURI},
		{"auth method", oauthmodel.ClientMetadata{RedirectURIs: []string{"https://a.example.com/cb"}, TokenEndpointAuthMethod: "private_key_jwt"}, oauthmodel.InvalidClientMetadata},
		{"implicit grant", oauthmodel.ClientMetadata{RedirectURIs: []string{"https://a.example.com/cb"}, GrantTypes: []string{"implicit"}}, oauthmodel.InvalidClientMetadata},
		{"public machine client", oauthmodel.ClientMetadata{RedirectURIs: []string{"https://a.example.com/cb"}, TokenEndpointAuthMethod: "none", GrantTypes: []string{"client_credentials"}}, oauthmodel.InvalidClientMetadata},
		{"token response type", oauthmodel.ClientMetadata{RedirectURIs: []string{"https://a.example.com/cb"}, ResponseTypes: []string{"token"}}, oauthmodel.InvalidClientMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, openRegistration)
			_, err := f.service.RegisterClient(context.Background(), tt.md)
			require.Error(t, err)
			require.Equal(t, tt.code, oauthmodel.FromError(err).Code)
		})
	}
}

func TestRevoke_ClientAuth(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, auth.WithAlwaysIssueRefreshToken(true))
	code := f.authorize(t, defaultParams())
	resp, err := f.service.Token(ctx, codeRequest(code))
	require.NoError(t, err)

	owner := oauthmodel.ClientCredentials{ClientID: testClientID, ClientSecret: testClientSecret}
	other := oauthmodel.ClientCredentials{ClientID: otherClientID, ClientSecret: otherSecret}

	err = f.service.Revoke(ctx, oauthmodel.ClientCredentials{ClientID: publicClientID}, "", resp.AccessToken, "")
	require.ErrorIs(t, err, oauthmodel.ErrInvalidClient)
	err = f.service.Revoke(ctx, oauthmodel.ClientCredentials{ClientID: testClientID, ClientSecret: "nope"}, "", resp.AccessToken, "")
	require.ErrorIs(t, err, oauthmodel.ErrInvalidClient)

	// Another client's token: success without effect.
	require.NoError(t, f.service.Revoke(ctx, other, "", resp.AccessToken, ""))
	_, err = f.tokens.VerifyToken(ctx, resp.AccessToken, "", false)
	require.NoError(t, err)

	// Revoking the refresh token takes the access token with it.
	require.NoError(t, f.service.Revoke(ctx, owner, "", resp.RefreshToken, oauth2.RefreshTokenHint))
	info, err := f.service.Introspect(ctx, owner, resp.AccessToken, "")
	require.NoError(t, err)
	require.False(t, info.Active)

	// Unknown and repeated revocations succeed.
	require.NoError(t, f.service.Revoke(ctx, owner, "", resp.RefreshToken, ""))
	require.NoError(t, f.service.Revoke(ctx, owner, "", "never-issued", ""))
	require.ErrorIs(t, f.service.Revoke(ctx, owner, "", "", ""), oauthmodel.ErrInvalidRequest)
}

func TestRevoke_PresharedAndOpen(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, auth.WithRevocationPolicy(auth.RevocationPolicy{
		Auth:   auth.RevocationAuthPreshared,
		Secret: "revoke-secret",
	}))
	at, err := f.tokens.IssueAccessToken(ctx, tokenGrant())
	require.NoError(t, err)

	err = f.service.Revoke(ctx, oauthmodel.ClientCredentials{}, "wrong", at.Token, "")
	require.ErrorIs(t, err, oauthmodel.ErrInvalidClient)
	require.NoError(t, f.service.Revoke(ctx, oauthmodel.ClientCredentials{}, "revoke-secret", at.Token, ""))
	_, err = f.tokens.VerifyToken(ctx, at.Token, "", false)
	require.Error(t, err)

	f = setupTestFixture(t, auth.WithRevocationPolicy(auth.RevocationPolicy{Auth: auth.RevocationAuthOpen}))
	at, err = f.tokens.IssueAccessToken(ctx, tokenGrant())
	require.NoError(t, err)
	require.NoError(t, f.service.Revoke(ctx, oauthmodel.ClientCredentials{}, "", at.Token, ""))
	_, err = f.tokens.VerifyToken(ctx, at.Token, "", false)
	require.Error(t, err)
}

func TestIntrospect_RequiresConfidentialClient(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	at, err := f.tokens.IssueAccessToken(ctx, tokenGrant())
	require.NoError(t, err)

	_, err = f.service.Introspect(ctx, oauthmodel.ClientCredentials{ClientID: publicClientID}, at.Token, "")
	require.ErrorIs(t, err, oauthmodel.ErrInvalidClient)
	_, err = f.service.Introspect(ctx, oauthmodel.ClientCredentials{}, at.Token, "")
	require.ErrorIs(t, err, oauthmodel.ErrInvalidClient)

	info, err := f.service.Introspect(ctx, oauthmodel.ClientCredentials{ClientID: otherClientID, ClientSecret: otherSecret}, at.Token, "")
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, testClientID, info.ClientID)
}

// TestEndToEnd registers a client, authorizes, exchanges, introspects and revokes.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, openRegistration)

	c, err := f.service.RegisterClient(ctx, oauthmodel.ClientMetadata{
		RedirectURIs: []string{"https://mcp-client.example.com/cb"},
		Scope:        "tools.read offline_access",
	})
	require.NoError(t, err)
	creds := oauthmodel.ClientCredentials{ClientID: c.ID, ClientSecret: c.Secret}

	stateID, _, err := f.service.BeginAuthorization(ctx, &oauthmodel.AuthorizationParams{
		ClientID:            c.ID,
		ResponseType:        "code",
		Scopes:              []string{"tools.read", "offline_access", "admin"},
		State:               "af0ifjsldkj",
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: "S256",
		Resource:            testResource,
	})
	require.NoError(t, err)

	r, err := f.service.CompleteAuthorization(ctx, stateID, &auth.Principal{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "https://mcp-client.example.com/cb", r.URI)
	require.Equal(t, "af0ifjsldkj", r.State)

	resp, err := f.service.Token(ctx, &oauthmodel.TokenRequest{
		GrantType:    oauth2.AuthorizationCodeGrant,
		ClientID:     c.ID,
		ClientSecret: c.Secret,
		Code:         r.Code,
		CodeVerifier: testCodeVerifier,
	})
	require.NoError(t, err)
	require.Equal(t, "tools.read offline_access", resp.Scope)
	require.NotEmpty(t, resp.RefreshToken)

	info, err := f.service.Introspect(ctx, creds, resp.AccessToken, oauth2.AccessTokenHint)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, "alice", info.Sub)
	require.Equal(t, testResource, info.Aud)

	require.NoError(t, f.service.Revoke(ctx, creds, "", resp.AccessToken, oauth2.AccessTokenHint))

	info, err = f.service.Introspect(ctx, creds, resp.AccessToken, "")
	require.NoError(t, err)
	require.False(t, info.Active)
	require.Empty(t, info.ClientID)
}

func tokenGrant() token.Grant {
	return token.Grant{ClientID: testClientID, Scopes: []string{"read"}, UserID: testUserID}
}
