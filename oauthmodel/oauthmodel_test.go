package oauthmodel_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByCode(t *testing.T) {
	cause := errors.New("code not found")
	err := fmt.Errorf("exchange: %w", oauthmodel.WrapError(oauthmodel.InvalidGrant, "invalid code", cause))

	require.ErrorIs(t, err, oauthmodel.ErrInvalidGrant)
	require.NotErrorIs(t, err, oauthmodel.ErrInvalidClient)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "invalid_grant: invalid code", oauthmodel.NewError(oauthmodel.InvalidGrant, "invalid code").Error())
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		code   oauthmodel.ErrorCode
		status int
	}{
		{oauthmodel.InvalidRequest, http.StatusBadRequest},
		{oauthmodel.InvalidGrant, http.StatusBadRequest},
		{oauthmodel.InvalidClient, http.StatusUnauthorized},
		{oauthmodel.AccessDenied, http.StatusForbidden},
		{oauthmodel.ServerError, http.StatusInternalServerError},
		{oauthmodel.TemporarilyUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			require.Equal(t, tt.status, oauthmodel.NewError(tt.code, "").StatusCode())
		})
	}
}

func TestFromError(t *testing.T) {
	require.Nil(t, oauthmodel.FromError(nil))

	pe := oauthmodel.FromError(errs.Unavailable(errors.New("connection refused")))
	require.Equal(t, oauthmodel.TemporarilyUnavailable, pe.Code)
	require.NotContains(t, pe.Description, "connection refused")

	pe = oauthmodel.FromError(errors.New("boom"))
	require.Equal(t, oauthmodel.ServerError, pe.Code)
	require.NotContains(t, pe.Description, "boom")

	original := oauthmodel.NewError(oauthmodel.InvalidScope, "nope")
	require.Same(t, original, oauthmodel.FromError(fmt.Errorf("wrapped: %w", original)))
}

func TestAuthorizationParams(t *testing.T) {
	values := url.Values{
		"client_id":             {"app"},
		"response_type":         {"code"},
		"redirect_uri":          {"https://app.example.com/cb"},
		"scope":                 {"read write"},
		"state":                 {"xyz"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
		"resource":              {"https://mcp.example.com/mcp"},
	}
	p := oauthmodel.ParseAuthorizationParams(values)
	require.Equal(t, "app", p.ClientID)
	require.True(t, p.RedirectURIExplicit)
	require.Equal(t, []string{"read", "write"}, p.Scopes)
	require.NoError(t, p.Validate())

	t.Run("omitted redirect is implicit", func(t *testing.T) {
		p := oauthmodel.ParseAuthorizationParams(url.Values{"client_id": {"app"}})
		require.False(t, p.RedirectURIExplicit)
	})

	t.Run("plain challenge method is rejected", func(t *testing.T) {
		p := oauthmodel.ParseAuthorizationParams(values)
		p.CodeChallengeMethod = "plain"
		require.ErrorIs(t, p.Validate(), oauthmodel.ErrInvalidRequest)
	})

	t.Run("token response type is unsupported", func(t *testing.T) {
		p := oauthmodel.ParseAuthorizationParams(values)
		p.ResponseType = "token"
		require.ErrorIs(t, p.Validate(), oauthmodel.ErrUnsupportedResponse)
	})

	t.Run("resource with fragment is an invalid target", func(t *testing.T) {
		p := oauthmodel.ParseAuthorizationParams(values)
		p.Resource = "https://mcp.example.com/mcp#frag"
		require.ErrorIs(t, p.Validate(), oauthmodel.ErrInvalidTarget)
	})

	t.Run("relative resource is an invalid target", func(t *testing.T) {
		require.ErrorIs(t, oauthmodel.ValidateResource("/mcp"), oauthmodel.ErrInvalidTarget)
		require.ErrorIs(t, oauthmodel.ValidateResource("urn:thing"), oauthmodel.ErrInvalidTarget)
	})
}

func newTokenRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseTokenRequest(t *testing.T) {
	t.Run("form credentials", func(t *testing.T) {
		r := newTokenRequest(url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"app"},
			"client_secret": {"s3cret"},
			"code":          {"abc"},
			"code_verifier": {"verifier"},
			"redirect_uri":  {"https://app.example.com/cb"},
		})
		req, err := oauthmodel.ParseTokenRequest(r)
		require.NoError(t, err)
		require.Equal(t, oauth2.AuthorizationCodeGrant, req.GrantType)
		require.Equal(t, "app", req.ClientID)
		require.Equal(t, "s3cret", req.ClientSecret)
		require.False(t, req.BasicAuth)
		require.Equal(t, "abc", req.Code)
	})

	t.Run("basic credentials are form-decoded", func(t *testing.T) {
		r := newTokenRequest(url.Values{"grant_type": {"client_credentials"}, "scope": {"a b"}})
		r.SetBasicAuth(url.QueryEscape("svc:1"), url.QueryEscape("p@ss word"))
		req, err := oauthmodel.ParseTokenRequest(r)
		require.NoError(t, err)
		require.True(t, req.BasicAuth)
		require.Equal(t, "svc:1", req.ClientID)
		require.Equal(t, "p@ss word", req.ClientSecret)
		require.Equal(t, []string{"a", "b"}, req.Scopes)
	})

	t.Run("conflicting client ids", func(t *testing.T) {
		r := newTokenRequest(url.Values{"grant_type": {"client_credentials"}, "client_id": {"other"}})
		r.SetBasicAuth("svc", "secret")
		_, err := oauthmodel.ParseTokenRequest(r)
		require.ErrorIs(t, err, oauthmodel.ErrInvalidRequest)
	})

	t.Run("missing grant type", func(t *testing.T) {
		_, err := oauthmodel.ParseTokenRequest(newTokenRequest(url.Values{"client_id": {"app"}}))
		require.ErrorIs(t, err, oauthmodel.ErrInvalidRequest)
	})
}
