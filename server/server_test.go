package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/clients"
	"github.com/jrsteele09/go-auth-core/internal/config"
	"github.com/jrsteele09/go-auth-core/server"
	"github.com/jrsteele09/go-auth-core/server/loginsession"
	"github.com/jrsteele09/go-auth-core/store/memory"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/jrsteele09/go-auth-core/users"
	fakeuserrepo "github.com/jrsteele09/go-auth-core/users/repofake"
	"github.com/jrsteele09/go-auth-core/verification"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIssuer       = "http://auth.test"
	testClientID     = "client-1"
	testClientSecret = "secret-1"
	testRedirectURI  = "https://app.example.com/callback"
	testEmail        = "alice@example.com"
	testPassword     = "Correct-Horse-9"
	// RFC 7636 appendix B
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

// recordingNotifier keeps the last code and link sent to each address.
type recordingNotifier struct {
	mu    sync.Mutex
	otps  map[string]string
	links map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{otps: map[string]string{}, links: map[string]string{}}
}

func (n *recordingNotifier) SendOTP(_ context.Context, email, otp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps[email] = otp
	return nil
}

func (n *recordingNotifier) SendLink(_ context.Context, email string, purpose verification.Purpose, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[string(purpose)+":"+email] = link
	return nil
}

func (n *recordingNotifier) otp(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.otps[email]
}

func (n *recordingNotifier) link(purpose verification.Purpose, email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[string(purpose)+":"+email]
}

type testFixture struct {
	server   *server.Server
	store    *memory.Store
	tokens   *token.Manager
	engine   *verification.Engine
	users    *users.Directory
	notifier *recordingNotifier
	user     *users.User
}

func newTestFixture(t *testing.T, settings map[string]any) *testFixture {
	t.Helper()

	v := viper.New()
	v.Set("env", "TEST")
	v.Set("issuer_url", testIssuer)
	v.Set("cors.allowed_origins", []string{"https://app.example.com"})
	for k, val := range settings {
		v.Set(k, val)
	}
	cfg := config.FromViper(v)

	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	tokens := token.New(s)
	service, err := auth.NewAuthorizationService(s, tokens,
		auth.WithDefaultScope(cfg.GetDefaultScope()),
		auth.WithRegistrationPolicy(auth.RegistrationPolicy{
			Enabled: cfg.GetRegistrationEnabled(),
			Mode:    auth.RegistrationMode(cfg.GetRegistrationMode()),
			Secret:  cfg.GetRegistrationSecret(),
		}),
	)
	require.NoError(t, err)
	engine, err := verification.New(s, verification.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	directory := users.NewDirectory(fakeuserrepo.NewFakeUserRepo(), engine)
	notifier := newRecordingNotifier()

	srv, err := server.New(cfg, server.Dependencies{
		Auth:          service,
		Tokens:        tokens,
		Verification:  engine,
		Users:         directory,
		LoginSessions: loginsession.NewInMemoryLoginSessionRepo(cfg.GetMaxSessionAge()),
		Notifier:      notifier,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, s.PutClient(context.Background(), &clients.Client{
		ID:                      testClientID,
		Type:                    clients.ClientTypeConfidential,
		Secret:                  testClientSecret,
		RedirectURIs:            []string{testRedirectURI},
		GrantTypes:              []string{clients.GrantAuthorizationCode, clients.GrantRefreshToken},
		Scopes:                  []string{"user", "read", "offline_access"},
		TokenEndpointAuthMethod: clients.AuthMethodSecretPost,
	}))

	hash, err := engine.HashPassword(testPassword)
	require.NoError(t, err)
	u, err := directory.Register(context.Background(), testEmail, "Alice", hash)
	require.NoError(t, err)

	return &testFixture{
		server:   srv,
		store:    s,
		tokens:   tokens,
		engine:   engine,
		users:    directory,
		notifier: notifier,
		user:     u,
	}
}

func (f *testFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

func (f *testFixture) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

func authorizeQuery(overrides map[string]string) string {
	q := url.Values{
		"client_id":             {testClientID},
		"response_type":         {"code"},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"read"},
		"state":                 {"client-state-1"},
		"code_challenge":        {testCodeChallenge},
		"code_challenge_method": {"S256"},
	}
	for k, v := range overrides {
		if v == "" {
			q.Del(k)
			continue
		}
		q.Set(k, v)
	}
	return server.RouteOAuthAuthorize + "?" + q.Encode()
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == server.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", server.SessionCookieName)
	return nil
}

// login parks an authorization, signs in with the password form and returns
// the client's authorization code with the session cookie.
func (f *testFixture) login(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := f.get(authorizeQuery(nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loginURL := location(t, rec)
	require.Equal(t, server.RouteOAuthLogin, loginURL.Path)
	state := loginURL.Query().Get("state")
	require.NotEmpty(t, state)

	rec = f.get(loginURL.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="state"`)

	rec = f.postForm(server.RouteOAuthLogin, url.Values{"state": {state}, "email": {testEmail}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	callback := location(t, rec)
	require.Equal(t, "app.example.com", callback.Host)
	require.Equal(t, "client-state-1", callback.Query().Get("state"))
	code := callback.Query().Get("code")
	require.NotEmpty(t, code)
	return code, sessionCookie(t, rec)
}

func (f *testFixture) exchange(t *testing.T, code string) map[string]any {
	t.Helper()
	rec := f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	return decodeJSON(t, rec)
}

func (f *testFixture) introspect(t *testing.T, raw string) map[string]any {
	t.Helper()
	rec := f.postForm(server.RouteOAuthIntrospect, url.Values{
		"token":         {raw},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeJSON(t, rec)
}

func TestDiscoveryMetadata(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.get(server.RouteWellKnownAuthorizationServer)
	require.Equal(t, http.StatusOK, rec.Code)
	md := decodeJSON(t, rec)
	require.Equal(t, testIssuer, md["issuer"])
	require.Equal(t, testIssuer+server.RouteOAuthAuthorize, md["authorization_endpoint"])
	require.Equal(t, testIssuer+server.RouteOAuthToken, md["token_endpoint"])
	require.Equal(t, []any{"S256"}, md["code_challenge_methods_supported"])
	require.NotContains(t, md, "registration_endpoint")
	require.Equal(t, []any{"user", "offline_access"}, md["scopes_supported"])

	rec = f.get(server.RouteWellKnownProtectedResource)
	require.Equal(t, http.StatusOK, rec.Code)
	prm := decodeJSON(t, rec)
	require.Equal(t, []any{testIssuer}, prm["authorization_servers"])
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := newTestFixture(t, nil)

	code, _ := f.login(t)
	tokens := f.exchange(t, code)
	access, _ := tokens["access_token"].(string)
	require.NotEmpty(t, access)
	require.Equal(t, "Bearer", tokens["token_type"])

	info := f.introspect(t, access)
	require.Equal(t, true, info["active"])
	require.Equal(t, testClientID, info["client_id"])
	require.Equal(t, "read", info["scope"])
	require.Equal(t, f.user.ID, info["sub"])

	// The code is single use.
	rec := f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_grant", decodeJSON(t, rec)["error"])

	rec = f.postForm(server.RouteOAuthRevoke, url.Values{
		"token":         {access},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	info = f.introspect(t, access)
	require.Equal(t, map[string]any{"active": false}, info)
}

func TestAuthorizeWithSessionIssuesCode(t *testing.T) {
	f := newTestFixture(t, nil)
	_, cookie := f.login(t)

	rec := f.get(authorizeQuery(map[string]string{"state": "second"}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	callback := location(t, rec)
	require.Equal(t, "second", callback.Query().Get("state"))
	require.NotEmpty(t, callback.Query().Get("code"))

	rec = f.postForm(server.RouteLogout, nil, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The session is gone, so the user is sent to the login page again.
	rec = f.get(authorizeQuery(map[string]string{"state": "third"}), cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, server.RouteOAuthLogin, location(t, rec).Path)
}

func TestAuthorizeFormPost(t *testing.T) {
	f := newTestFixture(t, nil)
	_, cookie := f.login(t)

	rec := f.get(authorizeQuery(map[string]string{"state": "fp", "response_mode": "form_post"}), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	require.Contains(t, body, `action="`+testRedirectURI+`"`)
	require.Contains(t, body, `name="code"`)
	require.Contains(t, body, `value="fp"`)
}

func TestAuthorizeErrors(t *testing.T) {
	f := newTestFixture(t, nil)

	t.Run("unknown client is rendered locally", func(t *testing.T) {
		rec := f.get(authorizeQuery(map[string]string{"client_id": "nobody"}))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		require.Empty(t, rec.Header().Get("Location"))
		require.Contains(t, rec.Body.String(), "invalid_client")
	})

	t.Run("unregistered redirect uri is rendered locally", func(t *testing.T) {
		rec := f.get(authorizeQuery(map[string]string{"redirect_uri": "https://evil.example.com/cb"}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, rec.Header().Get("Location"))
		require.Contains(t, rec.Body.String(), "invalid_request")
	})

	t.Run("missing pkce is sent to the client", func(t *testing.T) {
		rec := f.get(authorizeQuery(map[string]string{"code_challenge": "", "state": "no-pkce"}))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		callback := location(t, rec)
		require.Equal(t, "app.example.com", callback.Host)
		require.Equal(t, "invalid_request", callback.Query().Get("error"))
		require.Equal(t, "no-pkce", callback.Query().Get("state"))
		require.Empty(t, callback.Query().Get("code"))
	})

	t.Run("login without state", func(t *testing.T) {
		rec := f.get(server.RouteOAuthLogin)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newTestFixture(t, map[string]any{"ratelimit.max": 2})

	rec := f.get(authorizeQuery(nil))
	state := location(t, rec).Query().Get("state")

	bad := url.Values{"state": {state}, "email": {testEmail}, "password": {"Wrong-Password-1"}}
	rec = f.postForm(server.RouteOAuthLogin, bad)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid email or password")
	require.Contains(t, rec.Body.String(), `value="`+testEmail+`"`)

	rec = f.postForm(server.RouteOAuthLogin, bad)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.postForm(server.RouteOAuthLogin, bad)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenEndpointErrors(t *testing.T) {
	f := newTestFixture(t, nil)
	code, _ := f.login(t)

	rec := f.postForm(server.RouteOAuthToken, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
		"client_id":     {testClientID},
		"client_secret": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	require.Equal(t, "invalid_client", decodeJSON(t, rec)["error"])

	rec = f.postForm(server.RouteOAuthToken, url.Values{"client_id": {testClientID}, "client_secret": {testClientSecret}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decodeJSON(t, rec)["error"])
}

func TestTokenEndpointThrottle(t *testing.T) {
	f := newTestFixture(t, map[string]any{"ratelimit.token_rps": 0.001, "ratelimit.token_burst": 2})

	form := url.Values{"grant_type": {"client_credentials"}, "client_id": {testClientID}, "client_secret": {testClientSecret}}
	for i := 0; i < 2; i++ {
		rec := f.postForm(server.RouteOAuthToken, form)
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}
	rec := f.postForm(server.RouteOAuthToken, form)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.Equal(t, "slow_down", decodeJSON(t, rec)["error"])
}

func TestUserInfo(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.get(server.RouteOAuthUserInfo)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	require.Contains(t, challenge, `Bearer realm="`+testIssuer+`"`)
	require.Contains(t, challenge, `resource_metadata="`+testIssuer+server.RouteWellKnownProtectedResource+`"`)

	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	at, err := f.tokens.IssueAccessToken(context.Background(), token.Grant{
		ClientID: testClientID,
		Scopes:   []string{"read"},
		UserID:   f.user.ID,
	})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	req.Header.Set("Authorization", "Bearer "+at.Token)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := decodeJSON(t, rec)
	require.Equal(t, f.user.ID, body["sub"])
	require.Equal(t, testEmail, body["email"])
	require.Equal(t, "Alice", body["name"])
}

func TestUserInfoStrictResource(t *testing.T) {
	f := newTestFixture(t, map[string]any{"strict_resource": true, "resource_url": "https://mcp.example.com/mcp"})

	at, err := f.tokens.IssueAccessToken(context.Background(), token.Grant{
		ClientID: testClientID,
		Scopes:   []string{"read"},
		Resource: "https://other.example.com",
		UserID:   f.user.ID,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, server.RouteOAuthUserInfo, nil)
	req.Header.Set("Authorization", "Bearer "+at.Token)
	rec := f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_token", decodeJSON(t, rec)["error"])
}

func TestEmailOTPSignIn(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.postForm(server.RouteEmailOTP, url.Values{"email": {"Bob@Example.com"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	otp := f.notifier.otp("bob@example.com")
	require.NotEmpty(t, otp)

	rec = f.postForm(server.RouteEmailOTPVerify, url.Values{"email": {"bob@example.com"}, "otp": {"000000" + "x"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_grant", decodeJSON(t, rec)["error"])

	rec = f.postForm(server.RouteEmailOTPVerify, url.Values{"email": {"bob@example.com"}, "otp": {otp}, "return_to": {"/dashboard"}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))
	cookie := sessionCookie(t, rec)
	require.True(t, cookie.HttpOnly)

	u, err := f.users.GetByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	require.True(t, u.Verified)

	// A code works once.
	rec = f.postForm(server.RouteEmailOTPVerify, url.Values{"email": {"bob@example.com"}, "otp": {otp}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmailOTPRejectsBadInput(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.postForm(server.RouteEmailOTP, url.Values{"email": {"not an email"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postForm(server.RouteEmailOTPVerify, url.Values{"email": {testEmail}, "otp": {"123456"}, "return_to": {"https://evil.example.com"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postForm(server.RouteEmailOTPVerify, url.Values{"email": {testEmail}, "otp": {"123456"}, "return_to": {"//evil.example.com"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmailOTPRateLimited(t *testing.T) {
	f := newTestFixture(t, map[string]any{"ratelimit.max": 2})

	form := url.Values{"email": {testEmail}}
	for i := 0; i < 2; i++ {
		rec := f.postForm(server.RouteEmailOTP, form)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := f.postForm(server.RouteEmailOTP, form)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "rate_limited", decodeJSON(t, rec)["error"])

	// Another address has its own budget.
	rec = f.postForm(server.RouteEmailOTP, url.Values{"email": {"carol@example.com"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMagicLinkSignIn(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.postForm(server.RouteEmailMagicLink, url.Values{"email": {testEmail}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	link := f.notifier.link(verification.PurposeMagicLink, testEmail)
	require.True(t, strings.HasPrefix(link, testIssuer+server.RouteEmailMagicLinkVerify+"?"), link)

	linkURL, err := url.Parse(link)
	require.NoError(t, err)
	rec = f.get(linkURL.RequestURI())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	require.Equal(t, "signed_in", body["status"])
	require.Equal(t, f.user.ID, body["user_id"])
	sessionCookie(t, rec)

	rec = f.get(linkURL.RequestURI())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMagicLinkCompletesParkedAuthorization(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.get(authorizeQuery(nil))
	loginURL := location(t, rec)

	rec = f.postForm(server.RouteEmailMagicLink, url.Values{"email": {testEmail}, "return_to": {loginURL.RequestURI()}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	linkURL, err := url.Parse(f.notifier.link(verification.PurposeMagicLink, testEmail))
	require.NoError(t, err)

	rec = f.get(linkURL.RequestURI())
	require.Equal(t, http.StatusSeeOther, rec.Code)
	back := rec.Header().Get("Location")
	require.Equal(t, loginURL.RequestURI(), back)

	rec = f.get(back, sessionCookie(t, rec))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	code := location(t, rec).Query().Get("code")
	require.NotEmpty(t, code)
	f.exchange(t, code)
}

func TestSignupVerifyAndResetPassword(t *testing.T) {
	f := newTestFixture(t, nil)
	const email = "dave@example.com"

	rec := f.postForm(server.RouteAccountSignup, url.Values{"email": {email}, "password": {"weak"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postForm(server.RouteAccountSignup, url.Values{"email": {email}, "name": {"Dave"}, "password": {"Str0ng-Password"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// A second signup looks the same and sends nothing new.
	first := f.notifier.link(verification.PurposeEmailVerification, email)
	require.NotEmpty(t, first)
	rec = f.postForm(server.RouteAccountSignup, url.Values{"email": {email}, "password": {"Str0ng-Password"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, first, f.notifier.link(verification.PurposeEmailVerification, email))

	verifyURL, err := url.Parse(first)
	require.NoError(t, err)
	rec = f.get(verifyURL.RequestURI())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u, err := f.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.True(t, u.Verified)

	rec = f.postForm(server.RouteAccountForgotPassword, url.Values{"email": {"nobody@example.com"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, f.notifier.link(verification.PurposePasswordReset, "nobody@example.com"))

	rec = f.postForm(server.RouteAccountForgotPassword, url.Values{"email": {email}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	resetURL, err := url.Parse(f.notifier.link(verification.PurposePasswordReset, email))
	require.NoError(t, err)

	rec = f.get(resetURL.RequestURI())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="new_password"`)

	form := url.Values{
		"email":            {email},
		"token":            {resetURL.Query().Get("token")},
		"new_password":     {"N3w-Password-Here"},
		"confirm_password": {"N3w-Password-Other"},
	}
	rec = f.postForm(server.RouteAccountResetPassword, form)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	form.Set("confirm_password", "N3w-Password-Here")
	rec = f.postForm(server.RouteAccountResetPassword, form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = f.users.Authenticate(context.Background(), email, "N3w-Password-Here")
	require.NoError(t, err)

	// The reset link is spent.
	rec = f.postForm(server.RouteAccountResetPassword, form)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatePassword(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.postForm(server.RouteAccountValidatePassword, url.Values{"new_password": {"short"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	require.Equal(t, false, body["valid"])
	require.NotEmpty(t, body["reason"])

	rec = f.postForm(server.RouteAccountValidatePassword, url.Values{"new_password": {"Long-Enough-1"}})
	require.Equal(t, true, decodeJSON(t, rec)["valid"])
}

func TestRegisterClient(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newTestFixture(t, nil)
		req := httptest.NewRequest(http.MethodPost, server.RouteOAuthRegister, strings.NewReader(`{"redirect_uris":["https://new.example.com/cb"]}`))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("preshared", func(t *testing.T) {
		f := newTestFixture(t, map[string]any{
			"registration.enabled": true,
			"registration.mode":    "preshared",
			"registration.secret":  "initial-token",
		})

		rec := f.get(server.RouteWellKnownAuthorizationServer)
		require.Equal(t, testIssuer+server.RouteOAuthRegister, decodeJSON(t, rec)["registration_endpoint"])

		body := `{"redirect_uris":["https://new.example.com/cb"],"client_name":"New","scope":"read"}`
		req := httptest.NewRequest(http.MethodPost, server.RouteOAuthRegister, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec = f.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		req = httptest.NewRequest(http.MethodPost, server.RouteOAuthRegister, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer initial-token")
		rec = f.do(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decodeJSON(t, rec)
		require.NotEmpty(t, resp["client_id"])
		require.NotEmpty(t, resp["client_secret"])
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		req = httptest.NewRequest(http.MethodPost, server.RouteOAuthRegister, strings.NewReader(`{`))
		req.Header.Set("Authorization", "Bearer initial-token")
		rec = f.do(req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_client_metadata", decodeJSON(t, rec)["error"])
	})
}

func TestCorsPreflight(t *testing.T) {
	f := newTestFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, server.RouteOAuthToken, nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodOptions, server.RouteOAuthToken, nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, server.RouteWellKnownAuthorizationServer, nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = f.do(req)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestHTMLPagesDenyFraming(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.get(server.RouteOAuthLogin + "?state=x")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "frame-ancestors 'self'", rec.Header().Get("Content-Security-Policy"))
}

func TestRecoverMiddleware(t *testing.T) {
	f := newTestFixture(t, nil)
	f.server.RegisterRouteHandler("GET /panic", server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.server.APIMiddleware()...))

	rec := f.get("/panic")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "server_error", decodeJSON(t, rec)["error"])
}

func TestHealthz(t *testing.T) {
	f := newTestFixture(t, nil)

	rec := f.get(server.RouteHealthz)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeJSON(t, rec)["status"])
	require.Contains(t, f.server.Routes(), "POST "+server.RouteOAuthToken)
	require.NotContains(t, f.server.Routes(), "GET "+server.RouteMetrics)
}
