// Package auth is the authorization server state machine: authorization
// requests, code issuance, the token endpoint grants, dynamic client
// registration, and the client authentication of introspection and
// revocation.
//
// An authorization moves from INITIATED (a state entry awaiting login) to
// CODE_ISSUED (a single-use code) and then to EXCHANGED, or dies as EXPIRED or
// INVALID. Every transition is an atomic take from the credential store.
package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/metrics"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/pkce"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/jrsteele09/go-auth-core/token/idtoken"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	codeGenerationLength = 32
	DefaultCodeTTL       = 5 * time.Minute
	DefaultStateTTL      = 10 * time.Minute
	DefaultScope         = "user"

	// OfflineAccessScope asks for a refresh token.
	OfflineAccessScope = "offline_access"
	// OpenIDScope asks for an ID token.
	OpenIDScope = "openid"
)

// Principal is the authenticated end user an authorization is granted for.
type Principal struct {
	UserID    string
	SessionID string
}

// Redirect is the authorization response to send the user agent to. When Err
// is set the response carries error and error_description instead of a code.
type Redirect struct {
	URI          string
	ResponseMode oauth2.ResponseModeType
	Code         string
	State        string
	Err          *oauthmodel.Error
}

// Values are the response parameters.
func (r *Redirect) Values() url.Values {
	v := url.Values{}
	if r.Err != nil {
		v.Set("error", string(r.Err.Code))
		if r.Err.Description != "" {
			v.Set("error_description", r.Err.Description)
		}
	} else {
		v.Set("code", r.Code)
	}
	if r.State != "" {
		v.Set("state", r.State)
	}
	return v
}

// Location is the URL for a query or fragment mode redirect.
func (r *Redirect) Location() string {
	u, err := url.Parse(r.URI)
	if err != nil {
		return r.URI
	}
	if r.ResponseMode == oauth2.FragmentResponseMode {
		u.Fragment = r.Values().Encode()
		return u.String()
	}
	q := u.Query()
	for k, vs := range r.Values() {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AuthorizationService provides methods for OAuth2 authorization and token requests.
type AuthorizationService struct {
	store              store.CredentialStore
	tokens             *token.Manager
	idTokens           *idtoken.Issuer
	nowTime            func() time.Time
	codeTTL            time.Duration
	stateTTL           time.Duration
	defaultScope       string
	alwaysRefresh      bool
	registrationPolicy RegistrationPolicy
	revocationPolicy   RevocationPolicy
	log                zerolog.Logger
	metrics            *metrics.Metrics
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithCodeTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.codeTTL = ttl
	}
}

func WithStateTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.stateTTL = ttl
	}
}

// WithDefaultScope sets the scope granted when a request names none.
func WithDefaultScope(scope string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.defaultScope = scope
	}
}

// WithAlwaysIssueRefreshToken issues refresh tokens without offline_access.
func WithAlwaysIssueRefreshToken(always bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.alwaysRefresh = always
	}
}

// WithIDTokens enables ID tokens for the openid scope.
func WithIDTokens(issuer *idtoken.Issuer) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.idTokens = issuer
	}
}

func WithRegistrationPolicy(p RegistrationPolicy) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.registrationPolicy = p
	}
}

func WithRevocationPolicy(p RevocationPolicy) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.revocationPolicy = p
	}
}

func WithLogger(l zerolog.Logger) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.log = l
	}
}

func WithMetrics(m *metrics.Metrics) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.metrics = m
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewAuthorizationService(
	credentialStore store.CredentialStore,
	tokens *token.Manager,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if credentialStore == nil {
		return nil, errors.New("[NewAuthorizationService] credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewAuthorizationService] token manager is required")
	}

	authService := &AuthorizationService{
		store:            credentialStore,
		tokens:           tokens,
		nowTime:          time.Now,
		codeTTL:          DefaultCodeTTL,
		stateTTL:         DefaultStateTTL,
		defaultScope:     DefaultScope,
		revocationPolicy: RevocationPolicy{Auth: RevocationAuthClient},
		log:              zerolog.Nop(),
	}

	// Apply optional configuration
	for _, opt := range options {
		opt(authService)
	}

	if authService.codeTTL <= 0 || authService.stateTTL <= 0 {
		return nil, errs.Config("code and state TTLs must be positive")
	}
	if err := authService.registrationPolicy.validate(); err != nil {
		return nil, err
	}
	if err := authService.revocationPolicy.validate(); err != nil {
		return nil, err
	}
	return authService, nil
}

// RegistrationPolicy returns the configured registration policy.
func (as *AuthorizationService) RegistrationPolicy() RegistrationPolicy {
	return as.registrationPolicy
}

// authorizationRequest is an authorization request checked against its client.
type authorizationRequest struct {
	client      *clients.Client
	params      *oauthmodel.AuthorizationParams
	redirectURI string
	explicit    bool
	scopes      []string
}

func (r *authorizationRequest) redirect() *Redirect {
	return &Redirect{
		URI:          r.redirectURI,
		ResponseMode: r.params.ResponseMode,
		State:        r.params.State,
	}
}

// validateAuthorization checks params against the registered client. Once the
// redirect URI is trusted, failures come back together with the request so
// the caller can report them to the client.
func (as *AuthorizationService) validateAuthorization(ctx context.Context, params *oauthmodel.AuthorizationParams) (*authorizationRequest, error) {
	if params == nil || params.ClientID == "" {
		return nil, protocolError(oauthmodel.InvalidRequest, UnknownClientErr)
	}

	client, err := as.store.GetClient(ctx, params.ClientID)
	if errs.Is(err, store.ErrNotFound) {
		as.log.Debug().Str("client_id", params.ClientID).Msg("authorize: unknown client")
		return nil, protocolError(oauthmodel.InvalidClient, UnknownClientErr)
	}
	if err != nil {
		as.log.Error().Err(err).Str("client_id", params.ClientID).Msg("authorize: client lookup failed")
		return nil, oauthmodel.FromError(err)
	}

	redirectURI, explicit, err := client.ResolveRedirectURI(params.RedirectURI)
	if err != nil {
		as.log.Debug().Str("client_id", client.ID).Str("reason", "redirect_uri").Msg("authorize rejected")
		return nil, protocolError(oauthmodel.InvalidRequest, RedirectURIMismatchErr)
	}

	req := &authorizationRequest{
		client:      client,
		params:      params,
		redirectURI: redirectURI,
		explicit:    explicit,
	}

	if strings.TrimSpace(params.CodeChallenge) == "" {
		return req, protocolError(oauthmodel.InvalidRequest, MissingPKCEChallengeErr)
	}
	if err := pkce.ValidateMethod(params.CodeChallengeMethod); err != nil {
		return req, oauthmodel.WrapError(oauthmodel.InvalidRequest, err.Error(), UnsupportedChallengeMethodErr)
	}
	if err := params.Validate(); err != nil {
		return req, err
	}
	if !client.AllowsGrant(clients.GrantAuthorizationCode) {
		return req, protocolError(oauthmodel.UnauthorizedClient, GrantNotAllowedErr)
	}

	granted, err := as.resolveScopes(client, params.Scopes)
	if err != nil {
		as.log.Debug().Str("client_id", client.ID).Strs("scope", params.Scopes).Msg("authorize: no requested scope is allowed")
		return req, err
	}
	req.scopes = granted
	return req, nil
}

// resolveScopes drops requested scopes the client may not have. An empty
// request gets the default scope when the client is allowed it.
func (as *AuthorizationService) resolveScopes(client *clients.Client, requested []string) ([]string, error) {
	if len(requested) == 0 {
		if as.defaultScope != "" && client.HasScope(as.defaultScope) {
			return []string{as.defaultScope}, nil
		}
		return []string{}, nil
	}
	granted, err := client.FilterScopes(requested)
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidScope, "none of the requested scopes are allowed", err)
	}
	return granted, nil
}

// Authorize issues an authorization code for an authenticated principal.
// The returned Redirect is non-nil whenever the redirect URI was validated,
// including when err is a protocol error to report to the client.
func (as *AuthorizationService) Authorize(ctx context.Context, params *oauthmodel.AuthorizationParams, principal *Principal) (*Redirect, error) {
	req, err := as.validateAuthorization(ctx, params)
	if err != nil {
		return as.errorRedirect(req, err)
	}
	if principal == nil || principal.UserID == "" {
		return as.errorRedirect(req, protocolError(oauthmodel.AccessDenied, NoPrincipalErr))
	}

	code, err := as.issueCode(ctx, &store.AuthorizationCode{
		ClientID:            req.client.ID,
		Scopes:              req.scopes,
		CodeChallenge:       params.CodeChallenge,
		RedirectURI:         req.redirectURI,
		RedirectURIExplicit: req.explicit,
		Resource:            params.Resource,
		Nonce:               params.Nonce,
		UserID:              principal.UserID,
		SessionID:           principal.SessionID,
	})
	if err != nil {
		return as.errorRedirect(req, err)
	}
	r := req.redirect()
	r.Code = code
	return r, nil
}

// BeginAuthorization validates an authorization request and parks it until
// the user has logged in. The client's state becomes the state identifier
// when present. The returned Redirect is set on reportable errors as with
// Authorize.
func (as *AuthorizationService) BeginAuthorization(ctx context.Context, params *oauthmodel.AuthorizationParams) (string, *Redirect, error) {
	req, err := as.validateAuthorization(ctx, params)
	if err != nil {
		r, err := as.errorRedirect(req, err)
		return "", r, err
	}

	stateID, err := as.store.PutState(ctx, &store.StateEntry{
		State:               params.State,
		ClientID:            req.client.ID,
		RedirectURI:         req.redirectURI,
		RedirectURIExplicit: req.explicit,
		CodeChallenge:       params.CodeChallenge,
		Scopes:              req.scopes,
		Resource:            params.Resource,
		Nonce:               params.Nonce,
		ClientState:         params.State,
		ResponseMode:        string(params.ResponseMode),
	}, as.stateTTL)
	if errs.Is(err, store.ErrAlreadyExists) {
		as.log.Debug().Str("client_id", req.client.ID).Msg("authorize: duplicate state")
		r, err := as.errorRedirect(req, protocolError(oauthmodel.InvalidRequest, DuplicateStateErr))
		return "", r, err
	}
	if err != nil {
		as.log.Error().Err(err).Str("client_id", req.client.ID).Msg("authorize: persist state failed")
		r, err := as.errorRedirect(req, oauthmodel.FromError(err))
		return "", r, err
	}
	return stateID, nil, nil
}

// CompleteAuthorization consumes a state created by BeginAuthorization and
// issues the code for principal.
func (as *AuthorizationService) CompleteAuthorization(ctx context.Context, stateID string, principal *Principal) (*Redirect, error) {
	entry, err := as.store.TakeState(ctx, stateID)
	if errs.Is(err, store.ErrNotFound) || (err == nil && entry.Provider != "") {
		return nil, protocolError(oauthmodel.InvalidRequest, UnknownStateErr)
	}
	if err != nil {
		as.log.Error().Err(err).Msg("authorize: take state failed")
		return nil, oauthmodel.FromError(err)
	}

	r := &Redirect{
		URI:          entry.RedirectURI,
		ResponseMode: oauth2.ResponseModeType(entry.ResponseMode),
		State:        entry.ClientState,
	}
	if principal == nil || principal.UserID == "" {
		r.Err = protocolError(oauthmodel.AccessDenied, NoPrincipalErr)
		return r, r.Err
	}

	code, err := as.issueCode(ctx, &store.AuthorizationCode{
		ClientID:            entry.ClientID,
		Scopes:              entry.Scopes,
		CodeChallenge:       entry.CodeChallenge,
		RedirectURI:         entry.RedirectURI,
		RedirectURIExplicit: entry.RedirectURIExplicit,
		Resource:            entry.Resource,
		Nonce:               entry.Nonce,
		UserID:              principal.UserID,
		SessionID:           principal.SessionID,
	})
	if err != nil {
		r.Err = oauthmodel.FromError(err)
		return r, r.Err
	}
	r.Code = code
	return r, nil
}

func (as *AuthorizationService) issueCode(ctx context.Context, code *store.AuthorizationCode) (string, error) {
	value, err := random.Token(codeGenerationLength)
	if err != nil {
		return "", errors.Wrap(err, "[AuthorizationService.issueCode] generate")
	}
	code.Code = value
	if err := as.store.PutCode(ctx, code, as.codeTTL); err != nil {
		as.log.Error().Err(err).Str("client_id", code.ClientID).Msg("authorize: persist code failed")
		return "", oauthmodel.FromError(errors.Wrap(err, "[AuthorizationService.issueCode] put"))
	}
	as.log.Info().Str("client_id", code.ClientID).Msg("authorization code issued")
	return value, nil
}

func (as *AuthorizationService) errorRedirect(req *authorizationRequest, err error) (*Redirect, error) {
	pe := oauthmodel.FromError(err)
	if req == nil {
		return nil, pe
	}
	r := req.redirect()
	r.Err = pe
	return r, pe
}

