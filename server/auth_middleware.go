package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-core/auth"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/server/loginsession"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/jrsteele09/go-auth-core/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyAccessToken stores the *store.AccessToken RequireBearer accepted.
const ContextKeyAccessToken ContextKey = "access_token"

// SessionCookieName carries the login session id.
const SessionCookieName = "authcore_session"

// AccessTokenFromContext returns the token RequireBearer stored on ctx.
func AccessTokenFromContext(ctx context.Context) (*store.AccessToken, bool) {
	at, ok := ctx.Value(ContextKeyAccessToken).(*store.AccessToken)
	return at, ok
}

// ResolvePrincipal returns the signed-in user of r, or nil when r carries no
// live login session.
func (s *Server) ResolvePrincipal(r *http.Request) *auth.Principal {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	session, err := s.loginSessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if !errs.Is(err, loginsession.ErrNotFound) {
			s.log.Error().Err(err).Msg("login session lookup failed")
		}
		return nil
	}
	return &auth.Principal{UserID: session.UserID, SessionID: session.ID}
}

// startSession signs u in on this server and sets the session cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *users.User, provider string) (*auth.Principal, error) {
	session, err := s.loginSessions.Create(r.Context(), loginsession.Session{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Provider: provider,
	})
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})
	s.log.Info().Str("user_id", u.ID).Str("provider", provider).Msg("signed in")
	return &auth.Principal{UserID: session.UserID, SessionID: session.ID}, nil
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := s.loginSessions.Delete(r.Context(), cookie.Value); err != nil {
			s.log.Error().Err(err).Msg("delete login session failed")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// bearerToken returns the credential of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// RequireBearer is middleware that validates a Bearer access token against
// the configured resource. Failures carry an RFC 6750 challenge that points
// at the protected resource metadata.
func (s *Server) RequireBearer() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				s.bearerChallenge(w, "")
				writeJSONError(w, "invalid_request", "bearer token required", http.StatusUnauthorized)
				return
			}

			at, err := s.tokens.VerifyToken(r.Context(), raw, s.config.GetResourceURL(), s.config.GetStrictResource())
			switch {
			case errs.Is(err, token.ErrInvalidToken), errs.Is(err, token.ErrAudienceMismatch):
				s.bearerChallenge(w, "invalid_token")
				writeJSONError(w, "invalid_token", "the access token is invalid", http.StatusUnauthorized)
				return
			case err != nil:
				s.log.Error().Err(err).Msg("bearer token verification failed")
				writeProtocolError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAccessToken, at)
			next(w, r.WithContext(ctx))
		}
	}
}

func (s *Server) bearerChallenge(w http.ResponseWriter, errorCode string) {
	challenge := `Bearer realm="` + s.issuer() + `", resource_metadata="` + s.issuer() + RouteWellKnownProtectedResource + `"`
	if errorCode != "" {
		challenge += `, error="` + errorCode + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
}
