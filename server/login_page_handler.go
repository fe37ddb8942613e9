package server

import (
	"net/http"
	"net/url"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/ratelimit"
	"github.com/jrsteele09/go-auth-core/users"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	Title     string
	Action    string
	State     string // authorization state the login completes
	Email     string // preserved on error
	Error     string
	Providers []providerLink
}

type providerLink struct {
	Name string
	URL  string
}

// LoginPageHandler displays the login page of a parked authorization. A user
// who already signed in, for instance through a provider or an email link
// that returned here, completes the authorization at once.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		if state == "" {
			s.renderErrorPage(w, errMissingState)
			return
		}
		if principal := s.ResolvePrincipal(r); principal != nil {
			redirect, err := s.auth.CompleteAuthorization(r.Context(), state, principal)
			s.finishAuthorization(w, r, redirect, err)
			return
		}
		s.renderLogin(w, r, http.StatusOK, state, r.URL.Query().Get("login_hint"), "")
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		state := r.PostForm.Get("state")
		email := users.NormalizeEmail(r.PostForm.Get("email"))
		password := r.PostForm.Get("password")

		if state == "" {
			s.renderErrorPage(w, errMissingState)
			return
		}
		if email == "" || password == "" {
			s.renderLogin(w, r, http.StatusBadRequest, state, email, "Email and password are required")
			return
		}
		if retryAfter, err := s.allowAttempt(r.Context(), rateLogin, email); err != nil {
			if errs.Is(err, ratelimit.ErrRateLimited) {
				setRetryAfter(w, retryAfter)
				s.renderLogin(w, r, http.StatusTooManyRequests, state, email, "Too many attempts, try again later")
				return
			}
			s.renderErrorPage(w, err)
			return
		}

		u, err := s.users.Authenticate(r.Context(), email, password)
		switch {
		case errs.Is(err, errs.ErrInvalidCredentials), errs.Is(err, users.ErrBlocked):
			s.renderLogin(w, r, http.StatusUnauthorized, state, email, "Invalid email or password")
			return
		case err != nil:
			s.log.Error().Err(err).Msg("password login failed")
			s.renderErrorPage(w, err)
			return
		}
		s.resetAttempts(r.Context(), rateLogin, email)

		principal, err := s.startSession(w, r, u, "")
		if err != nil {
			s.log.Error().Err(err).Msg("create login session failed")
			s.renderErrorPage(w, err)
			return
		}
		redirect, err := s.auth.CompleteAuthorization(r.Context(), state, principal)
		s.finishAuthorization(w, r, redirect, err)
	}
}

// LogoutHandler ends the login session. Tokens already issued stay valid
// until they expire or are revoked.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.endSession(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, state, email, message string) {
	data := LoginPageData{
		Title:  s.config.GetAppName(),
		Action: RouteOAuthLogin,
		State:  state,
		Email:  email,
		Error:  message,
	}
	if s.providers != nil {
		// Providers return to this page, which then completes the authorization.
		back := RouteOAuthLogin + "?" + url.Values{"state": {state}}.Encode()
		for _, name := range s.providers.Names() {
			data.Providers = append(data.Providers, providerLink{
				Name: name,
				URL:  "/providers/" + url.PathEscape(name) + "/login?" + url.Values{"return_to": {back}}.Encode(),
			})
		}
	}
	s.renderTemplate(w, status, "login.html", data)
}
