package server

import (
	"net/http"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/providers"
	"github.com/jrsteele09/go-auth-core/users"
)

// ProviderLoginHandler sends the browser to the upstream provider's consent page.
func (s *Server) ProviderLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		authURL, err := s.providers.Begin(r.Context(), name, r.URL.Query().Get("return_to"))
		switch {
		case errs.Is(err, providers.ErrUnknownProvider):
			http.NotFound(w, r)
			return
		case errs.Is(err, providers.ErrInvalidReturnURL):
			s.renderErrorPage(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "return_to must be a local path"))
			return
		case err != nil:
			s.log.Error().Err(err).Str("provider", name).Msg("provider sign-in could not start")
			s.renderErrorPage(w, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// ProviderCallbackHandler finishes an upstream sign-in and starts a session
// for the matching local user.
func (s *Server) ProviderCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		q := r.URL.Query()
		if upstreamErr := q.Get("error"); upstreamErr != "" {
			s.log.Info().Str("provider", name).Str("error", upstreamErr).Msg("provider sign-in refused")
			s.renderErrorPage(w, oauthmodel.NewError(oauthmodel.AccessDenied, "sign-in was cancelled at the provider"))
			return
		}

		identity, returnURL, err := s.providers.Complete(r.Context(), name, q.Get("state"), q.Get("code"))
		switch {
		case errs.Is(err, providers.ErrUnknownProvider):
			http.NotFound(w, r)
			return
		case errs.Is(err, providers.ErrInvalidState):
			s.renderErrorPage(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "the sign-in expired, please start again"))
			return
		case errs.IsRetryable(err):
			s.log.Error().Err(err).Str("provider", name).Msg("provider unavailable")
			s.renderErrorPage(w, err)
			return
		case err != nil:
			s.log.Info().Err(err).Str("provider", name).Msg("provider sign-in failed")
			s.renderErrorPage(w, oauthmodel.WrapError(oauthmodel.AccessDenied, "the provider sign-in could not be verified", err))
			return
		}

		u, err := s.users.SignInWithIdentity(r.Context(), identity)
		switch {
		case errs.Is(err, errs.ErrInvalidCredentials), errs.Is(err, users.ErrBlocked):
			s.renderErrorPage(w, oauthmodel.WrapError(oauthmodel.AccessDenied, "this account cannot sign in with "+name, err))
			return
		case err != nil:
			s.log.Error().Err(err).Str("provider", name).Msg("resolve provider identity failed")
			s.renderErrorPage(w, err)
			return
		}
		if _, err := s.startSession(w, r, u, name); err != nil {
			s.log.Error().Err(err).Msg("create login session failed")
			s.renderErrorPage(w, err)
			return
		}
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
	}
}
