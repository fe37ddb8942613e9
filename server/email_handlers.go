package server

import (
	"net/http"
	"net/mail"
	"net/url"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/providers"
	"github.com/jrsteele09/go-auth-core/users"
	"github.com/jrsteele09/go-auth-core/verification"
)

// emailForm reads the normalised email and the optional local return_to of
// an email sign-in request. ok is false once a response has been written.
func emailForm(w http.ResponseWriter, values url.Values) (email, returnTo string, ok bool) {
	addr, err := mail.ParseAddress(values.Get("email"))
	if err != nil {
		writeJSONError(w, "invalid_request", "a valid email is required", http.StatusBadRequest)
		return "", "", false
	}
	if raw := values.Get("return_to"); raw != "" {
		if returnTo, err = providers.LocalReturnURL(raw); err != nil {
			writeJSONError(w, "invalid_request", "return_to must be a local path", http.StatusBadRequest)
			return "", "", false
		}
	}
	return users.NormalizeEmail(addr.Address), returnTo, true
}

// SendOTPHandler mails a sign-in code. The answer is the same whether or not
// the address belongs to a user.
func (s *Server) SendOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		email, _, ok := emailForm(w, r.PostForm)
		if !ok {
			return
		}
		if retryAfter, err := s.allowAttempt(r.Context(), rateOTP, email); err != nil {
			writeAttemptError(w, retryAfter, err)
			return
		}

		otp, err := s.verification.IssueOTP(r.Context(), verification.PurposeSignInOTP, email, 0, 0, "")
		if err != nil {
			s.log.Error().Err(err).Msg("issue otp failed")
			writeProtocolError(w, err)
			return
		}
		if err := s.notifier.SendOTP(r.Context(), email, otp); err != nil {
			s.log.Error().Err(err).Msg("deliver otp failed")
			writeProtocolError(w, errs.Unavailable(err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

// VerifyOTPHandler signs the owner of email in with the code they received.
func (s *Server) VerifyOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		email, returnTo, ok := emailForm(w, r.PostForm)
		if !ok {
			return
		}
		if retryAfter, err := s.allowAttempt(r.Context(), rateOTPVerify, email); err != nil {
			writeAttemptError(w, retryAfter, err)
			return
		}

		res, err := s.verification.VerifyOTP(r.Context(), verification.PurposeSignInOTP, email, r.PostForm.Get("otp"))
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		switch res.Status {
		case verification.Valid:
		case verification.AttemptsExceeded:
			writeJSONError(w, "invalid_grant", "too many attempts, request a new code", http.StatusUnauthorized)
			return
		default:
			writeJSONError(w, "invalid_grant", "the code is invalid or expired", http.StatusUnauthorized)
			return
		}
		s.resetAttempts(r.Context(), rateOTPVerify, email)
		s.signInByEmail(w, r, email, returnTo)
	}
}

// SendMagicLinkHandler mails a single-use sign-in link.
func (s *Server) SendMagicLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		email, returnTo, ok := emailForm(w, r.PostForm)
		if !ok {
			return
		}
		if retryAfter, err := s.allowAttempt(r.Context(), rateMagicLink, email); err != nil {
			writeAttemptError(w, retryAfter, err)
			return
		}

		tok, err := s.verification.IssueToken(r.Context(), verification.PurposeMagicLink, email, s.config.GetMagicLinkTTL())
		if err != nil {
			s.log.Error().Err(err).Msg("issue magic link failed")
			writeProtocolError(w, err)
			return
		}
		q := url.Values{"email": {email}, "token": {tok}}
		if returnTo != "" {
			q.Set("return_to", returnTo)
		}
		link := s.issuer() + RouteEmailMagicLinkVerify + "?" + q.Encode()
		if err := s.notifier.SendLink(r.Context(), email, verification.PurposeMagicLink, link); err != nil {
			s.log.Error().Err(err).Msg("deliver magic link failed")
			writeProtocolError(w, errs.Unavailable(err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

// VerifyMagicLinkHandler is the target of the mailed link.
func (s *Server) VerifyMagicLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		email, returnTo, ok := emailForm(w, q)
		if !ok {
			return
		}
		res, err := s.verification.ConsumeToken(r.Context(), verification.PurposeMagicLink, email, q.Get("token"))
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		if !res.OK() {
			writeJSONError(w, "invalid_grant", "the link is invalid or expired", http.StatusUnauthorized)
			return
		}
		s.signInByEmail(w, r, email, returnTo)
	}
}

// signInByEmail starts a session for the proven owner of email, then sends
// them to returnTo when one was given.
func (s *Server) signInByEmail(w http.ResponseWriter, r *http.Request, email, returnTo string) {
	u, err := s.users.SignInByEmail(r.Context(), email)
	if errs.Is(err, users.ErrBlocked) {
		writeJSONError(w, "access_denied", "", http.StatusForbidden)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("email sign-in failed")
		writeProtocolError(w, err)
		return
	}
	if _, err := s.startSession(w, r, u, ""); err != nil {
		s.log.Error().Err(err).Msg("create login session failed")
		writeProtocolError(w, err)
		return
	}
	if returnTo != "" {
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_in", "user_id": u.ID})
}
