package server

import (
	"net/http"
	"net/url"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/users"
	"github.com/jrsteele09/go-auth-core/verification"
)

// ValidatePasswordHandler validates password strength via API
func (s *Server) ValidatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		if err := verification.ValidatePasswordStrength(r.PostForm.Get("new_password")); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
	}
}

// SignupHandler creates a password account and mails a verification link.
// An email that is already registered gets the same answer.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		email, _, ok := emailForm(w, r.PostForm)
		if !ok {
			return
		}
		password := r.PostForm.Get("password")
		if err := verification.ValidatePasswordStrength(password); err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}
		if retryAfter, err := s.allowAttempt(r.Context(), rateSignup, email); err != nil {
			writeAttemptError(w, retryAfter, err)
			return
		}

		hash, err := s.verification.HashPassword(password)
		if err != nil {
			s.log.Error().Err(err).Msg("hash password failed")
			writeProtocolError(w, err)
			return
		}
		_, err = s.users.Register(r.Context(), email, r.PostForm.Get("name"), hash)
		switch {
		case errs.Is(err, users.ErrAlreadyExists):
			s.log.Debug().Msg("signup for a registered email")
		case err != nil:
			s.log.Error().Err(err).Msg("signup failed")
			writeProtocolError(w, err)
			return
		default:
			if err := s.sendAccountLink(r, email, verification.PurposeEmailVerification, RouteAccountVerifyEmail); err != nil {
				writeProtocolError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "verification_sent"})
	}
}

// VerifyEmailHandler is the target of the verification link. Proving the
// address also signs the user in.
func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		email, returnTo, ok := emailForm(w, q)
		if !ok {
			return
		}
		res, err := s.verification.ConsumeToken(r.Context(), verification.PurposeEmailVerification, email, q.Get("token"))
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

// ForgotPasswordHandler mails a reset link to a registered email. The answer
// does not reveal whether the email is registered.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		email, _, ok := emailForm(w, r.PostForm)
		if !ok {
			return
		}
		if retryAfter, err := s.allowAttempt(r.Context(), ratePasswordReset, email); err != nil {
			writeAttemptError(w, retryAfter, err)
			return
		}

		_, err := s.users.GetByEmail(r.Context(), email)
		switch {
		case errs.Is(err, users.ErrNotFound):
		case err != nil:
			s.log.Error().Err(err).Msg("password reset lookup failed")
			writeProtocolError(w, err)
			return
		default:
			if err := s.sendAccountLink(r, email, verification.PurposePasswordReset, RouteAccountResetPassword); err != nil {
				writeProtocolError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

// ResetPasswordHandler sets a new password with the token from a reset link.
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
			return
		}
		email, _, ok := emailForm(w, r.PostForm)
		if !ok {
			return
		}
		newPassword := r.PostForm.Get("new_password")
		if newPassword != r.PostForm.Get("confirm_password") {
			writeJSONError(w, "invalid_request", "passwords do not match", http.StatusBadRequest)
			return
		}
		if err := verification.ValidatePasswordStrength(newPassword); err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		res, err := s.verification.ConsumeToken(r.Context(), verification.PurposePasswordReset, email, r.PostForm.Get("token"))
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		if !res.OK() {
			writeJSONError(w, "invalid_grant", "the reset link is invalid or expired", http.StatusUnauthorized)
			return
		}

		hash, err := s.verification.HashPassword(newPassword)
		if err != nil {
			s.log.Error().Err(err).Msg("hash password failed")
			writeProtocolError(w, err)
			return
		}
		if err := s.users.SetPassword(r.Context(), email, hash); err != nil {
			s.log.Error().Err(err).Msg("set password failed")
			writeProtocolError(w, err)
			return
		}
		s.resetAttempts(r.Context(), rateLogin, email)
		writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
	}
}

// sendAccountLink issues a single-use token for purpose and mails a link to
// route carrying it.
func (s *Server) sendAccountLink(r *http.Request, email string, purpose verification.Purpose, route string) error {
	tok, err := s.verification.IssueToken(r.Context(), purpose, email, 0)
	if err != nil {
		s.log.Error().Err(err).Str("purpose", string(purpose)).Msg("issue account token failed")
		return err
	}
	link := s.issuer() + route + "?" + url.Values{"email": {email}, "token": {tok}}.Encode()
	if err := s.notifier.SendLink(r.Context(), email, purpose, link); err != nil {
		s.log.Error().Err(err).Str("purpose", string(purpose)).Msg("deliver account link failed")
		return errs.Unavailable(err)
	}
	return nil
}

type resetPageData struct {
	Title  string
	Action string
	Email  string
	Token  string
}

// ResetPasswordPageHandler renders the form the reset link opens. The token
// is only checked when the form is submitted.
func (s *Server) ResetPasswordPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.renderTemplate(w, http.StatusOK, "reset_password.html", resetPageData{
			Title:  s.config.GetAppName(),
			Action: RouteAccountResetPassword,
			Email:  q.Get("email"),
			Token:  q.Get("token"),
		})
	}
}
