package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauthmodel"
	"github.com/jrsteele09/go-auth-core/ratelimit"
)

// Rate limited actions. Each is counted per email address.
const (
	rateLogin         = "login"
	rateOTP           = "otp"
	rateOTPVerify     = "otp_verify"
	rateMagicLink     = "magic_link"
	rateSignup        = "signup"
	ratePasswordReset = "password_reset"
)

var errMissingState = oauthmodel.NewError(oauthmodel.InvalidRequest, "state is required")

func rateKey(action, identifier string) string {
	return action + ":" + identifier
}

// allowAttempt counts an attempt at action by identifier. Over the limit it
// returns ratelimit.ErrRateLimited and how long until a retry can succeed.
// A limiter backend failure is returned as is and refuses the attempt.
func (s *Server) allowAttempt(ctx context.Context, action, identifier string) (time.Duration, error) {
	if !s.config.GetEnableRateLimiting() {
		return 0, nil
	}
	d, err := s.limiter.CheckAndRecord(ctx, rateKey(action, identifier), s.config.GetRateLimitWindow(), s.config.GetRateLimitMax())
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("rate limiter unavailable")
		return 0, err
	}
	if !d.Allowed {
		s.metrics.RateLimited(action)
		s.log.Info().Str("action", action).Dur("retry_after", d.RetryAfter).Msg("rate limited")
		return d.RetryAfter, ratelimit.ErrRateLimited
	}
	return 0, nil
}

// resetAttempts clears the count after a successful sign-in.
func (s *Server) resetAttempts(ctx context.Context, action, identifier string) {
	if !s.config.GetEnableRateLimiting() {
		return
	}
	if err := s.limiter.Reset(ctx, rateKey(action, identifier)); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("rate limiter reset failed")
	}
}

// setRetryAfter writes d as whole seconds, rounded up.
func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

// writeAttemptError renders an allowAttempt failure as JSON.
func writeAttemptError(w http.ResponseWriter, retryAfter time.Duration, err error) {
	if errs.Is(err, ratelimit.ErrRateLimited) {
		setRetryAfter(w, retryAfter)
		writeJSONError(w, "rate_limited", "too many attempts, try again later", http.StatusTooManyRequests)
		return
	}
	writeProtocolError(w, err)
}
