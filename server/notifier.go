package server

import (
	"context"

	"github.com/jrsteele09/go-auth-core/verification"
	"github.com/rs/zerolog"
)

// Notifier delivers sign-in and account secrets to the owner of an email
// address. purpose tells a link apart: magic link, email verification or
// password reset.
type Notifier interface {
	SendOTP(ctx context.Context, email, otp string) error
	SendLink(ctx context.Context, email string, purpose verification.Purpose, link string) error
}

// LogNotifier writes the message to the log instead of sending it. It suits
// development; the secret is logged at Debug only.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(l zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: l}
}

func (n *LogNotifier) SendOTP(_ context.Context, email, otp string) error {
	n.log.Debug().Str("email", email).Str("otp", otp).Msg("sign-in code")
	return nil
}

func (n *LogNotifier) SendLink(_ context.Context, email string, purpose verification.Purpose, link string) error {
	n.log.Debug().Str("email", email).Str("purpose", string(purpose)).Str("link", link).Msg("email link")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
