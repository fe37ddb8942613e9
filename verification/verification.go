// Package verification checks the credentials a user presents directly:
// passwords, emailed one-time passcodes, and single-use email tokens such as
// magic links and password reset links.
//
// OTPs and tokens live in the credential store under "{purpose}:{email}".
// Every check that changes a record goes through UpdateVerification so that
// concurrent submissions cannot exceed the attempt ceiling.
package verification

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/metrics"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Purpose namespaces verification records.
type Purpose string

const (
	PurposeMagicLink         Purpose = "magic_link"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
	PurposeSignInOTP         Purpose = "sign_in_otp"
)

// StorageMode is how an OTP is kept at rest.
type StorageMode string

const (
	ModePlain StorageMode = "plain"
	// ModeHashed stores HMAC-SHA256(server key, otp). The OTP cannot be recovered.
	ModeHashed StorageMode = "hashed"
	// ModeEncrypted stores the OTP sealed with XChaCha20-Poly1305 so it can be
	// revealed again, e.g. to resend it.
	ModeEncrypted StorageMode = "encrypted"
)

const (
	DefaultOTPDigits   = 6
	DefaultOTPAttempts = 3
	DefaultOTPTTL      = 10 * time.Minute
	DefaultTokenTTL    = 15 * time.Minute
	DefaultTokenBytes  = 32
	DefaultBcryptCost  = bcrypt.DefaultCost
	minPasswordLength  = 8
)

var (
	// ErrMissingServerKey is returned when hashed or encrypted OTP storage is
	// configured without a server key.
	ErrMissingServerKey = fmt.Errorf("%w: a server key is required for hashed or encrypted OTP storage", errs.ErrInvalidConfig)
	// ErrUnknownMode rejects a storage mode other than plain, hashed or encrypted.
	ErrUnknownMode = fmt.Errorf("%w: unknown OTP storage mode", errs.ErrInvalidConfig)
	// ErrNotRevealable is returned by RevealOTP for hashed OTPs.
	ErrNotRevealable = fmt.Errorf("otp cannot be revealed in hashed mode")
	// ErrInvalidCredentials is a password mismatch.
	ErrInvalidCredentials = errs.ErrInvalidCredentials
)

// Status is the outcome of a verification attempt.
type Status int

const (
	Invalid Status = iota
	Valid
	AttemptsExceeded
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case AttemptsExceeded:
		return "attempts_exceeded"
	default:
		return "invalid"
	}
}

// Result reports a verification outcome. Remaining is the number of attempts
// left after an Invalid OTP submission.
type Result struct {
	Status    Status
	Remaining int
}

// OK reports whether the credential was accepted.
func (r Result) OK() bool {
	return r.Status == Valid
}

// OTPConfig holds the defaults used when IssueOTP is called with zero values.
type OTPConfig struct {
	Digits      int
	MaxAttempts int
	TTL         time.Duration
	Mode        StorageMode
}

type Engine struct {
	store      store.VerificationStore
	nowFunc    func() time.Time
	otp        OTPConfig
	tokenTTL   time.Duration
	serverKey  []byte
	bcryptCost int
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Engine)

func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.nowFunc = now
	}
}

func WithOTPConfig(cfg OTPConfig) Option {
	return func(e *Engine) {
		e.otp = cfg
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.tokenTTL = ttl
	}
}

// WithServerKey sets the secret used by the hashed and encrypted OTP modes.
func WithServerKey(key []byte) Option {
	return func(e *Engine) {
		e.serverKey = key
	}
}

func WithBcryptCost(cost int) Option {
	return func(e *Engine) {
		e.bcryptCost = cost
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New returns an Engine over s. The configured default OTP mode is checked
// against the server key here so a misconfiguration fails at startup.
func New(s store.VerificationStore, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:      s,
		nowFunc:    time.Now,
		tokenTTL:   DefaultTokenTTL,
		bcryptCost: DefaultBcryptCost,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.otp.Digits == 0 {
		e.otp.Digits = DefaultOTPDigits
	}
	if e.otp.MaxAttempts <= 0 {
		e.otp.MaxAttempts = DefaultOTPAttempts
	}
	if e.otp.TTL <= 0 {
		e.otp.TTL = DefaultOTPTTL
	}
	if e.otp.Mode == "" {
		e.otp.Mode = ModePlain
	}
	if e.tokenTTL <= 0 {
		e.tokenTTL = DefaultTokenTTL
	}
	if err := e.checkMode(e.otp.Mode); err != nil {
		return nil, err
	}
	if e.bcryptCost < bcrypt.MinCost || e.bcryptCost > bcrypt.MaxCost {
		return nil, errs.Config("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return e, nil
}

func (e *Engine) checkMode(mode StorageMode) error {
	switch mode {
	case ModePlain:
		return nil
	case ModeHashed, ModeEncrypted:
		if len(e.serverKey) == 0 {
			return ErrMissingServerKey
		}
		return nil
	default:
		return ErrUnknownMode
	}
}

// Identifier is the store key for purpose and email. Emails are compared
// case-insensitively.
func Identifier(purpose Purpose, email string) string {
	return string(purpose) + ":" + strings.ToLower(strings.TrimSpace(email))
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum[:])
}
