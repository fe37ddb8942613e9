package verification

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Stored OTP values carry their mode so a change of the configured default
// does not break records already issued.
const (
	plainPrefix     = "plain:"
	hashedPrefix    = "hmac:"
	encryptedPrefix = "xc20p:"
)

var errUndecodable = errors.New("stored otp cannot be decoded")

// IssueOTP creates a numeric OTP for purpose and email, replacing any
// outstanding one, and returns it in plain text for delivery. Zero digits,
// ttl or mode fall back to the engine's OTP configuration.
func (e *Engine) IssueOTP(ctx context.Context, purpose Purpose, email string, digits int, ttl time.Duration, mode StorageMode) (string, error) {
	if digits == 0 {
		digits = e.otp.Digits
	}
	if ttl <= 0 {
		ttl = e.otp.TTL
	}
	if mode == "" {
		mode = e.otp.Mode
	}
	if err := e.checkMode(mode); err != nil {
		return "", err
	}

	otp, err := random.NumericOTP(digits)
	if err != nil {
		return "", err
	}
	value, err := e.seal(mode, otp)
	if err != nil {
		return "", err
	}

	now := e.nowFunc()
	rec := &store.VerificationRecord{
		Identifier: Identifier(purpose, email),
		Value:      value,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := e.store.PutVerification(ctx, rec); err != nil {
		return "", errors.Wrap(err, "[Engine.IssueOTP] put")
	}
	e.log.Debug().Str("purpose", string(purpose)).Str("mode", string(mode)).Msg("otp issued")
	return otp, nil
}

// RevealOTP returns the outstanding OTP without consuming it. Hashed OTPs
// cannot be revealed.
func (e *Engine) RevealOTP(ctx context.Context, purpose Purpose, email string) (string, error) {
	rec, err := e.store.GetVerification(ctx, Identifier(purpose, email))
	if err != nil {
		return "", errors.Wrap(err, "[Engine.RevealOTP]")
	}
	switch {
	case strings.HasPrefix(rec.Value, hashedPrefix):
		return "", ErrNotRevealable
	case strings.HasPrefix(rec.Value, plainPrefix):
		return strings.TrimPrefix(rec.Value, plainPrefix), nil
	case strings.HasPrefix(rec.Value, encryptedPrefix):
		return e.open(strings.TrimPrefix(rec.Value, encryptedPrefix))
	}
	return "", errUndecodable
}

// VerifyOTP checks submitted against the outstanding OTP. A correct OTP is
// consumed. A wrong one counts as an attempt, and the attempt that reaches
// the ceiling consumes the record, so a later correct submission is Invalid.
// The returned error is only set for store failures.
func (e *Engine) VerifyOTP(ctx context.Context, purpose Purpose, email, submitted string) (Result, error) {
	maxAttempts := e.otp.MaxAttempts
	var result Result
	err := e.store.UpdateVerification(ctx, Identifier(purpose, email), func(rec *store.VerificationRecord) (store.Action, error) {
		result = Result{Status: Invalid}
		if rec.Attempts >= maxAttempts {
			result.Status = AttemptsExceeded
			return store.Delete, nil
		}
		if e.matches(rec.Value, submitted) {
			result.Status = Valid
			return store.Delete, nil
		}
		rec.Attempts++
		if rec.Attempts >= maxAttempts {
			result.Status = AttemptsExceeded
			return store.Delete, nil
		}
		result.Remaining = maxAttempts - rec.Attempts
		return store.Keep, nil
	})
	if errs.Is(err, store.ErrNotFound) {
		result = Result{Status: Invalid}
		err = nil
	}
	if err != nil {
		e.log.Error().Err(err).Str("purpose", string(purpose)).Msg("otp verification failed")
		return Result{Status: Invalid}, errors.Wrap(err, "[Engine.VerifyOTP]")
	}
	e.metrics.OTPVerified(result.Status.String())
	e.log.Debug().Str("purpose", string(purpose)).Str("outcome", result.Status.String()).Msg("otp verified")
	return result, nil
}

func (e *Engine) seal(mode StorageMode, otp string) (string, error) {
	switch mode {
	case ModeHashed:
		return hashedPrefix + e.mac(otp), nil
	case ModeEncrypted:
		aead, err := chacha20poly1305.NewX(e.encryptionKey())
		if err != nil {
			return "", errors.Wrap(err, "[Engine.seal]")
		}
		nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(otp)+aead.Overhead())
		if _, err := rand.Read(nonce); err != nil {
			return "", errors.Wrap(err, "[Engine.seal] nonce")
		}
		sealed := aead.Seal(nonce, nonce, []byte(otp), nil)
		return encryptedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
	default:
		return plainPrefix + otp, nil
	}
}

func (e *Engine) open(encoded string) (string, error) {
	if len(e.serverKey) == 0 {
		return "", ErrMissingServerKey
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errUndecodable
	}
	aead, err := chacha20poly1305.NewX(e.encryptionKey())
	if err != nil {
		return "", errors.Wrap(err, "[Engine.open]")
	}
	if len(sealed) < aead.NonceSize() {
		return "", errUndecodable
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errUndecodable
	}
	return string(plain), nil
}

// matches compares in constant time. A record that cannot be decoded never
// matches.
func (e *Engine) matches(stored, submitted string) bool {
	switch {
	case strings.HasPrefix(stored, plainPrefix):
		want := strings.TrimPrefix(stored, plainPrefix)
		return subtle.ConstantTimeCompare([]byte(want), []byte(submitted)) == 1
	case strings.HasPrefix(stored, hashedPrefix):
		if len(e.serverKey) == 0 {
			return false
		}
		want, err := hex.DecodeString(strings.TrimPrefix(stored, hashedPrefix))
		if err != nil {
			return false
		}
		got, _ := hex.DecodeString(e.mac(submitted))
		return hmac.Equal(want, got)
	case strings.HasPrefix(stored, encryptedPrefix):
		want, err := e.open(strings.TrimPrefix(stored, encryptedPrefix))
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(want), []byte(submitted)) == 1
	}
	return false
}

func (e *Engine) mac(otp string) string {
	h := hmac.New(sha256.New, e.serverKey)
	h.Write([]byte(otp))
	return hex.EncodeToString(h.Sum(nil))
}

// encryptionKey derives a chacha20poly1305.KeySize key from the server key,
// which may be any length.
func (e *Engine) encryptionKey() []byte {
	sum := sha256.Sum256(append([]byte("otp-encryption:"), e.serverKey...))
	return sum[:]
}
