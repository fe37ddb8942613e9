package verification

import (
	"context"
	"crypto/subtle"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
)

var errTokenMismatch = errors.New("token mismatch")

// IssueToken creates a single-use token for purpose and email, replacing any
// outstanding one. Only its SHA-256 digest is stored. A zero ttl uses the
// engine's token TTL.
func (e *Engine) IssueToken(ctx context.Context, purpose Purpose, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = e.tokenTTL
	}
	value, err := random.Token(DefaultTokenBytes)
	if err != nil {
		return "", err
	}
	now := e.nowFunc()
	rec := &store.VerificationRecord{
		Identifier: Identifier(purpose, email),
		Value:      digest(value),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := e.store.PutVerification(ctx, rec); err != nil {
		return "", errors.Wrap(err, "[Engine.IssueToken] put")
	}
	return value, nil
}

// ConsumeToken accepts token once. Missing, used, expired and wrong tokens
// are all Invalid; a wrong token leaves the real one usable. The returned
// error is only set for store failures.
func (e *Engine) ConsumeToken(ctx context.Context, purpose Purpose, email, token string) (Result, error) {
	if token == "" {
		return Result{Status: Invalid}, nil
	}
	want := digest(token)
	err := e.store.UpdateVerification(ctx, Identifier(purpose, email), func(rec *store.VerificationRecord) (store.Action, error) {
		if subtle.ConstantTimeCompare([]byte(rec.Value), []byte(want)) != 1 {
			return store.Keep, errTokenMismatch
		}
		return store.Delete, nil
	})
	switch {
	case err == nil:
		return Result{Status: Valid}, nil
	case errors.Is(err, errTokenMismatch), errs.Is(err, store.ErrNotFound):
		e.log.Debug().Str("purpose", string(purpose)).Msg("verification token rejected")
		return Result{Status: Invalid}, nil
	default:
		e.log.Error().Err(err).Str("purpose", string(purpose)).Msg("verification token lookup failed")
		return Result{Status: Invalid}, errors.Wrap(err, "[Engine.ConsumeToken]")
	}
}
