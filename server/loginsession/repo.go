// Package loginsession tracks end users signed in to the authorization
// server itself. The session id travels in a cookie; it is what lets the
// authorize endpoint issue a code without asking the user to log in again.
package loginsession

import (
	"context"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
)

var ErrNotFound = errs.ErrNotFound

type Session struct {
	ID       string
	UserID   string
	Email    string
	Name     string
	Provider string // upstream provider, empty for password and email sign-in

	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repo interface {
	// Create stores a new session for the user and returns it with its id.
	Create(ctx context.Context, session Session) (Session, error)
	// Get returns a live session. Expired sessions are ErrNotFound.
	Get(ctx context.Context, sessionID string) (Session, error)
	// Delete is idempotent.
	Delete(ctx context.Context, sessionID string) error
}
