// Package users is the principal source behind the login step: accounts
// that sign in with a password, an email OTP or magic link, or an upstream
// provider.
package users

import (
	"strings"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errs.ErrNotFound
	ErrAlreadyExists = errs.ErrAlreadyExists
	ErrBlocked       = errors.New("user is blocked")
)

// LinkedIdentity is an upstream account that signs in as this user.
type LinkedIdentity struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
}

type User struct {
	ID           string           `json:"id,omitempty"`
	Email        string           `json:"email,omitempty"`
	Name         string           `json:"name,omitempty"`
	PasswordHash string           `json:"-"` // never serialize
	Identities   []LinkedIdentity `json:"identities,omitempty"`
	DateJoined   time.Time        `json:"date_joined,omitempty"`
	LastLogin    time.Time        `json:"last_login,omitempty"`

	Verified bool `json:"verified,omitempty"` // the user has proven they own Email
	Blocked  bool `json:"blocked,omitempty"`  // the user may not sign in
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) HasIdentity(provider, subject string) bool {
	for _, id := range u.Identities {
		if id.Provider == provider && id.Subject == subject {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Identities = append([]LinkedIdentity(nil), u.Identities...)
	return &c
}
