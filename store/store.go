// Package store defines the credential store contract shared by the
// authorization server, the token manager and the verification engine.
//
// Every record has an absolute expiry that is checked on read. A missing or
// expired record is reported as ErrNotFound. A backend failure is reported
// wrapped in ErrUnavailable and must never be mistaken for ErrNotFound.
//
// The Take methods are atomic get-and-delete: when several callers race to
// take the same key exactly one of them receives the record.
package store

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errs.ErrNotFound
	ErrAlreadyExists = errs.ErrAlreadyExists
	ErrUnavailable   = errs.ErrUnavailable

	// ErrInvalidRecord rejects a record without a key or a positive TTL.
	ErrInvalidRecord = errors.New("invalid record")
)

// Key prefixes for each record kind. Backends that share a keyspace use them.
const (
	KindState        = "state"
	KindCode         = "code"
	KindAccessToken  = "access"
	KindRefreshToken = "refresh"
	KindClient       = "client"
	KindVerification = "verification"
)

// StateBytes is the entropy of a generated state identifier.
const StateBytes = 32

// StateEntry carries an authorization request across a redirect, either to
// the server's own login step or to an upstream identity provider.
type StateEntry struct {
	State               string    `json:"state"`
	ClientID            string    `json:"client_id,omitempty"`
	RedirectURI         string    `json:"redirect_uri,omitempty"`
	RedirectURIExplicit bool      `json:"redirect_uri_explicit,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	Scopes              []string  `json:"scopes,omitempty"`
	Resource            string    `json:"resource,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	ClientState         string    `json:"client_state,omitempty"`
	ResponseMode        string    `json:"response_mode,omitempty"`
	Provider            string    `json:"provider,omitempty"`
	CodeVerifier        string    `json:"code_verifier,omitempty"`
	ReturnURL           string    `json:"return_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// AuthorizationCode is issued by the authorize step and exchanged once.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	Scopes              []string  `json:"scopes"`
	CodeChallenge       string    `json:"code_challenge"`
	RedirectURI         string    `json:"redirect_uri"`
	RedirectURIExplicit bool      `json:"redirect_uri_explicit"`
	Resource            string    `json:"resource,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	UserID              string    `json:"user_id,omitempty"`
	SessionID           string    `json:"session_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// AccessToken is an opaque bearer token. A zero ExpiresAt never expires.
type AccessToken struct {
	Token        string    `json:"token"`
	ClientID     string    `json:"client_id"`
	Scopes       []string  `json:"scopes"`
	Resource     string    `json:"resource,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RefreshToken is exchanged for a new access token and rotated on use.
type RefreshToken struct {
	Token     string   `json:"token"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	Resource  string   `json:"resource,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`

	// AccessToken is the access token minted alongside, revoked with it.
	AccessToken string    `json:"access_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerificationRecord holds a one-time credential for "{purpose}:{email}".
type VerificationRecord struct {
	Identifier string    `json:"identifier"`
	Value      string    `json:"value"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Action tells UpdateVerification what to do with the mutated record.
type Action int

const (
	// Keep persists the record as mutated by the callback.
	Keep Action = iota
	// Delete removes the record.
	Delete
)

// UpdateFunc mutates a live verification record. Returning an error aborts the
// update and leaves the stored record unchanged.
type UpdateFunc func(rec *VerificationRecord) (Action, error)

type StateStore interface {
	// PutState stores entry for ttl and returns its identifier. An empty
	// entry.State is generated. A live duplicate returns ErrAlreadyExists.
	PutState(ctx context.Context, entry *StateEntry, ttl time.Duration) (string, error)
	TakeState(ctx context.Context, state string) (*StateEntry, error)
}

type CodeStore interface {
	PutCode(ctx context.Context, code *AuthorizationCode, ttl time.Duration) error
	TakeCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

type TokenStore interface {
	PutToken(ctx context.Context, token *AccessToken) error
	GetToken(ctx context.Context, token string) (*AccessToken, error)
	// DeleteToken is idempotent.
	DeleteToken(ctx context.Context, token string) error

	PutRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	TakeRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

type ClientStore interface {
	PutClient(ctx context.Context, client *clients.Client) error
	GetClient(ctx context.Context, clientID string) (*clients.Client, error)
	DeleteClient(ctx context.Context, clientID string) error
}

type VerificationStore interface {
	// PutVerification replaces any record with the same identifier.
	PutVerification(ctx context.Context, rec *VerificationRecord) error
	GetVerification(ctx context.Context, identifier string) (*VerificationRecord, error)
	DeleteVerification(ctx context.Context, identifier string) error
	TakeVerification(ctx context.Context, identifier string) (*VerificationRecord, error)
	// UpdateVerification runs fn against the live record as one atomic step.
	UpdateVerification(ctx context.Context, identifier string, fn UpdateFunc) error
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go CredentialStore

// CredentialStore is the full set of records owned by the authorization server.
type CredentialStore interface {
	StateStore
	CodeStore
	TokenStore
	ClientStore
	VerificationStore

	// SweepExpired removes expired records and returns how many were removed.
	SweepExpired(ctx context.Context) (int, error)
	Close() error
}

// Expired reports whether a record expiring at expiresAt is dead at now.
// A zero expiry never expires.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Key builds the "{prefix}{kind}:{id}" key used by keyspace backends.
func Key(prefix, kind, id string) string {
	return prefix + kind + ":" + id
}

// NewStateID generates a state identifier.
func NewStateID() (string, error) {
	return random.Token(StateBytes)
}

// Expiry returns the absolute expiry for a record stored at now for ttl.
func Expiry(now time.Time, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		return time.Time{}, errors.Wrap(ErrInvalidRecord, "ttl must be positive")
	}
	return now.Add(ttl), nil
}
