// Package memory is the in-process credential store. It is safe for
// concurrent use; atomic takes are a lookup and delete under one write lock.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-core/clients"
	"github.com/jrsteele09/go-auth-core/internal/logger"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultCleanupInterval is used by WithCleanupInterval(0).
const DefaultCleanupInterval = time.Minute

// timedEntry wraps a value with its creation and expiry time.
type timedEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

// Store implements store.CredentialStore with in-memory maps.
type Store struct {
	mu sync.RWMutex

	states        map[string]timedEntry[*store.StateEntry]
	codes         map[string]timedEntry[*store.AuthorizationCode]
	accessTokens  map[string]timedEntry[*store.AccessToken]
	refreshTokens map[string]timedEntry[*store.RefreshToken]
	verifications map[string]timedEntry[*store.VerificationRecord]
	clients       map[string]*clients.Client

	now             func() time.Time
	log             zerolog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

var _ store.CredentialStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNowFunc sets the clock used for expiry (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCleanupInterval starts a background sweep every interval. Without it
// expired entries are only removed on read or by SweepExpired.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval <= 0 {
			interval = DefaultCleanupInterval
		}
		s.cleanupInterval = interval
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		states:        make(map[string]timedEntry[*store.StateEntry]),
		codes:         make(map[string]timedEntry[*store.AuthorizationCode]),
		accessTokens:  make(map[string]timedEntry[*store.AccessToken]),
		refreshTokens: make(map[string]timedEntry[*store.RefreshToken]),
		verifications: make(map[string]timedEntry[*store.VerificationRecord]),
		clients:       make(map[string]*clients.Client),
		now:           time.Now,
		log:           logger.Component("store.memory"),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	} else {
		close(s.cleanupDone)
	}
	return s
}

// Close stops the background sweeper, if any, and waits for it to finish.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

func (s *Store) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			if n, _ := s.SweepExpired(context.Background()); n > 0 {
				s.log.Debug().Int("removed", n).Msg("swept expired entries")
			}
		}
	}
}

// PutState implements store.StateStore.
func (s *Store) PutState(_ context.Context, entry *store.StateEntry, ttl time.Duration) (string, error) {
	if entry == nil {
		return "", errors.Wrap(store.ErrInvalidRecord, "[memory.PutState] nil entry")
	}
	now := s.now()
	expiresAt, err := store.Expiry(now, ttl)
	if err != nil {
		return "", errors.Wrap(err, "[memory.PutState]")
	}

	e := entry.Clone()
	if e.State == "" {
		if e.State, err = store.NewStateID(); err != nil {
			return "", errors.Wrap(err, "[memory.PutState] generate state")
		}
	}
	e.CreatedAt, e.ExpiresAt = now, expiresAt

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.states[e.State]; ok && !store.Expired(existing.expiresAt, now) {
		return "", store.ErrAlreadyExists
	}
	s.states[e.State] = timedEntry[*store.StateEntry]{value: e, createdAt: now, expiresAt: expiresAt}
	return e.State, nil
}

// TakeState implements store.StateStore.
func (s *Store) TakeState(_ context.Context, state string) (*store.StateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := take(s.states, state, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

// PutCode implements store.CodeStore.
func (s *Store) PutCode(_ context.Context, code *store.AuthorizationCode, ttl time.Duration) error {
	if code == nil || code.Code == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[memory.PutCode] code is required")
	}
	now := s.now()
	expiresAt, err := store.Expiry(now, ttl)
	if err != nil {
		return errors.Wrap(err, "[memory.PutCode]")
	}
	c := code.Clone()
	c.CreatedAt, c.ExpiresAt = now, expiresAt

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.Code] = timedEntry[*store.AuthorizationCode]{value: c, createdAt: now, expiresAt: expiresAt}
	return nil
}

// TakeCode implements store.CodeStore.
func (s *Store) TakeCode(_ context.Context, code string) (*store.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := take(s.codes, code, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

// PutToken implements store.TokenStore.
func (s *Store) PutToken(_ context.Context, token *store.AccessToken) error {
	if token == nil || token.Token == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[memory.PutToken] token is required")
	}
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[t.Token] = timedEntry[*store.AccessToken]{value: t, createdAt: t.CreatedAt, expiresAt: t.ExpiresAt}
	return nil
}

// GetToken implements store.TokenStore.
func (s *Store) GetToken(_ context.Context, token string) (*store.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := get(s.accessTokens, token, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.Clone(), nil
}

// DeleteToken implements store.TokenStore.
func (s *Store) DeleteToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accessTokens, token)
	return nil
}

// PutRefreshToken implements store.TokenStore.
func (s *Store) PutRefreshToken(_ context.Context, token *store.RefreshToken) error {
	if token == nil || token.Token == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[memory.PutRefreshToken] token is required")
	}
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[t.Token] = timedEntry[*store.RefreshToken]{value: t, createdAt: t.CreatedAt, expiresAt: t.ExpiresAt}
	return nil
}

// GetRefreshToken implements store.TokenStore.
func (s *Store) GetRefreshToken(_ context.Context, token string) (*store.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := get(s.refreshTokens, token, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.Clone(), nil
}

// TakeRefreshToken implements store.TokenStore.
func (s *Store) TakeRefreshToken(_ context.Context, token string) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := take(s.refreshTokens, token, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.Clone(), nil
}

// DeleteRefreshToken implements store.TokenStore.
func (s *Store) DeleteRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, token)
	return nil
}

// PutClient implements store.ClientStore.
func (s *Store) PutClient(_ context.Context, client *clients.Client) error {
	if client == nil || client.ID == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[memory.PutClient] client id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = store.CloneClient(client)
	return nil
}

// GetClient implements store.ClientStore.
func (s *Store) GetClient(_ context.Context, clientID string) (*clients.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.CloneClient(c), nil
}

// DeleteClient implements store.ClientStore.
func (s *Store) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	return nil
}

// PutVerification implements store.VerificationStore.
func (s *Store) PutVerification(_ context.Context, rec *store.VerificationRecord) error {
	if rec == nil || rec.Identifier == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[memory.PutVerification] identifier is required")
	}
	r := rec.Clone()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications[r.Identifier] = timedEntry[*store.VerificationRecord]{value: r, createdAt: r.CreatedAt, expiresAt: r.ExpiresAt}
	return nil
}

// GetVerification implements store.VerificationStore.
func (s *Store) GetVerification(_ context.Context, identifier string) (*store.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := get(s.verifications, identifier, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

// DeleteVerification implements store.VerificationStore.
func (s *Store) DeleteVerification(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verifications, identifier)
	return nil
}

// TakeVerification implements store.VerificationStore.
func (s *Store) TakeVerification(_ context.Context, identifier string) (*store.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := take(s.verifications, identifier, s.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Clone(), nil
}

// UpdateVerification implements store.VerificationStore. fn runs under the
// write lock so no other caller can observe or change the record meanwhile.
func (s *Store) UpdateVerification(_ context.Context, identifier string, fn store.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.verifications[identifier]
	if !ok {
		return store.ErrNotFound
	}
	if store.Expired(entry.expiresAt, s.now()) {
		delete(s.verifications, identifier)
		return store.ErrNotFound
	}

	working := entry.value.Clone()
	action, err := fn(working)
	if err != nil {
		return err
	}
	switch action {
	case store.Delete:
		delete(s.verifications, identifier)
	default:
		working.Identifier = identifier
		s.verifications[identifier] = timedEntry[*store.VerificationRecord]{
			value: working, createdAt: entry.createdAt, expiresAt: working.ExpiresAt,
		}
	}
	return nil
}

// SweepExpired implements store.CredentialStore.
func (s *Store) SweepExpired(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := sweep(s.states, now)
	removed += sweep(s.codes, now)
	removed += sweep(s.accessTokens, now)
	removed += sweep(s.refreshTokens, now)
	removed += sweep(s.verifications, now)
	return removed, nil
}

// take removes and returns a live entry. Expired entries are removed and
// reported as missing. The caller must hold the write lock.
func take[T any](m map[string]timedEntry[T], key string, now time.Time) (T, bool) {
	var zero T
	e, ok := m[key]
	if !ok {
		return zero, false
	}
	delete(m, key)
	if store.Expired(e.expiresAt, now) {
		return zero, false
	}
	return e.value, true
}

// get returns a live entry. The caller must hold at least the read lock.
func get[T any](m map[string]timedEntry[T], key string, now time.Time) (T, bool) {
	var zero T
	e, ok := m[key]
	if !ok || store.Expired(e.expiresAt, now) {
		return zero, false
	}
	return e.value, true
}

func sweep[T any](m map[string]timedEntry[T], now time.Time) int {
	removed := 0
	for k, e := range m {
		if store.Expired(e.expiresAt, now) {
			delete(m, k)
			removed++
		}
	}
	return removed
}
