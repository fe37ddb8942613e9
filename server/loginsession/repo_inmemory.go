package loginsession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var _ Repo = (*InMemoryLoginSessionRepo)(nil)

// InMemoryLoginSessionRepo is an in-memory implementation of Repo
type InMemoryLoginSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session // sessionID -> Session
	ttl      time.Duration
	nowFunc  func() time.Time
}

type Option func(*InMemoryLoginSessionRepo)

func WithNowFunc(now func() time.Time) Option {
	return func(r *InMemoryLoginSessionRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryLoginSessionRepo creates a repo whose sessions live for ttl.
func NewInMemoryLoginSessionRepo(ttl time.Duration, opts ...Option) *InMemoryLoginSessionRepo {
	r := &InMemoryLoginSessionRepo{
		sessions: make(map[string]Session),
		ttl:      ttl,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *InMemoryLoginSessionRepo) Create(_ context.Context, session Session) (Session, error) {
	if session.UserID == "" {
		return Session{}, errors.New("[InMemoryLoginSessionRepo.Create] userID is required")
	}
	now := r.nowFunc()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return session, nil
}

func (r *InMemoryLoginSessionRepo) Get(_ context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok || !r.nowFunc().Before(session.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (r *InMemoryLoginSessionRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

// Sweep removes expired sessions and returns how many it removed.
func (r *InMemoryLoginSessionRepo) Sweep() int {
	now := r.nowFunc()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
