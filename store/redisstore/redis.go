// Package redisstore is a credential store backed by Redis. Records are JSON
// values with a Redis TTL; expiry is also checked on read against the
// store's clock so a lagging TTL never revives a record.
package redisstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/internal/logger"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultKeyPrefix        = "authcore:"
	DefaultMaxUpdateRetries = 20
	DefaultDialTimeout      = 5 * time.Second
	scanBatch               = 200
)

// Config holds connection settings for New.
type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string

	DialTimeout time.Duration
}

// Store implements store.CredentialStore on Redis.
type Store struct {
	client     redis.UniversalClient
	keyPrefix  string
	now        func() time.Time
	maxRetries uint
	log        zerolog.Logger
}

var _ store.CredentialStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNowFunc sets the clock used for logical expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMaxUpdateRetries bounds how often an optimistic update is retried
// after a concurrent write.
func WithMaxUpdateRetries(n uint) Option {
	return func(s *Store) {
		s.maxRetries = n
	}
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errs.Config("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errs.Unavailable(err), "[redisstore.New] ping")
	}
	return NewWithClient(client, cfg.KeyPrefix, opts...), nil
}

// NewWithClient wraps an existing client. This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string, opts ...Option) *Store {
	s := &Store{
		client:     client,
		keyPrefix:  keyPrefix,
		now:        time.Now,
		maxRetries: DefaultMaxUpdateRetries,
		log:        logger.Component("store.redis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(kind, id string) string {
	return store.Key(s.keyPrefix, kind, id)
}

// ttlUntil converts an absolute expiry to a Redis TTL. A zero expiry maps to
// no TTL; an expiry in the past reports dead.
func (s *Store) ttlUntil(expiresAt time.Time) (ttl time.Duration, dead bool) {
	if expiresAt.IsZero() {
		return 0, false
	}
	ttl = expiresAt.Sub(s.now())
	return ttl, ttl <= 0
}

func (s *Store) write(ctx context.Context, key string, v interface{}, expiresAt time.Time) error {
	ttl, dead := s.ttlUntil(expiresAt)
	if dead {
		return s.client.Del(ctx, key).Err()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// read loads and decodes key. When take is set the key is removed with GETDEL.
func read[T any](ctx context.Context, s *Store, key string, take bool, expiry func(*T) time.Time) (*T, error) {
	var cmd *redis.StringCmd
	if take {
		cmd = s.client.GetDel(ctx, key)
	} else {
		cmd = s.client.Get(ctx, key)
	}
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}
	if store.Expired(expiry(&v), s.now()) {
		if !take {
			_ = s.client.Del(ctx, key).Err()
		}
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func unavailable(err error, where string) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnavailable) {
		return errors.Wrap(err, where)
	}
	return errors.Wrap(errs.Unavailable(err), where)
}

// PutState implements store.StateStore. SET NX detects a live duplicate.
func (s *Store) PutState(ctx context.Context, entry *store.StateEntry, ttl time.Duration) (string, error) {
	if entry == nil {
		return "", errors.Wrap(store.ErrInvalidRecord, "[redisstore.PutState] nil entry")
	}
	now := s.now()
	expiresAt, err := store.Expiry(now, ttl)
	if err != nil {
		return "", errors.Wrap(err, "[redisstore.PutState]")
	}
	e := entry.Clone()
	if e.State == "" {
		if e.State, err = store.NewStateID(); err != nil {
			return "", errors.Wrap(err, "[redisstore.PutState] generate state")
		}
	}
	e.CreatedAt, e.ExpiresAt = now, expiresAt

	data, err := json.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, "[redisstore.PutState] marshal")
	}
	key := s.key(store.KindState, e.State)
	ok, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return "", unavailable(err, "[redisstore.PutState]")
	}
	if ok {
		return e.State, nil
	}

	// The key exists in Redis but may already be logically expired.
	if _, err := read(ctx, s, key, false, func(v *store.StateEntry) time.Time { return v.ExpiresAt }); err == nil {
		return "", store.ErrAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", unavailable(err, "[redisstore.PutState]")
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return "", unavailable(err, "[redisstore.PutState]")
	}
	return e.State, nil
}

// TakeState implements store.StateStore.
func (s *Store) TakeState(ctx context.Context, state string) (*store.StateEntry, error) {
	e, err := read(ctx, s, s.key(store.KindState, state), true, func(v *store.StateEntry) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.TakeState]")
	}
	return e, nil
}

// PutCode implements store.CodeStore.
func (s *Store) PutCode(ctx context.Context, code *store.AuthorizationCode, ttl time.Duration) error {
	if code == nil || code.Code == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[redisstore.PutCode] code is required")
	}
	now := s.now()
	expiresAt, err := store.Expiry(now, ttl)
	if err != nil {
		return errors.Wrap(err, "[redisstore.PutCode]")
	}
	c := code.Clone()
	c.CreatedAt, c.ExpiresAt = now, expiresAt
	if err := s.write(ctx, s.key(store.KindCode, c.Code), c, expiresAt); err != nil {
		return unavailable(err, "[redisstore.PutCode]")
	}
	return nil
}

// TakeCode implements store.CodeStore. GETDEL makes the take atomic.
func (s *Store) TakeCode(ctx context.Context, code string) (*store.AuthorizationCode, error) {
	c, err := read(ctx, s, s.key(store.KindCode, code), true, func(v *store.AuthorizationCode) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.TakeCode]")
	}
	return c, nil
}

// PutToken implements store.TokenStore.
func (s *Store) PutToken(ctx context.Context, token *store.AccessToken) error {
	if token == nil || token.Token == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[redisstore.PutToken] token is required")
	}
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if err := s.write(ctx, s.key(store.KindAccessToken, t.Token), t, t.ExpiresAt); err != nil {
		return unavailable(err, "[redisstore.PutToken]")
	}
	return nil
}

// GetToken implements store.TokenStore.
func (s *Store) GetToken(ctx context.Context, token string) (*store.AccessToken, error) {
	t, err := read(ctx, s, s.key(store.KindAccessToken, token), false, func(v *store.AccessToken) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.GetToken]")
	}
	return t, nil
}

// DeleteToken implements store.TokenStore.
func (s *Store) DeleteToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(store.KindAccessToken, token)).Err(); err != nil {
		return unavailable(err, "[redisstore.DeleteToken]")
	}
	return nil
}

// PutRefreshToken implements store.TokenStore.
func (s *Store) PutRefreshToken(ctx context.Context, token *store.RefreshToken) error {
	if token == nil || token.Token == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[redisstore.PutRefreshToken] token is required")
	}
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if err := s.write(ctx, s.key(store.KindRefreshToken, t.Token), t, t.ExpiresAt); err != nil {
		return unavailable(err, "[redisstore.PutRefreshToken]")
	}
	return nil
}

// GetRefreshToken implements store.TokenStore.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	t, err := read(ctx, s, s.key(store.KindRefreshToken, token), false, func(v *store.RefreshToken) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.GetRefreshToken]")
	}
	return t, nil
}

// TakeRefreshToken implements store.TokenStore.
func (s *Store) TakeRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	t, err := read(ctx, s, s.key(store.KindRefreshToken, token), true, func(v *store.RefreshToken) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.TakeRefreshToken]")
	}
	return t, nil
}

// DeleteRefreshToken implements store.TokenStore.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(store.KindRefreshToken, token)).Err(); err != nil {
		return unavailable(err, "[redisstore.DeleteRefreshToken]")
	}
	return nil
}

// PutClient implements store.ClientStore. Clients never expire.
func (s *Store) PutClient(ctx context.Context, client *clients.Client) error {
	if client == nil || client.ID == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[redisstore.PutClient] client id is required")
	}
	if err := s.write(ctx, s.key(store.KindClient, client.ID), client, time.Time{}); err != nil {
		return unavailable(err, "[redisstore.PutClient]")
	}
	return nil
}

// GetClient implements store.ClientStore.
func (s *Store) GetClient(ctx context.Context, clientID string) (*clients.Client, error) {
	c, err := read(ctx, s, s.key(store.KindClient, clientID), false, func(*clients.Client) time.Time { return time.Time{} })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.GetClient]")
	}
	return c, nil
}

// DeleteClient implements store.ClientStore.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, s.key(store.KindClient, clientID)).Err(); err != nil {
		return unavailable(err, "[redisstore.DeleteClient]")
	}
	return nil
}

// PutVerification implements store.VerificationStore.
func (s *Store) PutVerification(ctx context.Context, rec *store.VerificationRecord) error {
	if rec == nil || rec.Identifier == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[redisstore.PutVerification] identifier is required")
	}
	r := rec.Clone()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if err := s.write(ctx, s.key(store.KindVerification, r.Identifier), r, r.ExpiresAt); err != nil {
		return unavailable(err, "[redisstore.PutVerification]")
	}
	return nil
}

// GetVerification implements store.VerificationStore.
func (s *Store) GetVerification(ctx context.Context, identifier string) (*store.VerificationRecord, error) {
	r, err := read(ctx, s, s.key(store.KindVerification, identifier), false, func(v *store.VerificationRecord) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.GetVerification]")
	}
	return r, nil
}

// DeleteVerification implements store.VerificationStore.
func (s *Store) DeleteVerification(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(store.KindVerification, identifier)).Err(); err != nil {
		return unavailable(err, "[redisstore.DeleteVerification]")
	}
	return nil
}

// TakeVerification implements store.VerificationStore.
func (s *Store) TakeVerification(ctx context.Context, identifier string) (*store.VerificationRecord, error) {
	r, err := read(ctx, s, s.key(store.KindVerification, identifier), true, func(v *store.VerificationRecord) time.Time { return v.ExpiresAt })
	if err != nil {
		return nil, notFoundOr(err, "[redisstore.TakeVerification]")
	}
	return r, nil
}

// callbackError marks an error returned by the caller's UpdateFunc so it is
// passed through unchanged rather than reported as a backend failure.
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }
func (e callbackError) Unwrap() error { return e.err }

// UpdateVerification implements store.VerificationStore with WATCH/MULTI.
// A concurrent write aborts the transaction and the update is retried with
// backoff, so fn may run more than once; only the last run is persisted.
func (s *Store) UpdateVerification(ctx context.Context, identifier string, fn store.UpdateFunc) error {
	key := s.key(store.KindVerification, identifier)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return errs.Unavailable(err)
		}
		var rec store.VerificationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return errors.Wrap(err, "unmarshal")
		}

		if store.Expired(rec.ExpiresAt, s.now()) {
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}
			return store.ErrNotFound
		}

		action, err := fn(&rec)
		if err != nil {
			return callbackError{err}
		}
		rec.Identifier = identifier

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			ttl, dead := s.ttlUntil(rec.ExpiresAt)
			if action == store.Delete || dead {
				pipe.Del(ctx, key)
				return nil
			}
			updated, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, updated, ttl)
			return nil
		})
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 2 * time.Millisecond
	expBackoff.MaxInterval = 50 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(s.maxRetries),
		backoff.WithNotify(func(err error, d time.Duration) {
			s.log.Debug().Err(err).Dur("retry_in", d).Msg("verification update conflicted")
		}),
	)

	var cbErr callbackError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cbErr):
		return cbErr.err
	case errors.Is(err, store.ErrNotFound):
		return store.ErrNotFound
	default:
		return unavailable(err, "[redisstore.UpdateVerification]")
	}
}

// SweepExpired implements store.CredentialStore. Redis evicts most records on
// its own TTL; this scan removes records that are logically expired against
// the store clock but whose TTL has not fired yet.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	removed := 0
	for _, kind := range []string{store.KindState, store.KindCode, store.KindAccessToken, store.KindRefreshToken, store.KindVerification} {
		iter := s.client.Scan(ctx, 0, s.key(kind, "*"), scanBatch).Iterator()
		for iter.Next(ctx) {
			ok, err := s.deleteIfExpired(ctx, iter.Val())
			if err != nil {
				return removed, unavailable(err, "[redisstore.SweepExpired]")
			}
			if ok {
				removed++
			}
		}
		if err := iter.Err(); err != nil {
			return removed, unavailable(err, "[redisstore.SweepExpired] scan")
		}
	}
	return removed, nil
}

func (s *Store) deleteIfExpired(ctx context.Context, key string) (bool, error) {
	deleted := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec struct {
			ExpiresAt time.Time `json:"expires_at"`
		}
		if err := json.Unmarshal(data, &rec); err != nil || !store.Expired(rec.ExpiresAt, s.now()) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Rewritten while we looked at it, so it is not ours to remove.
		return false, nil
	}
	return deleted, err
}

func notFoundOr(err error, where string) error {
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrNotFound
	}
	return unavailable(err, where)
}
