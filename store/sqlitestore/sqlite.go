// Package sqlitestore is a durable credential store on SQLite. Each record
// kind has its own table holding the JSON record and its expiry in unix
// milliseconds (0 never expires). Takes use DELETE ... RETURNING.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-core/clients"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const busyTimeoutMillis = 5000

type table string

const (
	tableStates        table = "states"
	tableCodes         table = "authorization_codes"
	tableAccessTokens  table = "access_tokens"
	tableRefreshTokens table = "refresh_tokens"
	tableClients       table = "clients"
	tableVerifications table = "verifications"
)

var expiringTables = []table{tableStates, tableCodes, tableAccessTokens, tableRefreshTokens, tableVerifications}

// Store implements store.CredentialStore on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.CredentialStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNowFunc sets the clock used for expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens (creating if needed) the database at path and migrates it.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errs.Config("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.New] open")
	}
	// A single connection serialises writers, which keeps read-modify-write
	// transactions free of SQLITE_BUSY upgrades.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (s *Store) upsert(ctx context.Context, t table, id string, v interface{}, expiresAt time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`, t)
	if _, err := s.db.ExecContext(ctx, q, id, string(data), toMillis(expiresAt)); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, t table, id string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t), id); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// load reads one row. With take set the row is deleted in the same statement.
func load[T any](ctx context.Context, s *Store, q querier, t table, id string, take bool) (*T, error) {
	query := fmt.Sprintf(`SELECT data, expires_at FROM %s WHERE id = ?`, t)
	if take {
		query = fmt.Sprintf(`DELETE FROM %s WHERE id = ? RETURNING data, expires_at`, t)
	}

	var (
		data      string
		expiresAt int64
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if expiresAt != 0 && s.now().UnixMilli() >= expiresAt {
		return nil, store.ErrNotFound
	}

	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, errs.Unavailable(errors.Wrap(err, "unmarshal"))
	}
	return &v, nil
}

func wrap(err error, where string) error {
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrNotFound
	}
	return errors.Wrap(err, where)
}

// PutState implements store.StateStore. An existing row only yields to the
// new one once it has expired.
func (s *Store) PutState(ctx context.Context, entry *store.StateEntry, ttl time.Duration) (string, error) {
	if entry == nil {
		return "", errors.Wrap(store.ErrInvalidRecord, "[sqlitestore.PutState] nil entry")
	}
	now := s.now()
	expiresAt, err := store.Expiry(now, ttl)
	if err != nil {
		return "", errors.Wrap(err, "[sqlitestore.PutState]")
	}
	e := entry.Clone()
	if e.State == "" {
		if e.State, err = store.NewStateID(); err != nil {
			return "", errors.Wrap(err, "[sqlitestore.PutState] generate state")
		}
	}
	e.CreatedAt, e.ExpiresAt = now, expiresAt

	data, err := json.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, "[sqlitestore.PutState] marshal")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO states (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
		WHERE states.expires_at <= ?`,
		e.State, string(data), toMillis(expiresAt), now.UnixMilli())
	if err != nil {
		return "", errors.Wrap(errs.Unavailable(err), "[sqlitestore.PutState]")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", store.ErrAlreadyExists
	}
	return e.State, nil
}

// TakeState implements store.StateStore.
func (s *Store) TakeState(ctx context.Context, state string) (*store.StateEntry, error) {
	e, err := load[store.StateEntry](ctx, s, s.db, tableStates, state, true)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.TakeState]")
	}
	return e, nil
}

// PutCode implements store.CodeStore.
func (s *Store) PutCode(ctx context.Context, code *store.AuthorizationCode, ttl time.Duration) error {
	if code == nil || code.Code == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[sqlitestore.PutCode] code is required")
	}
	now := s.now()
	expiresAt, err := store.Expiry(now, ttl)
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.PutCode]")
	}
	c := code.Clone()
	c.CreatedAt, c.ExpiresAt = now, expiresAt
	return wrap(s.upsert(ctx, tableCodes, c.Code, c, expiresAt), "[sqlitestore.PutCode]")
}

// TakeCode implements store.CodeStore.
func (s *Store) TakeCode(ctx context.Context, code string) (*store.AuthorizationCode, error) {
	c, err := load[store.AuthorizationCode](ctx, s, s.db, tableCodes, code, true)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.TakeCode]")
	}
	return c, nil
}

// PutToken implements store.TokenStore.
func (s *Store) PutToken(ctx context.Context, token *store.AccessToken) error {
	if token == nil || token.Token == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[sqlitestore.PutToken] token is required")
	}
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	return wrap(s.upsert(ctx, tableAccessTokens, t.Token, t, t.ExpiresAt), "[sqlitestore.PutToken]")
}

// GetToken implements store.TokenStore.
func (s *Store) GetToken(ctx context.Context, token string) (*store.AccessToken, error) {
	t, err := load[store.AccessToken](ctx, s, s.db, tableAccessTokens, token, false)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.GetToken]")
	}
	return t, nil
}

// DeleteToken implements store.TokenStore.
func (s *Store) DeleteToken(ctx context.Context, token string) error {
	return wrap(s.remove(ctx, tableAccessTokens, token), "[sqlitestore.DeleteToken]")
}

// PutRefreshToken implements store.TokenStore.
func (s *Store) PutRefreshToken(ctx context.Context, token *store.RefreshToken) error {
	if token == nil || token.Token == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[sqlitestore.PutRefreshToken] token is required")
	}
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	return wrap(s.upsert(ctx, tableRefreshTokens, t.Token, t, t.ExpiresAt), "[sqlitestore.PutRefreshToken]")
}

// GetRefreshToken implements store.TokenStore.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	t, err := load[store.RefreshToken](ctx, s, s.db, tableRefreshTokens, token, false)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.GetRefreshToken]")
	}
	return t, nil
}

// TakeRefreshToken implements store.TokenStore.
func (s *Store) TakeRefreshToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	t, err := load[store.RefreshToken](ctx, s, s.db, tableRefreshTokens, token, true)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.TakeRefreshToken]")
	}
	return t, nil
}

// DeleteRefreshToken implements store.TokenStore.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	return wrap(s.remove(ctx, tableRefreshTokens, token), "[sqlitestore.DeleteRefreshToken]")
}

// PutClient implements store.ClientStore.
func (s *Store) PutClient(ctx context.Context, client *clients.Client) error {
	if client == nil || client.ID == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[sqlitestore.PutClient] client id is required")
	}
	return wrap(s.upsert(ctx, tableClients, client.ID, client, time.Time{}), "[sqlitestore.PutClient]")
}

// GetClient implements store.ClientStore.
func (s *Store) GetClient(ctx context.Context, clientID string) (*clients.Client, error) {
	c, err := load[clients.Client](ctx, s, s.db, tableClients, clientID, false)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.GetClient]")
	}
	return c, nil
}

// DeleteClient implements store.ClientStore.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	return wrap(s.remove(ctx, tableClients, clientID), "[sqlitestore.DeleteClient]")
}

// PutVerification implements store.VerificationStore.
func (s *Store) PutVerification(ctx context.Context, rec *store.VerificationRecord) error {
	if rec == nil || rec.Identifier == "" {
		return errors.Wrap(store.ErrInvalidRecord, "[sqlitestore.PutVerification] identifier is required")
	}
	r := rec.Clone()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	return wrap(s.upsert(ctx, tableVerifications, r.Identifier, r, r.ExpiresAt), "[sqlitestore.PutVerification]")
}

// GetVerification implements store.VerificationStore.
func (s *Store) GetVerification(ctx context.Context, identifier string) (*store.VerificationRecord, error) {
	r, err := load[store.VerificationRecord](ctx, s, s.db, tableVerifications, identifier, false)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.GetVerification]")
	}
	return r, nil
}

// DeleteVerification implements store.VerificationStore.
func (s *Store) DeleteVerification(ctx context.Context, identifier string) error {
	return wrap(s.remove(ctx, tableVerifications, identifier), "[sqlitestore.DeleteVerification]")
}

// TakeVerification implements store.VerificationStore.
func (s *Store) TakeVerification(ctx context.Context, identifier string) (*store.VerificationRecord, error) {
	r, err := load[store.VerificationRecord](ctx, s, s.db, tableVerifications, identifier, true)
	if err != nil {
		return nil, wrap(err, "[sqlitestore.TakeVerification]")
	}
	return r, nil
}

// UpdateVerification implements store.VerificationStore in one transaction.
func (s *Store) UpdateVerification(ctx context.Context, identifier string, fn store.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errs.Unavailable(err), "[sqlitestore.UpdateVerification] begin")
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := load[store.VerificationRecord](ctx, s, tx, tableVerifications, identifier, false)
	if errors.Is(err, store.ErrNotFound) {
		// Drop a logically expired row so it cannot linger until the next sweep.
		if _, err := tx.ExecContext(ctx, `DELETE FROM verifications WHERE id = ?`, identifier); err == nil {
			_ = tx.Commit()
		}
		return store.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.UpdateVerification]")
	}

	action, err := fn(rec)
	if err != nil {
		return err
	}
	rec.Identifier = identifier

	if action == store.Delete || store.Expired(rec.ExpiresAt, s.now()) {
		_, err = tx.ExecContext(ctx, `DELETE FROM verifications WHERE id = ?`, identifier)
	} else {
		var data []byte
		if data, err = json.Marshal(rec); err != nil {
			return errors.Wrap(err, "[sqlitestore.UpdateVerification] marshal")
		}
		_, err = tx.ExecContext(ctx, `UPDATE verifications SET data = ?, expires_at = ? WHERE id = ?`,
			string(data), toMillis(rec.ExpiresAt), identifier)
	}
	if err != nil {
		return errors.Wrap(errs.Unavailable(err), "[sqlitestore.UpdateVerification] write")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errs.Unavailable(err), "[sqlitestore.UpdateVerification] commit")
	}
	return nil
}

// SweepExpired implements store.CredentialStore.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	removed := 0
	for _, t := range expiringTables {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at > 0 AND expires_at <= ?`, t), now)
		if err != nil {
			return removed, errors.Wrap(errs.Unavailable(err), "[sqlitestore.SweepExpired]")
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}
