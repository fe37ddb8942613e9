package users

import (
	"context"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// PasswordHasher is the slice of verification.Engine the directory needs.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash, password string) error
}

// Directory signs users in and creates them on first sign-in.
type Directory struct {
	repo      UserRepo
	passwords PasswordHasher
	nowFunc   func() time.Time
	log       zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

type DirectoryOption func(*Directory)

func WithNowFunc(now func() time.Time) DirectoryOption {
	return func(d *Directory) {
		d.nowFunc = now
	}
}

func WithLogger(l zerolog.Logger) DirectoryOption {
	return func(d *Directory) {
		d.log = l
	}
}

func NewDirectory(repo UserRepo, passwords PasswordHasher, opts ...DirectoryOption) *Directory {
	d := &Directory{
		repo:      repo,
		passwords: passwords,
		nowFunc:   time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register creates a password user. The email stays unverified until the
// user proves ownership.
func (d *Directory) Register(ctx context.Context, email, name, hashedPassword string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("[Directory.Register] email is required")
	}
	if _, err := d.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyExists
	} else if !errs.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Directory.Register] lookup")
	}
	u := &User{Email: email, Name: name, PasswordHash: hashedPassword, DateJoined: d.nowFunc().UTC()}
	if err := d.repo.Upsert(ctx, u); err != nil {
		return nil, errors.Wrap(err, "[Directory.Register] upsert")
	}
	return u, nil
}

// Authenticate checks an email and password. Unknown users and wrong
// passwords both return errs.ErrInvalidCredentials after a bcrypt compare.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := d.repo.GetByEmail(ctx, email)
	if err != nil && !errs.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Directory.Authenticate] lookup")
	}
	if u == nil || u.PasswordHash == "" {
		_ = d.passwords.VerifyPassword(d.dummy(), password)
		return nil, errs.ErrInvalidCredentials
	}
	if err := d.passwords.VerifyPassword(u.PasswordHash, password); err != nil {
		d.log.Info().Str("user_id", u.ID).Msg("password rejected")
		return nil, errs.ErrInvalidCredentials
	}
	if u.Blocked {
		return nil, ErrBlocked
	}
	return d.touch(ctx, u)
}

// SignInByEmail is the sign-in of a user who proved they own email through an
// OTP or magic link. Unknown emails get a new, verified account.
func (d *Directory) SignInByEmail(ctx context.Context, email string) (*User, error) {
	u, err := d.repo.GetByEmail(ctx, email)
	switch {
	case errs.Is(err, ErrNotFound):
		u = &User{Email: NormalizeEmail(email), DateJoined: d.nowFunc().UTC()}
	case err != nil:
		return nil, errors.Wrap(err, "[Directory.SignInByEmail] lookup")
	case u.Blocked:
		return nil, ErrBlocked
	}
	u.Verified = true
	return d.touch(ctx, u)
}

// SignInWithIdentity resolves an upstream identity to a user. A known link
// wins. Otherwise a verified upstream email joins the account with that
// email, and anything else creates a new account.
func (d *Directory) SignInWithIdentity(ctx context.Context, id *providers.Identity) (*User, error) {
	u, err := d.repo.GetByIdentity(ctx, id.Provider, id.Subject)
	if err != nil && !errs.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Directory.SignInWithIdentity] lookup identity")
	}
	if u == nil && id.Email != "" {
		byEmail, err := d.repo.GetByEmail(ctx, id.Email)
		switch {
		case err == nil && id.EmailVerified:
			u = byEmail
		case err == nil:
			// An unverified upstream email must not take over an account.
			d.log.Info().Str("provider", id.Provider).Msg("unverified upstream email matches an existing user")
			return nil, errs.ErrInvalidCredentials
		case !errs.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "[Directory.SignInWithIdentity] lookup email")
		}
	}
	if u == nil {
		if id.Email == "" {
			return nil, errors.New("[Directory.SignInWithIdentity] upstream identity has no email")
		}
		u = &User{Email: NormalizeEmail(id.Email), Name: id.Name, Verified: id.EmailVerified, DateJoined: d.nowFunc().UTC()}
	}
	if u.Blocked {
		return nil, ErrBlocked
	}
	if !u.HasIdentity(id.Provider, id.Subject) {
		u.Identities = append(u.Identities, LinkedIdentity{Provider: id.Provider, Subject: id.Subject})
	}
	return d.touch(ctx, u)
}

// Get returns the user with id.
func (d *Directory) Get(ctx context.Context, id string) (*User, error) {
	u, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.Get]")
	}
	return u, nil
}

// GetByEmail returns the user registered with email.
func (d *Directory) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := d.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "[Directory.GetByEmail]")
	}
	return u, nil
}

// SetPassword replaces the password of an existing user.
func (d *Directory) SetPassword(ctx context.Context, email, hashedPassword string) error {
	u, err := d.repo.GetByEmail(ctx, email)
	if err != nil {
		return errors.Wrap(err, "[Directory.SetPassword]")
	}
	u.PasswordHash = hashedPassword
	return errors.Wrap(d.repo.Upsert(ctx, u), "[Directory.SetPassword] upsert")
}

func (d *Directory) touch(ctx context.Context, u *User) (*User, error) {
	u.LastLogin = d.nowFunc().UTC()
	if err := d.repo.Upsert(ctx, u); err != nil {
		return nil, errors.Wrap(err, "[Directory.touch] upsert")
	}
	return u, nil
}

// dummy is a hash compared against when the user does not exist, so both
// outcomes cost one bcrypt compare.
func (d *Directory) dummy() string {
	d.dummyOnce.Do(func() {
		d.dummyHash, _ = d.passwords.HashPassword("not a real password")
	})
	return d.dummyHash
}
