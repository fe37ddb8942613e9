package users

import "context"

// UserRepo persists users. Lookups that find nothing return ErrNotFound.
type UserRepo interface {
	Upsert(ctx context.Context, user *User) error
	Delete(ctx context.Context, email string) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByIdentity(ctx context.Context, provider, subject string) (*User, error)
}
