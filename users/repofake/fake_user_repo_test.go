package fakeuserrepo_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-core/users"
	fakeuserrepo "github.com/jrsteele09/go-auth-core/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestFakeUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()

	u := &users.User{Email: "Jane@Example.com"}
	require.NoError(t, repo.Upsert(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := repo.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	got.Name = "mutated"
	again, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, again.Name)

	// A second account cannot claim the same email.
	require.ErrorIs(t, repo.Upsert(ctx, &users.User{Email: "jane@example.com"}), users.ErrAlreadyExists)

	// Changing the email frees the old one.
	again.Email = "jane.doe@example.com"
	require.NoError(t, repo.Upsert(ctx, again))
	_, err = repo.GetByEmail(ctx, "jane@example.com")
	require.ErrorIs(t, err, users.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "jane.doe@example.com"))
	require.ErrorIs(t, repo.Delete(ctx, "jane.doe@example.com"), users.ErrNotFound)
	_, err = repo.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, users.ErrNotFound)
}
