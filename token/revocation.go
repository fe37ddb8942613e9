package token

import (
	"context"

	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/pkg/errors"
)

// Revoke deletes the token. Revoking an unknown or already revoked token
// succeeds. A refresh token takes its linked access token with it.
func (m *Manager) Revoke(ctx context.Context, raw string, hint oauth2.TokenTypeHint) error {
	l, err := m.Find(ctx, raw, hint)
	if errors.Is(err, ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.RevokeLookup(ctx, l)
}

// RevokeLookup deletes a token previously returned by Find.
func (m *Manager) RevokeLookup(ctx context.Context, l *Lookup) error {
	if l.Access != nil {
		if err := m.store.DeleteToken(ctx, l.Access.Token); err != nil {
			return errors.Wrap(err, "[Manager.Revoke] delete access token")
		}
		return nil
	}
	if err := m.store.DeleteRefreshToken(ctx, l.Refresh.Token); err != nil {
		return errors.Wrap(err, "[Manager.Revoke] delete refresh token")
	}
	if l.Refresh.AccessToken != "" {
		if err := m.store.DeleteToken(ctx, l.Refresh.AccessToken); err != nil && !errs.Is(err, store.ErrNotFound) {
			return errors.Wrap(err, "[Manager.Revoke] delete linked access token")
		}
	}
	m.log.Debug().Str("client_id", l.Refresh.ClientID).Msg("refresh token revoked")
	return nil
}
