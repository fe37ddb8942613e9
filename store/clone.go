package store

import (
	"slices"

	"github.com/jrsteele09/go-auth-core/clients"
)

// Clone helpers let backends hand out copies so callers never share
// a record with the store.

func (e *StateEntry) Clone() *StateEntry {
	c := *e
	c.Scopes = slices.Clone(e.Scopes)
	return &c
}

func (c *AuthorizationCode) Clone() *AuthorizationCode {
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}

func (t *AccessToken) Clone() *AccessToken {
	c := *t
	c.Scopes = slices.Clone(t.Scopes)
	return &c
}

func (t *RefreshToken) Clone() *RefreshToken {
	c := *t
	c.Scopes = slices.Clone(t.Scopes)
	return &c
}

func (r *VerificationRecord) Clone() *VerificationRecord {
	c := *r
	return &c
}

// CloneClient copies a client including its slices.
func CloneClient(cl *clients.Client) *clients.Client {
	c := *cl
	c.RedirectURIs = slices.Clone(cl.RedirectURIs)
	c.GrantTypes = slices.Clone(cl.GrantTypes)
	c.Scopes = slices.Clone(cl.Scopes)
	return &c
}
