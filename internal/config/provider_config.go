package config

import (
	"strings"

	"github.com/jrsteele09/go-auth-core/providers"
)

type ProviderConfig interface {
	GetProviders() []providers.Config
}

var providerKinds = []providers.Kind{providers.KindGoogle, providers.KindGitHub, providers.KindOIDC}

// GetProviders returns every upstream provider with a client id configured
// under providers.<kind>. Callbacks land on the issuer's
// /providers/<kind>/callback route.
func (c mainConfig) GetProviders() []providers.Config {
	var out []providers.Config
	for _, kind := range providerKinds {
		prefix := "providers." + string(kind) + "."
		clientID := c.v.GetString(prefix + "client_id")
		if clientID == "" {
			continue
		}
		var scopes []string
		for _, s := range c.v.GetStringSlice(prefix + "scopes") {
			scopes = append(scopes, strings.Split(s, ",")...)
		}
		out = append(out, providers.Config{
			Name:         string(kind),
			Kind:         kind,
			ClientID:     clientID,
			ClientSecret: c.v.GetString(prefix + "client_secret"),
			RedirectURL:  c.GetIssuerURL() + "/providers/" + string(kind) + "/callback",
			Scopes:       scopes,
			Issuer:       c.v.GetString(prefix + "issuer"),
		})
	}
	return out
}
