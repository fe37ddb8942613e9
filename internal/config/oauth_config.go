package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetStateTimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetIDTokenKey() []byte
	GetPKCEMethod() string
	GetAlwaysIssueRefreshToken() bool
	GetStrictResource() bool
	GetResourceURL() string
	GetRegistrationEnabled() bool
	GetRegistrationMode() string
	GetRegistrationSecret() string
	GetRevocationAuth() string
	GetRevocationSecret() string
	GetRemoteIntrospectionURL() string
	GetRemoteIntrospectionClient() (id, secret string)
}

func (c mainConfig) GetAuthCodeTimeout() time.Duration {
	return c.v.GetDuration("code_ttl")
}

func (c mainConfig) GetStateTimeout() time.Duration {
	return c.v.GetDuration("state_ttl")
}

// GetDefaultAccessTokenExpiry is the access token lifetime. A negative value
// issues tokens that never expire.
func (c mainConfig) GetDefaultAccessTokenExpiry() time.Duration {
	return c.v.GetDuration("access_token_ttl")
}

func (c mainConfig) GetDefaultIDTokenExpiry() time.Duration {
	return c.v.GetDuration("id_token_ttl")
}

func (c mainConfig) GetDefaultRefreshTokenExpiry() time.Duration {
	return c.v.GetDuration("refresh_token_ttl")
}

// GetIDTokenKey is the HS256 key for ID tokens. Empty disables ID tokens.
func (c mainConfig) GetIDTokenKey() []byte {
	return []byte(c.v.GetString("id_token_key"))
}

func (c mainConfig) GetPKCEMethod() string {
	return c.v.GetString("pkce_method")
}

func (c mainConfig) GetAlwaysIssueRefreshToken() bool {
	return c.v.GetBool("always_refresh")
}

func (c mainConfig) GetStrictResource() bool {
	return c.v.GetBool("strict_resource")
}

// GetResourceURL is the protected resource this server advertises. Empty
// means the issuer.
func (c mainConfig) GetResourceURL() string {
	if r := c.v.GetString("resource_url"); r != "" {
		return r
	}
	return c.GetIssuerURL()
}

func (c mainConfig) GetRegistrationEnabled() bool {
	return c.v.GetBool("registration.enabled")
}

func (c mainConfig) GetRegistrationMode() string {
	return c.v.GetString("registration.mode")
}

func (c mainConfig) GetRegistrationSecret() string {
	return c.v.GetString("registration.secret")
}

func (c mainConfig) GetRevocationAuth() string {
	return c.v.GetString("revocation.auth")
}

func (c mainConfig) GetRevocationSecret() string {
	return c.v.GetString("revocation.secret")
}

// GetRemoteIntrospectionURL points bearer checks at another authorization
// server. Empty verifies against the local token store.
func (c mainConfig) GetRemoteIntrospectionURL() string {
	return c.v.GetString("introspection.remote_url")
}

func (c mainConfig) GetRemoteIntrospectionClient() (string, string) {
	return c.v.GetString("introspection.client_id"), c.v.GetString("introspection.client_secret")
}
