package config

import (
	"errors"
	"net/url"

	"github.com/jrsteele09/go-auth-core/auth"
	errs "github.com/jrsteele09/go-auth-core/internal/errors"
	"github.com/jrsteele09/go-auth-core/pkce"
	"github.com/jrsteele09/go-auth-core/providers"
	"github.com/jrsteele09/go-auth-core/token/idtoken"
	"github.com/jrsteele09/go-auth-core/token/remote"
	"github.com/jrsteele09/go-auth-core/verification"
)

// Validate reports every configuration error at once. Each one matches
// errs.ErrInvalidConfig.
func Validate(c Config) error {
	var problems []error
	fail := func(format string, args ...interface{}) {
		problems = append(problems, errs.Config(format, args...))
	}

	if issuer := c.GetIssuerURL(); issuer == "" {
		fail("issuer_url is required")
	} else if u, err := url.Parse(issuer); err != nil || !u.IsAbs() || u.Host == "" {
		fail("issuer_url %q is not an absolute URL", issuer)
	}
	if pkce.Method(c.GetPKCEMethod()) != pkce.MethodS256 {
		fail("pkce_method must be %s", pkce.MethodS256)
	}

	switch mode := verification.StorageMode(c.GetOTPMode()); mode {
	case verification.ModePlain:
	case verification.ModeHashed, verification.ModeEncrypted:
		if len(c.GetServerKey()) == 0 {
			problems = append(problems, verification.ErrMissingServerKey)
		}
	default:
		fail("unknown otp.mode %q", mode)
	}

	if key := c.GetIDTokenKey(); len(key) > 0 && len(key) < idtoken.MinKeyLength {
		fail("id_token_key must be at least %d bytes", idtoken.MinKeyLength)
	}
	if endpoint := c.GetRemoteIntrospectionURL(); endpoint != "" {
		if err := remote.ValidateEndpoint(endpoint); err != nil {
			problems = append(problems, err)
		}
	}

	if c.GetRegistrationEnabled() {
		switch auth.RegistrationMode(c.GetRegistrationMode()) {
		case auth.RegistrationOpen:
		case auth.RegistrationPreshared:
			if c.GetRegistrationSecret() == "" {
				fail("registration.secret is required in preshared mode")
			}
		default:
			fail("unknown registration.mode %q", c.GetRegistrationMode())
		}
	}
	switch auth.RevocationAuth(c.GetRevocationAuth()) {
	case auth.RevocationAuthClient, auth.RevocationAuthOpen:
	case auth.RevocationAuthPreshared:
		if c.GetRevocationSecret() == "" {
			fail("revocation.secret is required in preshared mode")
		}
	default:
		fail("unknown revocation.auth %q", c.GetRevocationAuth())
	}

	switch c.GetStoreDriver() {
	case StoreMemory:
	case StoreRedis:
		if c.GetRedisAddr() == "" {
			fail("store.redis_addr is required for the redis driver")
		}
	case StoreSQLite:
		if c.GetSQLitePath() == "" {
			fail("store.sqlite_path is required for the sqlite driver")
		}
	default:
		fail("unknown store.driver %q", c.GetStoreDriver())
	}

	if c.GetEnableRateLimiting() && c.GetRateLimitWindow() <= 0 {
		fail("ratelimit.window must be positive")
	}
	if d := c.GetOTPDigits(); d < 4 || d > 12 {
		fail("otp.digits must be between 4 and 12")
	}
	if c.GetOTPAttempts() < 1 {
		fail("otp.attempts must be at least 1")
	}
	for _, p := range c.GetProviders() {
		if p.Kind == providers.KindOIDC && p.Issuer == "" {
			fail("providers.oidc.issuer is required")
		}
	}
	return errors.Join(problems...)
}
