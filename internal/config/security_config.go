package config

import "time"

type SecurityConfig interface {
	GetServerKey() []byte
	GetMaxSessionAge() time.Duration
	GetEnableRateLimiting() bool
	GetTokenEndpointRate() (rps float64, burst int)
}

// GetServerKey keys the hashed and encrypted OTP storage modes.
func (c mainConfig) GetServerKey() []byte {
	return []byte(c.v.GetString("server_key"))
}

func (c mainConfig) GetMaxSessionAge() time.Duration {
	return c.v.GetDuration("session_max_age")
}

func (c mainConfig) GetEnableRateLimiting() bool {
	return c.v.GetBool("ratelimit.enabled")
}

// GetTokenEndpointRate is the per-IP token bucket of the token endpoint.
func (c mainConfig) GetTokenEndpointRate() (float64, int) {
	return c.v.GetFloat64("ratelimit.token_rps"), c.v.GetInt("ratelimit.token_burst")
}
