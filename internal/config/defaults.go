package config

import "time"

// defaults holds every key the server reads. A key set in the environment
// or the config file overrides it.
var defaults = map[string]interface{}{
	"port":          "8080",
	"app_name":      "Go Auth Core",
	"env":           "DEV",
	"log_level":     "info",
	"issuer_url":    "http://localhost:8080",
	"default_scope": "user",

	"cors.allowed_origins": []string{},
	"cors.allowed_methods": "GET, POST, OPTIONS",
	"cors.allowed_headers": "Content-Type, Authorization",

	"code_ttl":          5 * time.Minute,
	"state_ttl":         10 * time.Minute,
	"access_token_ttl":  time.Hour,
	"refresh_token_ttl": 30 * 24 * time.Hour,
	"id_token_ttl":      time.Hour,
	"id_token_key":      "",
	"pkce_method":       "S256",
	"always_refresh":    false,
	"strict_resource":   false,
	"resource_url":      "",

	"registration.enabled": false,
	"registration.mode":    "open",
	"registration.secret":  "",
	"revocation.auth":      "client",
	"revocation.secret":    "",

	"introspection.remote_url":    "",
	"introspection.client_id":     "",
	"introspection.client_secret": "",

	"server_key":            "",
	"session_max_age":       30 * time.Minute,
	"ratelimit.enabled":     true,
	"ratelimit.window":      15 * time.Minute,
	"ratelimit.max":         5,
	"ratelimit.token_rps":   10.0,
	"ratelimit.token_burst": 20,

	"store.driver":         "memory",
	"store.redis_addr":     "localhost:6379",
	"store.redis_password": "",
	"store.redis_db":       0,
	"store.key_prefix":     "authcore:",
	"store.sqlite_path":    "./data/auth.db",
	"store.sweep_interval": time.Minute,

	"otp.digits":     6,
	"otp.attempts":   3,
	"otp.ttl":        10 * time.Minute,
	"otp.mode":       "hashed",
	"magic_link_ttl": 15 * time.Minute,
}
