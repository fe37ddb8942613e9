package config

import "time"

// RateLimitConfig bounds the email send endpoints per address.
type RateLimitConfig interface {
	GetRateLimitWindow() time.Duration
	GetRateLimitMax() int
}

func (c mainConfig) GetRateLimitWindow() time.Duration {
	return c.v.GetDuration("ratelimit.window")
}

func (c mainConfig) GetRateLimitMax() int {
	return c.v.GetInt("ratelimit.max")
}
