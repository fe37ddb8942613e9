package config

import "time"

type OTPConfig interface {
	GetOTPDigits() int
	GetOTPAttempts() int
	GetOTPTTL() time.Duration
	GetOTPMode() string
	GetMagicLinkTTL() time.Duration
}

func (c mainConfig) GetOTPDigits() int {
	return c.v.GetInt("otp.digits")
}

func (c mainConfig) GetOTPAttempts() int {
	return c.v.GetInt("otp.attempts")
}

func (c mainConfig) GetOTPTTL() time.Duration {
	return c.v.GetDuration("otp.ttl")
}

func (c mainConfig) GetOTPMode() string {
	return c.v.GetString("otp.mode")
}

func (c mainConfig) GetMagicLinkTTL() time.Duration {
	return c.v.GetDuration("magic_link_ttl")
}
