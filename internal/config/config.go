// Package config reads the server configuration from the environment
// (prefix AUTH_) and an optional file named by AUTH_CONFIG_FILE.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// envPrefix also names the config file variable: AUTH_CONFIG_FILE.
const envPrefix = "AUTH"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StoreConfig
	RateLimitConfig
	OTPConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetIssuerURL() string
	GetDefaultScope() string
}

type mainConfig struct {
	v *viper.Viper
}

var _ Config = mainConfig{}

// New loads the configuration. A config file is optional, but one that is
// named and cannot be read is an error.
func New() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "[config.New] read %s", file)
		}
	}
	return mainConfig{v: v}, nil
}

// FromViper wraps an already populated viper instance. Unset keys take the
// same defaults as New.
func FromViper(v *viper.Viper) Config {
	setDefaults(v)
	return mainConfig{v: v}
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func (c mainConfig) GetPort() string {
	port := c.v.GetString("port")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (c mainConfig) GetAppName() string {
	return c.v.GetString("app_name")
}

func (c mainConfig) GetEnv() string {
	return strings.ToUpper(c.v.GetString("env"))
}

func (c mainConfig) GetLogLevel() string {
	return c.v.GetString("log_level")
}

// GetIssuerURL is the base URL of the server, used in discovery metadata,
// ID tokens and every absolute link the server builds.
func (c mainConfig) GetIssuerURL() string {
	return strings.TrimSuffix(c.v.GetString("issuer_url"), "/")
}

func (c mainConfig) GetDefaultScope() string {
	return c.v.GetString("default_scope")
}
