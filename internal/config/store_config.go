package config

import "time"

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetStoreKeyPrefix() string
	GetSQLitePath() string
	GetSweepInterval() time.Duration
}

func (c mainConfig) GetStoreDriver() string {
	return c.v.GetString("store.driver")
}

func (c mainConfig) GetRedisAddr() string {
	return c.v.GetString("store.redis_addr")
}

func (c mainConfig) GetRedisPassword() string {
	return c.v.GetString("store.redis_password")
}

func (c mainConfig) GetRedisDB() int {
	return c.v.GetInt("store.redis_db")
}

func (c mainConfig) GetStoreKeyPrefix() string {
	return c.v.GetString("store.key_prefix")
}

func (c mainConfig) GetSQLitePath() string {
	return c.v.GetString("store.sqlite_path")
}

// GetSweepInterval is how often expired records are purged. Zero disables
// the sweep loop.
func (c mainConfig) GetSweepInterval() time.Duration {
	return c.v.GetDuration("store.sweep_interval")
}
