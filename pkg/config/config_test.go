package config_test

import (
	"testing"

	"github.com/ha1tch/hotelmig/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, "memory", cfg.CacheType)
	assert.Equal(t, float64(10), cfg.DefaultTaxRate)
	assert.Equal(t, []string{"admin", "manager", "recepcion"}, cfg.ExcludedLogins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("REMOTE_RATE_LIMIT", "2.5")
	t.Setenv("DEFAULT_COUNTRY_CODE", "pt")
	t.Setenv("EXCLUDED_LOGINS", "admin, , bot ")
	t.Setenv("DEBUG", "yes")
	t.Setenv("PORT", "not-a-number")

	cfg := config.Default()
	config.LoadFromEnv(cfg)

	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "redis", cfg.CacheType)
	assert.Equal(t, 2.5, cfg.RemoteRateLimit)
	assert.Equal(t, "PT", cfg.DefaultCountryCode)
	assert.Equal(t, []string{"admin", "bot"}, cfg.ExcludedLogins)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 9191, cfg.Port, "invalid values keep the default")
}
