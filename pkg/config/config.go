package config

import (
	"os"
	"strconv"
	"strings"
)

const Version = "0.3.0"

// Config holds application configuration
type Config struct {
	// Operator API
	Host string
	Port int

	// Local storage
	StorageType string // "sqlite"
	DBPath      string

	// Identity cache
	CacheType string // "memory" or "redis"
	CacheTTL  int    // seconds
	CacheSize int
	RedisHost string
	RedisPort int

	// Remote connection
	RemoteTimeout   int     // seconds
	RemoteRateLimit float64 // requests per second, 0 disables pacing

	// Transformation defaults
	DefaultTaxRate     float64 // percent, used when a remote tax has no local match
	DefaultCountryCode string  // prefix for tax identifiers stored without one
	ExcludedLogins     []string

	// Debug
	Debug bool
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               9191,
		StorageType:        "sqlite",
		DBPath:             "hotelmig.db",
		CacheType:          "memory",
		CacheTTL:           3600,
		CacheSize:          65536,
		RedisHost:          "localhost",
		RedisPort:          6379,
		RemoteTimeout:      120,
		RemoteRateLimit:    0,
		DefaultTaxRate:     10,
		DefaultCountryCode: "ES",
		ExcludedLogins:     []string{"admin", "manager", "recepcion"},
		Debug:              false,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if val := os.Getenv("HOST"); val != "" {
		cfg.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Port = port
		}
	}
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		cfg.StorageType = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.DBPath = val
	}
	if val := os.Getenv("CACHE_TYPE"); val != "" {
		cfg.CacheType = val
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if ttl, err := strconv.Atoi(val); err == nil {
			cfg.CacheTTL = ttl
		}
	}
	if val := os.Getenv("CACHE_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.CacheSize = size
		}
	}
	if val := os.Getenv("REDIS_HOST"); val != "" {
		cfg.RedisHost = val
	}
	if val := os.Getenv("REDIS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.RedisPort = port
		}
	}
	if val := os.Getenv("REMOTE_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil {
			cfg.RemoteTimeout = timeout
		}
	}
	if val := os.Getenv("REMOTE_RATE_LIMIT"); val != "" {
		if limit, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.RemoteRateLimit = limit
		}
	}
	if val := os.Getenv("DEFAULT_TAX_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.DefaultTaxRate = rate
		}
	}
	if val := os.Getenv("DEFAULT_COUNTRY_CODE"); val != "" {
		cfg.DefaultCountryCode = strings.ToUpper(val)
	}
	if val := os.Getenv("EXCLUDED_LOGINS"); val != "" {
		cfg.ExcludedLogins = splitList(val)
	}
	if val := os.Getenv("DEBUG"); val != "" {
		cfg.Debug = parseBool(val)
	}
}

func parseBool(val string) bool {
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes"
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
