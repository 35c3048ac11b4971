package config

import (
	"os"
	"strconv"
	"time"
)

// CacheConfig defines settings for the response cache middleware. When
// Enabled is false or no Redis client is configured, caching is disabled.
// TTL defines the lifetime of cache entries; the default is one hour, which
// also means a mutating operation can be followed by stale reads for up to
// that long. Prefix namespaces the keys in Redis.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: getenv("CACHE_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("CACHE_TTL", "3600s")),
		Prefix:  getenv("CACHE_PREFIX", "cache"),
	}
}

// RateLimitConfig defines settings for the fixed-window rate limiter.
// Requests above Limit within Window receive HTTP 429.
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	Prefix  string
}

// LoadRateLimitConfig reads environment variables to build a RateLimitConfig.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: getenv("RATELIMIT_ENABLED", "true") == "true",
		Limit:   atoi(getenv("RATELIMIT_LIMIT", "60")),
		Window:  parseDur(getenv("RATELIMIT_WINDOW", "60s")),
		Prefix:  getenv("RATELIMIT_PREFIX", "ratelimit"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}
