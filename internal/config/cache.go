package config

import "time"

// CacheConfig controls the per-owner response cache on inventory list
// endpoints. Entries are invalidated by bumping an owner version counter on
// every mutation, so the TTL only bounds staleness across processes that
// missed an invalidation.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads cache settings from the environment with defaults.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 30*time.Second),
		Prefix:  getenv("CACHE_PREFIX", "cache"),
	}
}
