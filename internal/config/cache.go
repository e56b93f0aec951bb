package config

import "time"

// StatusCacheConfig defines settings for the application-status cache and
// the batching of status lookups.  FreshFor is how long a cached entry is
// served without a refresh; Retain is how long a stale entry is still served
// while it is refreshed in the background.  BatchSize bounds the number of
// pages per remote lookup and BatchPause spaces consecutive lookups.
type StatusCacheConfig struct {
	Enabled    bool
	Shared     bool // also keep entries in Redis
	FreshFor   time.Duration
	Retain     time.Duration
	Prefix     string
	BatchSize  int
	BatchPause time.Duration
}

// LoadStatusCacheConfig reads environment variables to build a
// StatusCacheConfig.  Defaults are used when variables are not set.
func LoadStatusCacheConfig() StatusCacheConfig {
	cfg := StatusCacheConfig{
		Enabled:    envBool("STATUS_CACHE_ENABLED", true),
		Shared:     envBool("STATUS_CACHE_SHARED", true),
		FreshFor:   envDur("STATUS_CACHE_FRESH_FOR", time.Minute),
		Retain:     envDur("STATUS_CACHE_RETAIN", 5*time.Minute),
		Prefix:     envStr("STATUS_CACHE_PREFIX", "status"),
		BatchSize:  envInt("STATUS_BATCH_SIZE", 10),
		BatchPause: envDur("STATUS_BATCH_PAUSE", 100*time.Millisecond),
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Retain < cfg.FreshFor {
		cfg.Retain = cfg.FreshFor
	}
	return cfg
}

// ResponseCacheConfig configures the short-lived per-principal cache in
// front of the site and page listing routes.
type ResponseCacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadResponseCacheConfig reads RESPONSE_CACHE_* variables.
func LoadResponseCacheConfig() ResponseCacheConfig {
	cfg := ResponseCacheConfig{
		Enabled:      envBool("RESPONSE_CACHE_ENABLED", true),
		TTL:          envDur("RESPONSE_CACHE_TTL", 30*time.Second),
		Prefix:       envStr("RESPONSE_CACHE_PREFIX", "rc"),
		MaxBodyBytes: envInt("RESPONSE_CACHE_MAX_BODY", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.Enabled = false
	}
	return cfg
}
