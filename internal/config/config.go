// Package config loads PIM's environment-driven configuration once per
// process, the same sync.Once-guarded-singleton idiom the rest of this
// backend uses for its own config.
package config

import (
	"os"
	"strings"
	"sync"
	"time"
)

// Config holds every PIM knob sourced from the environment, with safe
// defaults (2h TTL, 15m cooldown, 10s fetch timeout, 30s download timeout,
// 30m task retention).
type Config struct {
	PluginDir    string
	CacheDir     string
	CatalogueURL string

	// CatalogueTTL, FailureCooldown and FetchTimeout are loaded but not
	// passed on: catalogue.Manager runs with its own fixed 2h TTL, 15m
	// backoff window and 10s fetch timeout.
	CatalogueTTL    time.Duration
	FailureCooldown time.Duration
	FetchTimeout    time.Duration
	DownloadTimeout time.Duration
	TaskRetention   time.Duration

	// SelfID is the WebUI's own plugin id; the façade refuses to
	// install/uninstall it.
	SelfID string
}

const officialCatalogueURL = "https://api.mcdreforged.com/catalogue/everything_slim.json.xz"

var (
	global *Config
	once   sync.Once
)

// Load returns the process-wide Config, initializing it from the
// environment on first call.
func Load() *Config {
	once.Do(func() {
		global = &Config{
			PluginDir:       getEnv("PIM_PLUGIN_DIR", "./plugins"),
			CacheDir:        getEnv("PIM_CACHE_DIR", "./data/pim_cache"),
			CatalogueURL:    getEnv("PIM_CATALOGUE_URL", officialCatalogueURL),
			CatalogueTTL:    getEnvDuration("PIM_CATALOGUE_TTL", 2*time.Hour),
			FailureCooldown: getEnvDuration("PIM_FAILURE_COOLDOWN", 15*time.Minute),
			FetchTimeout:    getEnvDuration("PIM_FETCH_TIMEOUT", 10*time.Second),
			DownloadTimeout: getEnvDuration("PIM_DOWNLOAD_TIMEOUT", 30*time.Second),
			TaskRetention:   getEnvDuration("PIM_TASK_RETENTION", 30*time.Minute),
			SelfID:          getEnv("PIM_SELF_ID", "guguwebui"),
		}
	})
	return global
}

// IsOfficialCatalogue reports whether url is the canonical catalogue URL,
// used to pick the fixed cache filename instead of a hashed one.
func IsOfficialCatalogue(url string) bool {
	return url == officialCatalogueURL
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
