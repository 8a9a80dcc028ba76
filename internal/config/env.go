// Package config reads typed settings from the environment after the .env
// file has been loaded.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/archivist-descry/descry/internal/env"
)

// Environment keys understood by descry.
const (
	EnvMaxJobs         = "DESCRY_MAX_JOBS"
	EnvDBPath          = "DESCRY_DB_PATH"
	EnvJobBitableURL   = "DESCRY_JOB_BITABLE_URL"
	EnvBackendProfile  = "DESCRY_BACKEND_PROFILE"
	EnvLogLevel        = "DESCRY_LOG_LEVEL"
	EnvScanTimeout     = "DESCRY_SCAN_TIMEOUT"
	EnvMetrics         = "DESCRY_METRICS"
	EnvFeishuAppID     = "FEISHU_APP_ID"
	EnvFeishuAppSecret = "FEISHU_APP_SECRET"
	EnvFeishuBaseURL   = "FEISHU_BASE_URL"
)

var ensureOnce sync.Once

func ensureEnvLoaded() {
	ensureOnce.Do(func() {
		_ = env.Ensure()
	})
}

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	ensureEnvLoaded()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

// MaxJobs is the per-device job history cap. Zero means unbounded; negative
// values fall back to the default.
func MaxJobs() int {
	if n := Int(EnvMaxJobs, DefaultMaxJobs); n >= 0 {
		return n
	}
	return DefaultMaxJobs
}

// DefaultMaxJobs is used when DESCRY_MAX_JOBS is unset or invalid.
const DefaultMaxJobs = 10
