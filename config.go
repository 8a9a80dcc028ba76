package descry

import (
	"github.com/archivist-descry/descry/internal/config"
	"github.com/archivist-descry/descry/internal/metrics"
)

// Config controls Service behavior.
type Config struct {
	// MaxJobs caps the per-device job history; the oldest jobs are evicted
	// first. Zero keeps every job.
	MaxJobs int
	// Recorder receives device and job transitions. Nil disables auditing.
	Recorder Recorder
	// Metrics receives scan and device metrics. Nil disables them.
	Metrics *metrics.Collectors
}

// ConfigFromEnv returns a Config with MaxJobs read from DESCRY_MAX_JOBS.
// Recorders and metrics are wired by the caller.
func ConfigFromEnv() Config {
	return Config{MaxJobs: config.MaxJobs()}
}
