// Package analytics provides local SQLite-based history of sync runs: run
// identifiers, durations, task counts and outcomes. It records observability
// metadata only, never task data.
package analytics

import "os"

// Run kinds.
const (
	KindFull        = "full"
	KindIncremental = "incremental"
)

// Run represents a single sync run.
type Run struct {
	ID         string
	Timestamp  int64
	UserID     string
	ListID     string
	Kind       string // full or incremental
	Tasks      int    // tasks fetched (full) or changes applied (incremental)
	DurationMs int64
	Success    bool
	ErrorType  string
}

// IsEnabledFromEnv checks the TODOSYNC_ANALYTICS_ENABLED environment variable
// and returns the effective enabled state. Environment variable overrides the
// config value.
func IsEnabledFromEnv(configEnabled bool) bool {
	envVal := os.Getenv("TODOSYNC_ANALYTICS_ENABLED")
	if envVal == "" {
		return configEnabled
	}
	return envVal == "true" || envVal == "1"
}
