package analytics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Schema for the sync-run history database
const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    list_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    tasks INTEGER NOT NULL,
    duration_ms INTEGER,
    success INTEGER NOT NULL,
    error_type TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON sync_runs(timestamp);
CREATE INDEX IF NOT EXISTS idx_runs_list ON sync_runs(list_id);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON sync_runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_success ON sync_runs(success);
`

// openDB opens or creates the history database at the given path
func openDB(dbPath string) (*sql.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create analytics directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize analytics schema: %w", err)
	}

	return db, nil
}
