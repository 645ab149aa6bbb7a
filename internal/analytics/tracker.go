package analytics

import (
	"database/sql"
	"time"
)

// Tracker records sync runs into the local history database. A disabled
// tracker accepts records and drops them, so callers never need to branch.
type Tracker struct {
	db      *sql.DB
	enabled bool
}

// NewTracker opens (or creates) the history database at dbPath.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	if !enabled {
		return &Tracker{enabled: false}, nil
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Tracker{db: db, enabled: true}, nil
}

// Record stores one sync run. Best-effort: recording must never affect the
// sync itself, so errors are returned for logging only.
func (t *Tracker) Record(run Run) error {
	if !t.enabled || t.db == nil {
		return nil
	}

	if run.Timestamp == 0 {
		run.Timestamp = time.Now().Unix()
	}

	_, err := t.db.Exec(
		`INSERT OR REPLACE INTO sync_runs
		 (id, timestamp, user_id, list_id, kind, tasks, duration_ms, success, error_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Timestamp, run.UserID, run.ListID, run.Kind,
		run.Tasks, run.DurationMs, boolToInt(run.Success), run.ErrorType,
	)
	return err
}

// Recent returns the most recent n runs, newest first.
func (t *Tracker) Recent(n int) ([]Run, error) {
	if !t.enabled || t.db == nil {
		return nil, nil
	}

	rows, err := t.db.Query(
		`SELECT id, timestamp, user_id, list_id, kind, tasks, duration_ms, success, error_type
		 FROM sync_runs ORDER BY timestamp DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var success int
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.UserID, &r.ListID, &r.Kind,
			&r.Tasks, &r.DurationMs, &success, &r.ErrorType); err != nil {
			return nil, err
		}
		r.Success = success != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Enabled reports whether the tracker is recording runs.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Close closes the underlying database.
func (t *Tracker) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
