package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

// ErrRunNotFound is returned when no recorded run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// Store keeps the history of past runs
type Store struct {
	db *sql.DB
}

// RunSummary is one row of run history
type RunSummary struct {
	ID         string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	State      types.RunState
	LoggedIn   bool
	Passed     int
	Failed     int
	Error      string
}

// OK reports whether the run closed normally with no failed probes.
func (r RunSummary) OK() bool {
	return r.State == types.StateClosed && r.Error == "" && r.Failed == 0
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		state TEXT NOT NULL,
		logged_in BOOLEAN NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		target TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT,
		status INTEGER,
		success BOOLEAN NOT NULL,
		partial BOOLEAN NOT NULL,
		missing TEXT,
		screenshot TEXT,
		message TEXT,
		duration_ms INTEGER,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun records a finished run and its results
func (s *Store) SaveRun(r *types.RunReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	loggedIn := r.Login != nil && r.Login.Success
	_, err = tx.Exec(`
		INSERT INTO runs (id, base_url, started_at, finished_at, state, logged_in, passed, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			state = excluded.state,
			logged_in = excluded.logged_in,
			passed = excluded.passed,
			failed = excluded.failed,
			error = excluded.error
	`, r.ID, r.BaseURL, r.StartedAt, r.FinishedAt, string(r.State), loggedIn,
		r.Passed(), r.Failed(), r.Error)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM results WHERE run_id = ?`, r.ID); err != nil {
		return err
	}
	for i, res := range r.Results {
		missingJSON, _ := json.Marshal(res.Missing)
		_, err := tx.Exec(`
			INSERT INTO results (run_id, seq, target, path, url, status, success, partial,
				missing, screenshot, message, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, i, res.Target, res.Path, res.URL, res.Status, res.Success, res.Partial,
			string(missingJSON), res.Screenshot, res.Message, res.Duration.Milliseconds())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, base_url, started_at, finished_at, state, logged_in, passed, failed, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindRun returns the run whose ID starts with prefix. The prefix must
// name exactly one run.
func (s *Store) FindRun(prefix string) (RunSummary, error) {
	if prefix == "" {
		return RunSummary{}, ErrRunNotFound
	}
	rows, err := s.db.Query(`
		SELECT id, base_url, started_at, finished_at, state, logged_in, passed, failed, error
		FROM runs
		WHERE substr(id, 1, ?) = ?
		LIMIT 2
	`, len(prefix), prefix)
	if err != nil {
		return RunSummary{}, err
	}
	defer rows.Close()

	var found []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return RunSummary{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return RunSummary{}, err
	}

	switch len(found) {
	case 0:
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return RunSummary{}, fmt.Errorf("run id %s is ambiguous", prefix)
	}
}

func scanRun(rows *sql.Rows) (RunSummary, error) {
	var r RunSummary
	var state string
	var errText sql.NullString

	err := rows.Scan(&r.ID, &r.BaseURL, &r.StartedAt, &r.FinishedAt, &state,
		&r.LoggedIn, &r.Passed, &r.Failed, &errText)
	if err != nil {
		return RunSummary{}, err
	}
	r.State = types.RunState(state)
	r.Error = errText.String
	return r, nil
}

// Results returns the stored results of one run in probe order
func (s *Store) Results(runID string) ([]types.ProbeResult, error) {
	rows, err := s.db.Query(`
		SELECT target, path, url, status, success, partial, missing, screenshot, message, duration_ms
		FROM results
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ProbeResult
	for rows.Next() {
		var res types.ProbeResult
		var url, missingJSON, screenshot, message sql.NullString
		var durationMS int64

		err := rows.Scan(&res.Target, &res.Path, &url, &res.Status, &res.Success, &res.Partial,
			&missingJSON, &screenshot, &message, &durationMS)
		if err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(missingJSON.String), &res.Missing)
		res.URL = url.String
		res.Screenshot = screenshot.String
		res.Message = message.String
		res.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, res)
	}
	return results, rows.Err()
}
