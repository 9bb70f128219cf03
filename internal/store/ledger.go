package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RunSummary is one completed stage run, persisted to the run ledger.
type RunSummary struct {
	RunID         string
	Stage         string
	Domain        string
	Risk          string
	Total         int
	Generated     int
	SkippedExists int
	SkippedLogged int
	SkippedResume int
	Failed        int
	StartIndex    int
	Started       time.Time
	Finished      time.Time
}

// Ledger records stage runs in a local sqlite database, one row per run.
// It is bookkeeping only; resume correctness never depends on it.
type Ledger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	stage           TEXT NOT NULL,
	domain          TEXT NOT NULL,
	risk            TEXT NOT NULL,
	total           INTEGER NOT NULL,
	generated       INTEGER NOT NULL,
	skipped_exists  INTEGER NOT NULL,
	skipped_logged  INTEGER NOT NULL,
	skipped_resume  INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	start_index     INTEGER NOT NULL,
	started         TEXT NOT NULL,
	finished        TEXT NOT NULL
);`

// OpenLedger opens (or creates) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record inserts one run row. A zero RunID gets a fresh UUID.
func (l *Ledger) Record(s RunSummary) (string, error) {
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	_, err := l.db.Exec(
		`INSERT INTO runs (run_id, stage, domain, risk, total, generated,
			skipped_exists, skipped_logged, skipped_resume, failed, start_index, started, finished)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Stage, s.Domain, s.Risk, s.Total, s.Generated,
		s.SkippedExists, s.SkippedLogged, s.SkippedResume, s.Failed, s.StartIndex,
		s.Started.UTC().Format(time.RFC3339), s.Finished.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return s.RunID, nil
}

// Runs returns every recorded run for a stage, newest first.
func (l *Ledger) Runs(stage string) ([]RunSummary, error) {
	rows, err := l.db.Query(
		`SELECT run_id, stage, domain, risk, total, generated, skipped_exists,
			skipped_logged, skipped_resume, failed, start_index, started, finished
		 FROM runs WHERE stage = ? ORDER BY started DESC`, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished string
		if err := rows.Scan(&s.RunID, &s.Stage, &s.Domain, &s.Risk, &s.Total,
			&s.Generated, &s.SkippedExists, &s.SkippedLogged, &s.SkippedResume,
			&s.Failed, &s.StartIndex, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		s.Started, _ = time.Parse(time.RFC3339, started)
		s.Finished, _ = time.Parse(time.RFC3339, finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
