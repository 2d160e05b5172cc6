// Package journal persists scenario transcripts in SQLite so runs can be
// listed and compared later.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Run status values.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// ErrUnknownRun is returned for a run id the journal has never seen.
var ErrUnknownRun = errors.New("journal: unknown run")

// Run describes one recorded scenario execution.
type Run struct {
	ID         string
	Scenario   string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string
}

// Journal is a SQLite-backed transcript store.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Begin registers a new run of scenario and returns its id.
func (j *Journal) Begin(ctx context.Context, scenario string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, started_at, status) VALUES (?, ?, ?, ?)`,
		id, scenario, j.now().UnixNano(), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// Record stores line number seq of a run. Recording the same seq twice
// keeps the first line.
func (j *Journal) Record(ctx context.Context, runID string, seq int, line string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO lines (run_id, seq, line) VALUES (?, ?, ?) ON CONFLICT (run_id, seq) DO NOTHING`,
		runID, seq, line,
	)
	if err != nil {
		return fmt.Errorf("record line %d: %w", seq, err)
	}
	return nil
}

// Finish marks a run passed, or failed with runErr.
func (j *Journal) Finish(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusPassed, sql.NullString{}
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		j.now().UnixNano(), status, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrUnknownRun)
	}
	return nil
}

// Lines returns the transcript of a run in order.
func (j *Journal) Lines(ctx context.Context, runID string) ([]string, error) {
	if _, err := j.Run(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, `SELECT line FROM lines WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// Run looks up one run.
func (j *Journal) Run(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, scenario, started_at, finished_at, status, error FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrUnknownRun)
	}
	return run, err
}

// Runs lists the runs of scenario, newest first. An empty scenario lists
// every run.
func (j *Journal) Runs(ctx context.Context, scenario string) ([]Run, error) {
	query := `SELECT id, scenario, started_at, finished_at, status, error FROM runs`
	var args []any
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
		msg      sql.NullString
	)
	if err := s.Scan(&run.ID, &run.Scenario, &started, &finished, &run.Status, &msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.Unix(0, started)
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64)
	}
	run.Error = msg.String
	return run, nil
}
