// Package ledger records pipeline stage runs in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// Status is the outcome of a stage run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// OutOfDomain is the per-field count of destination points left NaN by interpolation.
type OutOfDomain struct {
	Field    string `json:"field"`
	Excluded int    `json:"excluded"`
	Total    int    `json:"total"`
}

// Run is one recorded stage run.
type Run struct {
	ID          int64         `json:"id"`
	Stage       string        `json:"stage"`
	InitTime    time.Time     `json:"init_time"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Artifacts   int           `json:"artifacts"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	OutOfDomain []OutOfDomain `json:"out_of_domain,omitempty"`
}

// Ledger is a SQLite-backed run store. It is safe for concurrent use.
type Ledger struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens (creating if needed) the ledger at path and applies migrations.
// ":memory:" gives a private in-memory ledger.
func Open(ctx context.Context, path string, clock clockwork.Clock) (*Ledger, error) {
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	db, err := sql.Open("sqlite", dsn(path, memory))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	if memory {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach ledger: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db, clock: clock}, nil
}

// dsn appends per-connection pragmas so every pooled connection enforces
// foreign keys, not only the first one.
func dsn(path string, memory bool) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	d := path + sep + "_pragma=foreign_keys(1)"
	if !memory {
		d += "&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return d
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// CheckReadiness pings the database.
func (l *Ledger) CheckReadiness(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger unavailable: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Start records a running stage and returns its id.
func (l *Ledger) Start(ctx context.Context, stage string, init time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO stage_runs (stage, init_time, status, started_at) VALUES (?, ?, ?, ?)`,
		stage, formatTime(init), StatusRunning, formatTime(l.clock.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to record %s run: %w", stage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	return id, nil
}

// Finish closes a run with its outcome. runErr, if non-nil, is stored as the error message.
func (l *Ledger) Finish(ctx context.Context, id int64, status Status, artifacts int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE stage_runs SET status = ?, artifacts = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, artifacts, msg, formatTime(l.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", id)
	}
	return nil
}

// RecordOutOfDomain stores (or replaces) a field's out-of-domain summary for a run.
func (l *Ledger) RecordOutOfDomain(ctx context.Context, id int64, o OutOfDomain) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO out_of_domain (run_id, field, excluded, total) VALUES (?, ?, ?, ?)`,
		id, o.Field, o.Excluded, o.Total)
	if err != nil {
		return fmt.Errorf("failed to record out-of-domain summary for %s: %w", o.Field, err)
	}
	return nil
}

// Recent returns the latest runs, newest first, with their out-of-domain summaries.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, stage, init_time, status, error_message, artifacts, started_at, finished_at
		FROM stage_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]Run, 0, limit)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			r                 Run
			initTime, started string
			finished          sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Stage, &initTime, &r.Status, &r.Error, &r.Artifacts, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.InitTime, err = parseTime(initTime); err != nil {
			return nil, fmt.Errorf("run %d: bad init_time: %w", r.ID, err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("run %d: bad started_at: %w", r.ID, err)
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, fmt.Errorf("run %d: bad finished_at: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		index[r.ID] = len(runs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return runs, nil
	}
	oldest := runs[0].ID
	for _, r := range runs[1:] {
		oldest = min(oldest, r.ID)
	}

	ood, err := l.db.QueryContext(ctx, `
		SELECT run_id, field, excluded, total FROM out_of_domain
		WHERE run_id >= ? ORDER BY run_id, field`, oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to query out-of-domain summaries: %w", err)
	}
	defer func() { _ = ood.Close() }()
	for ood.Next() {
		var (
			id int64
			o  OutOfDomain
		)
		if err := ood.Scan(&id, &o.Field, &o.Excluded, &o.Total); err != nil {
			return nil, fmt.Errorf("failed to scan out-of-domain summary: %w", err)
		}
		if i, ok := index[id]; ok {
			runs[i].OutOfDomain = append(runs[i].OutOfDomain, o)
		}
	}
	return runs, ood.Err()
}
