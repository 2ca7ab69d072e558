package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = eris.New("store: not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	settings   TEXT,
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS generations (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	round      INTEGER NOT NULL,
	fitness    TEXT NOT NULL,
	best       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, round)
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun records a running run with its settings serialized as JSON.
func (s *SQLiteStore) CreateRun(ctx context.Context, kind RunKind, settings any) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal settings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), string(RunStatusRunning), string(settingsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		Kind:      kind,
		Status:    RunStatusRunning,
		Settings:  settingsJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompleteRun stores the summary and marks the run complete.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *Summary) error {
	return s.finish(ctx, runID, RunStatusComplete, summary)
}

// FailRun marks the run failed and keeps the error text.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	summary := &Summary{}
	if cause != nil {
		summary.Error = cause.Error()
	}
	return s.finish(ctx, runID, RunStatusFailed, summary)
}

func (s *SQLiteStore) finish(ctx context.Context, runID string, status RunStatus, summary *Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, settings, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, kind, status, settings, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// AddGeneration records the fitness listing of one round.
func (s *SQLiteStore) AddGeneration(ctx context.Context, g Generation) error {
	fitnessJSON, err := json.Marshal(g.Fitness)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fitness")
	}
	bestJSON, err := json.Marshal(g.Best)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal best factors")
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generations (run_id, round, fitness, best, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.RunID, g.Round, string(fitnessJSON), string(bestJSON), g.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert generation %d for run %s", g.Round, g.RunID)
}

// ListGenerations returns the generations of a run by round.
func (s *SQLiteStore) ListGenerations(ctx context.Context, runID string) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, round, fitness, best, created_at FROM generations WHERE run_id = ? ORDER BY round`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list generations")
	}
	defer rows.Close() //nolint:errcheck

	var out []Generation
	for rows.Next() {
		var g Generation
		var fitnessJSON, bestJSON string
		if err := rows.Scan(&g.RunID, &g.Round, &fitnessJSON, &bestJSON, &g.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan generation")
		}
		if err := json.Unmarshal([]byte(fitnessJSON), &g.Fitness); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal fitness")
		}
		if err := json.Unmarshal([]byte(bestJSON), &g.Best); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal best factors")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list generations iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var settingsJSON, summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.Kind, &r.Status, &settingsJSON, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if settingsJSON.Valid {
		r.Settings = json.RawMessage(settingsJSON.String)
	}
	if summaryJSON.Valid {
		r.Summary = &Summary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
