// Package store keeps the history of batch and learning runs.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// RunKind distinguishes the commands that record runs.
type RunKind string

// Run kinds.
const (
	RunKindBatch RunKind = "batch"
	RunKindLearn RunKind = "learn"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Summary is the outcome of a finished run.
type Summary struct {
	Locations int     `json:"locations"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	Erroneous int     `json:"erroneous"`
	MeanRatio float64 `json:"mean_ratio"`
	// Fitness is the final test fitness of a learning run.
	Fitness *float64 `json:"fitness,omitempty"`
	// Factors is the weight vector a learning run settled on.
	Factors map[string]float64 `json:"factors,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Run is one recorded invocation.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Status    RunStatus       `json:"status"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Summary   *Summary        `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Generation is the population fitness after one optimizer round.
type Generation struct {
	RunID     string             `json:"run_id"`
	Round     int                `json:"round"`
	Fitness   []float64          `json:"fitness"`
	Best      map[string]float64 `json:"best"`
	CreatedAt time.Time          `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   RunKind   `json:"kind,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind RunKind, settings any) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary *Summary) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Learning generations
	AddGeneration(ctx context.Context, g Generation) error
	ListGenerations(ctx context.Context, runID string) ([]Generation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
