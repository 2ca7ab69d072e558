package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var _ Store = (*SQLiteStore)(nil)

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, RunKindBatch, map[string]any{"radius": 200})
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.NotEmpty(t, run.ID)

	summary := &Summary{Locations: 3, Passed: 2, Failed: 1, MeanRatio: 0.75}
	require.NoError(t, st.CompleteRun(ctx, run.ID, summary))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunKindBatch, got.Kind)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.Equal(t, summary, got.Summary)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(got.Settings, &settings))
	assert.EqualValues(t, 200, settings["radius"])
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, RunKindLearn, nil)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("worker 2 failed")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "worker 2 failed", got.Summary.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.CompleteRun(ctx, "missing", &Summary{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateRun(ctx, RunKindBatch, nil)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, RunKindLearn, nil)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, b.ID, &Summary{}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	batches, err := st.ListRuns(ctx, RunFilter{Kind: RunKindBatch})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, b.ID, batches[0].ID)

	running, err := st.ListRuns(ctx, RunFilter{Status: RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, RunKindLearn, running[0].Kind)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_Generations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, RunKindLearn, nil)
	require.NoError(t, err)

	for round, best := range []float64{0.4, 0.6} {
		require.NoError(t, st.AddGeneration(ctx, Generation{
			RunID:   run.ID,
			Round:   round + 1,
			Fitness: []float64{best, best / 2},
			Best:    map[string]float64{"OSM Weight": best},
		}))
	}
	assert.Error(t, st.AddGeneration(ctx, Generation{RunID: run.ID, Round: 1, Fitness: []float64{}, Best: map[string]float64{}}), "duplicate round")

	gens, err := st.ListGenerations(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, 1, gens[0].Round)
	assert.Equal(t, []float64{0.6, 0.3}, gens[1].Fitness)
	assert.InDelta(t, 0.6, gens[1].Best["OSM Weight"], 0)

	none, err := st.ListGenerations(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
