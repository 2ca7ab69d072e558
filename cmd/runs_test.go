package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sptp/internal/store"
)

func fitness(v float64) *float64 { return &v }

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Kind:      store.RunKindBatch,
			Status:    store.RunStatusComplete,
			Summary:   &store.Summary{Locations: 12, Passed: 9, Failed: 3, MeanRatio: 0.8126},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Kind:      store.RunKindLearn,
			Status:    store.RunStatusComplete,
			Summary:   &store.Summary{Locations: 4, Passed: 3, Fitness: fitness(0.71234)},
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
		{
			ID:        "0f012345-6789-0000-0000-000000000000",
			Kind:      store.RunKindBatch,
			Status:    store.RunStatusFailed,
			Summary:   &store.Summary{Error: "batch: worker failed: batch: corrupt cache file removed"},
			CreatedAt: now,
			UpdatedAt: now.Add(time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "KIND")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "batch")
	assert.Contains(t, output, "mean 0.813")
	assert.Contains(t, output, "fitness 0.7123")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "batch: worker failed: batch...")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []store.Run{
		{ID: "1", Kind: store.RunKindBatch, Status: store.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(10 * time.Second),
			Summary: &store.Summary{Locations: 10, Passed: 8, Failed: 2, MeanRatio: 0.8}},
		{ID: "2", Kind: store.RunKindBatch, Status: store.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(30 * time.Second),
			Summary: &store.Summary{Locations: 5, Passed: 2, Failed: 3, MeanRatio: 0.4}},
		{ID: "3", Kind: store.RunKindLearn, Status: store.RunStatusFailed, CreatedAt: now, UpdatedAt: now},
		{ID: "4", Kind: store.RunKindBatch, Status: store.RunStatusRunning, CreatedAt: now, UpdatedAt: now},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Batch)
	assert.Equal(t, 1, s.Learn)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 15, s.Locations)
	assert.Equal(t, 10, s.Passed)
	assert.InDelta(t, 0.6, s.MeanRatio, 1e-9)
	assert.InDelta(t, 20.0, s.AvgDurSecs, 0.01)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Mean ratio:")
	assert.Contains(t, output, "0.600")
	assert.Contains(t, output, "20.0s")
}

func TestRunsStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, runStats{}, s)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestRunsSince(t *testing.T) {
	now := time.Now()
	runs := []store.Run{
		{ID: "old", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "new", CreatedAt: now.Add(-time.Hour)},
	}
	got := runsSince(runs, now.Add(-24*time.Hour))
	assert.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
