package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/kml"
	"github.com/sells-group/sptp/internal/model"
	"github.com/sells-group/sptp/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeMaps serves the fixture document for every request.
type fakeMaps struct {
	calls atomic.Int32
	err   error

	mu     sync.Mutex
	points [][2]float64
}

func (f *fakeMaps) FetchToFile(_ context.Context, lat, lon float64, path string) (int64, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.points = append(f.points, [2]float64{lat, lon})
	f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	data, err := os.ReadFile(filepath.Join("testdata", "three_ways.osm"))
	if err != nil {
		return 0, err
	}
	return int64(len(data)), os.WriteFile(path, data, 0o644)
}

func square(t *testing.T, x0, y0, x1, y1 float64) *model.Way {
	t.Helper()
	poly, err := model.NewPolygon([][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}})
	require.NoError(t, err)
	return &model.Way{ID: "truth", Polygon: poly}
}

// testSettings lays out a scratch workspace with two locations at (1, 1).
// 0001 is truthed with the building, 0002 with the grass patch next to it.
func testSettings(t *testing.T) Settings {
	t.Helper()
	root := t.TempDir()
	s := DefaultSettings()
	s.InputDir = filepath.Join(root, "input")
	s.OutputDir = filepath.Join(root, "output")
	s.CacheDir = filepath.Join(root, "cache")
	s.LogDir = filepath.Join(root, "log")
	s.SURsFile = filepath.Join("testdata", "surs.txt")
	s.FactorsFile = filepath.Join("testdata", "factors.txt")
	s.Workers = 2
	s.Quiet = true

	require.NoError(t, os.MkdirAll(s.InputDir, 0o755))
	truth := map[string]*model.Way{
		"0001": square(t, 0.999, 0.999, 1.001, 1.001),
		"0002": square(t, 1.002, 0.999, 1.004, 1.001),
	}
	for id, w := range truth {
		path := filepath.Join(s.InputDir, id+comparator.SuffixTruth)
		require.NoError(t, kml.WriteFile(path, []kml.Placemark{kml.FromWay(w)}))
	}
	return s
}

func seedCache(t *testing.T, s Settings, ids ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(s.CacheDir, 0o755))
	data, err := os.ReadFile(filepath.Join("testdata", "three_ways.osm"))
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, os.WriteFile(filepath.Join(s.CacheDir, id+".osm"), data, 0o644))
	}
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRunEndToEnd(t *testing.T) {
	s := testSettings(t)
	s.Compare = true
	s.Quiet = false
	maps := &fakeMaps{}
	st := newStore(t)
	var out bytes.Buffer

	rep, err := Run(context.Background(), s, Deps{Maps: maps, Store: st, Stdout: &out})
	require.NoError(t, err)

	assert.Equal(t, int32(2), maps.calls.Load())
	assert.ElementsMatch(t, [][2]float64{{1, 1}, {1, 1}}, maps.points)
	assert.Equal(t, 2, rep.Locations)
	assert.Equal(t, []int{1, 1}, rep.Distribution)

	require.Len(t, rep.Winners, 2)
	for i, id := range []string{"0001", "0002"} {
		w := rep.Winners[i]
		assert.Equal(t, id, w.LocationID)
		assert.Equal(t, "100", w.Way.ID)
		assert.Equal(t, id, w.Way.Name)
		assert.FileExists(t, filepath.Join(s.OutputDir, id+comparator.SuffixComputed))
		assert.FileExists(t, filepath.Join(s.OutputDir, id+".json"))
		assert.NoFileExists(t, filepath.Join(s.OutputDir, id+".points.csv"))
	}

	require.NotNil(t, rep.Comparison)
	assert.Contains(t, rep.Comparison.Passed, "0001")
	assert.Contains(t, rep.Comparison.Failed, "0002")
	assert.Empty(t, rep.Comparison.Erroneous)

	assert.Contains(t, out.String(), "SPtP - Batch Processing")
	assert.Contains(t, out.String(), "Running 2 workers....")
	assert.Contains(t, out.String(), "Elapsed time:")

	for _, name := range []string{"icup_batch.log", "icup_process_0.log", "icup_process_1.log"} {
		assert.FileExists(t, filepath.Join(s.LogDir, name))
	}

	run, err := st.GetRun(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Locations)
	assert.Equal(t, 1, run.Summary.Passed)
	assert.Equal(t, 1, run.Summary.Failed)
	assert.InDelta(t, 0.5, run.Summary.MeanRatio, 1e-9)
}

func TestRunQuiet(t *testing.T) {
	s := testSettings(t)
	var out bytes.Buffer
	_, err := Run(context.Background(), s, Deps{Maps: &fakeMaps{}, Stdout: &out})
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestRunRecreatesOutput(t *testing.T) {
	s := testSettings(t)
	require.NoError(t, os.MkdirAll(s.OutputDir, 0o755))
	stale := filepath.Join(s.OutputDir, "9999.computed.kml")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	_, err := Run(context.Background(), s, Deps{Maps: &fakeMaps{}})
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestRunDebugCSV(t *testing.T) {
	s := testSettings(t)
	s.DebugCSV = true
	_, err := Run(context.Background(), s, Deps{Maps: &fakeMaps{}})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(s.OutputDir, "0001.points.csv"))
}

func TestRunCacheFreshness(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		age   time.Duration
		want  int32
	}{
		{"fresh", false, time.Hour, 0},
		{"stale", false, 97 * time.Hour, 2},
		{"forced", true, time.Hour, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(t)
			s.ForceCacheUpdate = tt.force
			seedCache(t, s, "0001", "0002")
			maps := &fakeMaps{}
			now := func() time.Time { return time.Now().Add(tt.age) }

			_, err := Run(context.Background(), s, Deps{Maps: maps, Now: now})
			require.NoError(t, err)
			assert.Equal(t, tt.want, maps.calls.Load())
		})
	}
}

func TestRunSkipCacheUpdate(t *testing.T) {
	s := testSettings(t)
	s.SkipCacheUpdate = true
	seedCache(t, s, "0001", "0002")

	rep, err := Run(context.Background(), s, Deps{})
	require.NoError(t, err)
	assert.Len(t, rep.Winners, 2)
}

func TestRunCorruptCache(t *testing.T) {
	s := testSettings(t)
	s.SkipCacheUpdate = true
	s.Workers = 1
	seedCache(t, s, "0001")
	bad := filepath.Join(s.CacheDir, "0002.osm")
	require.NoError(t, os.WriteFile(bad, []byte(`<osm><node id="1"`), 0o644))
	st := newStore(t)

	_, err := Run(context.Background(), s, Deps{Store: st})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptCache), "%v", err)
	assert.NoFileExists(t, bad)
	assert.FileExists(t, filepath.Join(s.CacheDir, "0001.osm"))

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Kind: store.RunKindBatch})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Summary)
	assert.NotEmpty(t, runs[0].Summary.Error)
}

func TestRunFetchFailure(t *testing.T) {
	s := testSettings(t)
	maps := &fakeMaps{err: errors.New("overpass down")}

	_, err := Run(context.Background(), s, Deps{Maps: maps})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overpass down")
}

func TestRunWithoutFetcher(t *testing.T) {
	s := testSettings(t)
	_, err := Run(context.Background(), s, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no map fetcher")
}

func TestRunMissingInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"surs file", func(s *Settings) { s.SURsFile = filepath.Join(s.InputDir, "none.txt") }},
		{"factors file", func(s *Settings) { s.FactorsFile = filepath.Join(s.InputDir, "none.txt") }},
		{"mapping file", func(s *Settings) { s.MappingFile = filepath.Join(s.InputDir, "none.yaml") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(t)
			tt.mutate(&s)
			maps := &fakeMaps{}
			_, err := Run(context.Background(), s, Deps{Maps: maps})
			require.Error(t, err)
			assert.Zero(t, maps.calls.Load())
		})
	}
}

func TestRunCancelled(t *testing.T) {
	s := testSettings(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, s, Deps{Maps: &fakeMaps{}, Stdout: io.Discard})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)
}
