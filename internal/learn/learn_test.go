package learn

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sptp/internal/batch"
	"github.com/sells-group/sptp/internal/classifier"
	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/factors"
	"github.com/sells-group/sptp/internal/kml"
	"github.com/sells-group/sptp/internal/model"
	"github.com/sells-group/sptp/internal/store"
)

type fakeMaps struct{ calls atomic.Int32 }

func (f *fakeMaps) FetchToFile(_ context.Context, _, _ float64, path string) (int64, error) {
	f.calls.Add(1)
	data, err := os.ReadFile(filepath.Join("testdata", "three_ways.osm"))
	if err != nil {
		return 0, err
	}
	return int64(len(data)), os.WriteFile(path, data, 0o644)
}

func writeTruth(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	poly, err := model.NewPolygon([][2]float64{{0.999, 0.999}, {1.001, 0.999}, {1.001, 1.001}, {0.999, 1.001}, {0.999, 0.999}})
	require.NoError(t, err)
	w := &model.Way{ID: "0001", Polygon: poly}
	require.NoError(t, kml.WriteFile(filepath.Join(dir, "0001"+comparator.SuffixTruth), []kml.Placemark{kml.FromWay(w)}))
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	root := t.TempDir()
	s := DefaultSettings()
	s.Params = Params{Population: 2, Children: 1, Rounds: 2, MutationRate: 0.5, MaxFactor: 5, Seed: 7}
	s.TrainDir = filepath.Join(root, "db")
	s.TrainSURs = filepath.Join("testdata", "surs.txt")
	s.TestDir = filepath.Join(root, "test")
	s.TestSURs = filepath.Join("testdata", "surs.txt")
	s.TempDir = filepath.Join(root, "tmp")
	s.FactorsFile = filepath.Join(root, "factors.txt")
	s.CacheDir = filepath.Join(root, "cache")
	s.LogDir = filepath.Join(root, "log")
	s.Workers = 1
	writeTruth(t, s.TrainDir)
	writeTruth(t, s.TestDir)
	return s
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRunPipeline(t *testing.T) {
	s := testSettings(t)
	maps := &fakeMaps{}
	st := newStore(t)
	var out bytes.Buffer

	rep, err := Run(context.Background(), s, Deps{Maps: maps, Store: st, Stdout: &out})
	require.NoError(t, err)

	// Only the first batch refreshes the cache.
	assert.Equal(t, int32(1), maps.calls.Load())

	require.Len(t, rep.Generations, 2)
	for _, gen := range rep.Generations {
		require.Len(t, gen, 2)
		for _, v := range gen {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	written, err := factors.Load(s.FactorsFile)
	require.NoError(t, err)
	assert.ElementsMatch(t, classifier.Names(), written.Names())
	assert.Equal(t, rep.Best.Factors.Map(), written.Map())

	require.NotNil(t, rep.Test)
	assert.Equal(t, 1, rep.Test.Total())
	assert.NoDirExists(t, s.TempDir)
	assert.FileExists(t, filepath.Join(s.LogDir, "learning.log"))
	assert.FileExists(t, filepath.Join(s.LogDir, "learning_batch.log"))

	assert.Contains(t, out.String(), "SPtP - Learning")
	assert.Contains(t, out.String(), "Round 1...[ ")
	assert.Contains(t, out.String(), "All rounds complete!")

	run, err := st.GetRun(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunKindLearn, run.Kind)
	assert.Equal(t, store.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary.Fitness)
	assert.InDelta(t, rep.TestFitness, *run.Summary.Fitness, 1e-9)

	gens, err := st.ListGenerations(context.Background(), rep.RunID)
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, 1, gens[0].Round)
	assert.Equal(t, rep.Generations[1], gens[1].Fitness)
}

func TestRunFakeEvaluator(t *testing.T) {
	s := testSettings(t)
	s.Params = Params{Population: 3, Children: 2, Rounds: 2, MutationRate: 0, MaxFactor: 2, Seed: 1}
	eval := &closeness{}

	rep, err := Run(context.Background(), s, Deps{Maps: &fakeMaps{}, Evaluator: eval})
	require.NoError(t, err)
	assert.Equal(t, 3+2*2, eval.calls)
	assert.Equal(t, rep.Generations[1][0], rep.Best.Score())
}

func TestRunVerificationFails(t *testing.T) {
	s := testSettings(t)
	require.NoError(t, os.RemoveAll(s.TestDir))
	st := newStore(t)

	_, err := Run(context.Background(), s, Deps{Maps: &fakeMaps{}, Store: st, Evaluator: &closeness{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can not complete comparison")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Kind: store.RunKindLearn})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
}

func TestRunInvalidSettings(t *testing.T) {
	s := testSettings(t)
	s.TempDir = ""
	_, err := Run(context.Background(), s, Deps{})
	require.Error(t, err)

	s = testSettings(t)
	s.Rounds = 0
	_, err = Run(context.Background(), s, Deps{})
	require.Error(t, err)
}

func TestPipelineEvaluatorCriticalError(t *testing.T) {
	s := testSettings(t)
	b := s.batchSettings()
	require.NoError(t, os.Remove(filepath.Join(s.TrainDir, "0001"+comparator.SuffixTruth)))
	// A truth file without a computed counterpart is critical.
	require.NoError(t, os.WriteFile(filepath.Join(s.TrainDir, "0002"+comparator.SuffixTruth), []byte(kmlFor(t)), 0o644))

	e := &PipelineEvaluator{Settings: b, Deps: batchDeps(&fakeMaps{})}
	v, err := e.Evaluate(context.Background(), factors.New(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, comparator.ErrCritical), "%v", err)
	assert.InDelta(t, Sentinel, v, 0)
}

func TestHeader(t *testing.T) {
	h := DefaultSettings().Header()
	assert.Contains(t, h, "SPtP - Learning")
	assert.Contains(t, h, "Rounds........................: 20\n")
	assert.Contains(t, h, "Mutation rate.................: 0.5\n")
	assert.Contains(t, h, "Temporary output path.........: ./learning/tmp/\n")
}

func kmlFor(t *testing.T) string {
	t.Helper()
	poly, err := model.NewPolygon([][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, kml.Encode(&buf, []kml.Placemark{kml.FromWay(&model.Way{ID: "0002", Polygon: poly})}))
	return buf.String()
}

func batchDeps(m *fakeMaps) batch.Deps {
	return batch.Deps{Maps: m}
}
