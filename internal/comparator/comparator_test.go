package comparator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sptp/internal/kml"
	"github.com/sells-group/sptp/internal/model"
)

func square(t *testing.T, minX, minY, maxX, maxY float64) *geom.Polygon {
	t.Helper()
	p, err := model.NewPolygon([][2]float64{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}})
	require.NoError(t, err)
	return p
}

func line(t *testing.T) *geom.Polygon {
	t.Helper()
	p, err := model.NewPolygon([][2]float64{{0, 0}, {1, 0}, {2, 0}})
	require.NoError(t, err)
	return p
}

func writePolygon(t *testing.T, dir, id, suffix string, p *geom.Polygon) {
	t.Helper()
	w := &model.Way{ID: id, Tags: map[string]string{}, Polygon: p}
	placemarks := []kml.Placemark{kml.FromWay(w)}
	if suffix == SuffixComputed {
		placemarks = append(placemarks, kml.FromNode(&model.Node{ID: id, Tags: map[string]string{}, Point: model.NewPoint(0, 0)}))
	}
	require.NoError(t, kml.WriteFile(filepath.Join(dir, id+suffix), placemarks))
}

func TestRatioDefault(t *testing.T) {
	a := square(t, 0, 0, 2, 2)
	tests := []struct {
		name string
		b    *geom.Polygon
		want float64
	}{
		{"identical", square(t, 0, 0, 2, 2), 1},
		{"half overlap", square(t, 1, 0, 3, 2), 0.5},
		{"disjoint", square(t, 5, 5, 6, 6), 0},
		{"contained", square(t, 0, 0, 1, 1), 2.0 / 5.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab, err := Ratio(MetricDefault, a, tt.b, DefaultThreshold)
			require.NoError(t, err)
			ba, err := Ratio(MetricDefault, tt.b, a, DefaultThreshold)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, ab, 1e-9)
			assert.InDelta(t, ab, ba, 1e-12, "symmetric")
		})
	}
}

func TestRatioUsesConvexHull(t *testing.T) {
	// An L shape has the full square as hull.
	l, err := model.NewPolygon([][2]float64{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}})
	require.NoError(t, err)
	r, err := Ratio(MetricDefault, square(t, 0, 0, 2, 2), l, DefaultThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-9)
}

func TestRatioTwoCircle(t *testing.T) {
	truth := square(t, 0, 0, 2, 2)

	// The truth square covers less than 70% of the outer circle, so the
	// ratio is the covered share of the inner circle.
	r, err := Ratio(MetricTwoCircle, truth, square(t, 0, 0, 2, 2), DefaultThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-9)

	r, err = Ratio(MetricTwoCircle, truth, square(t, 1, 0, 3, 2), DefaultThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r, 1e-9)

	// A hull covering the whole outer circle scores 0.
	r, err = Ratio(MetricTwoCircle, truth, square(t, -5, -5, 7, 7), DefaultThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, r, 0)
}

func TestRatioDegenerateIsError(t *testing.T) {
	_, err := Ratio(MetricDefault, line(t), line(t), DefaultThreshold)
	assert.Error(t, err)

	_, err = Ratio(Metric(7), square(t, 0, 0, 1, 1), square(t, 0, 0, 1, 1), DefaultThreshold)
	assert.Error(t, err)
}

func fixtureDirs(t *testing.T) (string, string) {
	t.Helper()
	truthDir, computedDir := t.TempDir(), t.TempDir()
	writePolygon(t, truthDir, "a", SuffixTruth, square(t, 0, 0, 2, 2))
	writePolygon(t, computedDir, "a", SuffixComputed, square(t, 0, 0, 2, 2))
	writePolygon(t, truthDir, "b", SuffixTruth, square(t, 0, 0, 2, 2))
	writePolygon(t, computedDir, "b", SuffixComputed, square(t, 1, 0, 3, 2))
	writePolygon(t, truthDir, "c", SuffixTruth, square(t, 0, 0, 1, 1))
	writePolygon(t, computedDir, "c", SuffixComputed, square(t, 4, 4, 5, 5))
	writePolygon(t, truthDir, "d", SuffixTruth, line(t))
	writePolygon(t, computedDir, "d", SuffixComputed, line(t))
	require.NoError(t, os.WriteFile(filepath.Join(truthDir, "notes.txt"), []byte("ignored"), 0o644))
	return truthDir, computedDir
}

func TestCompare(t *testing.T) {
	truthDir, computedDir := fixtureDirs(t)
	opts := Options{TruthDir: truthDir, ComputedDir: computedDir, Threshold: DefaultThreshold}

	rep, err := Compare(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"a": 1}, roundAll(rep.Passed))
	assert.Equal(t, map[string]float64{"b": 0.5, "c": 0}, roundAll(rep.Failed))
	require.Contains(t, rep.Erroneous, "d")
	assert.Equal(t, 4, rep.Total())
	assert.InDelta(t, 0.25, rep.PassFraction(), 1e-12)

	require.NotNil(t, rep.Stats)
	assert.Equal(t, 3, rep.Stats.Count)
	assert.InDelta(t, 0.5, rep.Mean(), 1e-9)
	assert.InDelta(t, 0.0, rep.Stats.Min, 1e-9)
	assert.InDelta(t, 1.0, rep.Stats.Max, 1e-9)

	again, err := Compare(context.Background(), opts)
	require.NoError(t, err)
	if diff := cmp.Diff(rep.Stats, again.Stats); diff != "" {
		t.Errorf("stats differ between runs (-first +second):\n%s", diff)
	}
	assert.Equal(t, rep.Passed, again.Passed)
	assert.Equal(t, rep.Failed, again.Failed)
}

func roundAll(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = float64(int(v*1e6+0.5)) / 1e6
	}
	return out
}

func TestCompareMissingComputed(t *testing.T) {
	truthDir, computedDir := fixtureDirs(t)
	writePolygon(t, truthDir, "e", SuffixTruth, square(t, 0, 0, 1, 1))

	rep, err := Compare(context.Background(), Options{TruthDir: truthDir, ComputedDir: computedDir, Threshold: DefaultThreshold})
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, rep.Skipped)
	assert.Equal(t, 4, rep.Total())

	_, err = Compare(context.Background(), Options{TruthDir: truthDir, ComputedDir: computedDir, Threshold: DefaultThreshold, RaiseOnCritical: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCritical))
	assert.Contains(t, err.Error(), `"e"`)
}

func TestCompareBadTruthFile(t *testing.T) {
	truthDir, computedDir := fixtureDirs(t)
	require.NoError(t, os.WriteFile(filepath.Join(truthDir, "x"+SuffixTruth), []byte("<kml><Placemark>"), 0o644))

	rep, err := Compare(context.Background(), Options{TruthDir: truthDir, ComputedDir: computedDir, Threshold: DefaultThreshold})
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total())

	_, err = Compare(context.Background(), Options{TruthDir: truthDir, ComputedDir: computedDir, RaiseOnCritical: true})
	assert.True(t, errors.Is(err, ErrCritical))
}

func TestCompareMissingFolder(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	rep, err := Compare(context.Background(), Options{TruthDir: missing, ComputedDir: missing})
	require.NoError(t, err)
	assert.Zero(t, rep.Total())
	assert.Nil(t, rep.Stats)

	_, err = Compare(context.Background(), Options{TruthDir: missing, ComputedDir: missing, RaiseOnCritical: true})
	assert.True(t, errors.Is(err, ErrCritical))
}

func TestNewStats(t *testing.T) {
	assert.Nil(t, NewStats(nil))

	s := NewStats([]float64{0.8, 0.2, 0.6, 0.4})
	require.NotNil(t, s)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 0.5, s.Mean, 1e-12)
	assert.InDelta(t, 0.05, s.Variance, 1e-12)
	assert.InDelta(t, 0.2236068, s.StdDev, 1e-6)
	assert.InDelta(t, 0.2, s.Min, 0)
	assert.InDelta(t, 0.4, s.Q1, 0)
	assert.InDelta(t, 0.6, s.Median, 0)
	assert.InDelta(t, 0.8, s.Q3, 0)
	assert.InDelta(t, 0.8, s.Max, 0)
}

func TestNewStatsQuartileIndex(t *testing.T) {
	tests := []struct {
		name           string
		values         []float64
		q1, median, q3 float64
	}{
		{"single", []float64{0.5}, 0.5, 0.5, 0.5},
		{"two", []float64{0.1, 0.9}, 0.1, 0.9, 0.9},
		{"three", []float64{0.3, 0.1, 0.2}, 0.2, 0.3, 0.3},
		{"five", []float64{0.1, 0.2, 0.3, 0.4, 0.5}, 0.2, 0.3, 0.5},
		{"six", []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, 0.3, 0.4, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStats(tt.values)
			require.NotNil(t, s)
			assert.InDelta(t, tt.q1, s.Q1, 0)
			assert.InDelta(t, tt.median, s.Median, 0)
			assert.InDelta(t, tt.q3, s.Q3, 0)
		})
	}
}

func TestPrint(t *testing.T) {
	rep := &Report{
		Passed:    map[string]float64{"a": 0.9, "b": 0.8},
		Failed:    map[string]float64{"c": 0.1},
		Erroneous: map[string]error{"d": errors.New("boom")},
		Stats:     NewStats([]float64{0.9, 0.8, 0.1}),
	}
	var buf bytes.Buffer
	require.NoError(t, rep.Print(&buf, true))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Results: 4 total, 2 correct (50.00%), 1 incorrect (25.00%), 1 failed to compare (25.00%)\n"))
	assert.Contains(t, out, "Average intersection ratio: 0.600\n")
	assert.Contains(t, out, "Maximum: 0.900\n\n")
	assert.Contains(t, out, "1 incorrect\n\tc -> 0.10000000\n2 correct\n\tb -> 0.80000000\n\ta -> 0.90000000\n1 failed to compare\n\td -> boom\n")

	buf.Reset()
	require.NoError(t, rep.Print(&buf, false))
	assert.NotContains(t, buf.String(), "correct\n")
}

func TestPrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Report{}).Print(&buf, false))
	assert.Contains(t, buf.String(), "Results: 0 total")
}
