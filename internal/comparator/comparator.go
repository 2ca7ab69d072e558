// Package comparator measures how well computed polygons match the ground
// truth and summarizes the result of a batch.
package comparator

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/kml"
)

// File suffixes of truth and computed polygons.
const (
	SuffixTruth    = ".truth.kml"
	SuffixComputed = ".computed.kml"
)

// DefaultThreshold is the minimum ratio for a location to pass.
const DefaultThreshold = 0.7

// ErrCritical marks problems with the input of a comparison: unreadable
// folders or files and truth polygons without computed counterpart.
var ErrCritical = eris.New("comparator: critical error")

// Options configures Compare.
type Options struct {
	// TruthDir holds <id>.truth.kml files.
	TruthDir string
	// ComputedDir holds <id>.computed.kml files.
	ComputedDir string
	Threshold   float64
	Metric      Metric
	// RaiseOnCritical aborts the comparison on the first critical error
	// instead of logging a warning and skipping the location.
	RaiseOnCritical bool
	Logger          *zap.Logger
}

// Report is the outcome of a comparison.
type Report struct {
	Metric    Metric
	Threshold float64
	Passed    map[string]float64
	Failed    map[string]float64
	Erroneous map[string]error
	// Skipped lists truth ids that could not be compared, in ascending order.
	Skipped []string
	// Stats covers passed and failed ratios; nil when there are none.
	Stats *Stats
}

// Total returns the number of compared locations.
func (r *Report) Total() int {
	return len(r.Passed) + len(r.Failed) + len(r.Erroneous)
}

// PassFraction returns the share of compared locations that passed.
func (r *Report) PassFraction() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(len(r.Passed)) / float64(r.Total())
}

// Mean returns the average ratio, or 0 without statistics.
func (r *Report) Mean() float64 {
	if r.Stats == nil {
		return 0
	}
	return r.Stats.Mean
}

type criticalError struct{ err error }

func (e *criticalError) Error() string        { return "comparator: " + e.err.Error() }
func (e *criticalError) Unwrap() error        { return e.err }
func (e *criticalError) Is(target error) bool { return target == ErrCritical }

type comparison struct {
	opts   Options
	log    *zap.Logger
	report *Report
}

func (c *comparison) critical(err error) error {
	err = &criticalError{err: err}
	if c.opts.RaiseOnCritical {
		return err
	}
	c.log.Warn("comparator: skipping", zap.Error(err))
	return nil
}

// Compare loads every truth polygon of opts.TruthDir, pairs it with the
// computed polygon of the same id and buckets the ratio. Geometry failures go
// to Erroneous; input problems are critical.
func Compare(ctx context.Context, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	c := &comparison{
		opts: opts,
		log:  log,
		report: &Report{
			Metric:    opts.Metric,
			Threshold: opts.Threshold,
			Passed:    make(map[string]float64),
			Failed:    make(map[string]float64),
			Erroneous: make(map[string]error),
		},
	}

	truth, err := c.load(opts.TruthDir, SuffixTruth)
	if err != nil {
		return nil, err
	}
	computed, err := c.load(opts.ComputedDir, SuffixComputed)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(truth))
	for id := range truth {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	eng := newEngine()
	var values []float64
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "comparator: compare")
		}
		comp, ok := computed[id]
		if !ok {
			c.report.Skipped = append(c.report.Skipped, id)
			if err := c.critical(eris.Errorf("computed polygon not found for location %q", id)); err != nil {
				return nil, err
			}
			continue
		}
		r, err := eng.ratio(opts.Metric, truth[id], comp, opts.Threshold)
		if err != nil {
			c.report.Erroneous[id] = err
			log.Debug("comparator: erroneous", zap.String("location", id), zap.Error(err))
			continue
		}
		values = append(values, r)
		if r > opts.Threshold {
			c.report.Passed[id] = r
		} else {
			c.report.Failed[id] = r
		}
	}
	c.report.Stats = NewStats(values)
	return c.report, nil
}

// load reads the single polygon of every file in dir ending in suffix. Entries
// that fail are reported as critical.
func (c *comparison) load(dir, suffix string) (map[string]*geom.Polygon, error) {
	out := make(map[string]*geom.Polygon)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out, c.critical(eris.Wrapf(err, "read folder %s", dir))
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		id := strings.TrimSuffix(name, suffix)
		doc, err := kml.DecodeFile(filepath.Join(dir, name))
		if err == nil && len(doc.Ways) != 1 {
			err = eris.Errorf("expected 1 polygon, found %d", len(doc.Ways))
		}
		if err != nil {
			if cerr := c.critical(eris.Wrapf(err, "parse KML file %s", name)); cerr != nil {
				return nil, cerr
			}
			continue
		}
		for _, w := range doc.Ways {
			out[id] = w.Polygon
		}
	}
	return out, nil
}
