// Package batch fans a rule file out across parallel workers, each running
// the classifier ensemble on its shard, and optionally compares the result
// with the ground truth.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sptp/internal/classifier"
	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/factors"
	"github.com/sells-group/sptp/internal/logging"
	"github.com/sells-group/sptp/internal/store"
	"github.com/sells-group/sptp/internal/surs"
)

// Deps are the collaborators of a batch run.
type Deps struct {
	// Maps refreshes the cache. It may be nil when SkipCacheUpdate is set.
	Maps MapFetcher
	// Store records the run when set.
	Store store.Store
	// Stdout receives the header, progress dots and the comparison summary.
	Stdout io.Writer
	// Logger is the operator logger; zap.L() when nil.
	Logger *zap.Logger
	// Now is the clock used for cache ages; time.Now when nil.
	Now func() time.Time
}

// Report is the outcome of a successful batch.
type Report struct {
	RunID        string             `json:"run_id,omitempty"`
	Locations    int                `json:"locations"`
	Distribution []int              `json:"distribution"`
	Winners      []Winner           `json:"winners"`
	Comparison   *comparator.Report `json:"-"`
	Elapsed      time.Duration      `json:"elapsed"`
}

// Summary condenses the report for the run store.
func (r *Report) Summary() *store.Summary {
	s := &store.Summary{Locations: r.Locations}
	if c := r.Comparison; c != nil {
		s.Passed, s.Failed, s.Erroneous = len(c.Passed), len(c.Failed), len(c.Erroneous)
		s.MeanRatio = c.Mean()
	}
	return s
}

// Run executes a batch. Every worker must succeed for the batch to succeed;
// the first failure cancels the remaining workers.
func Run(ctx context.Context, s Settings, deps Deps) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	out := deps.Stdout
	if out == nil || s.Quiet {
		out = io.Discard
	}
	base := deps.Logger
	if base == nil {
		base = zap.L()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	header := s.Header()
	fmt.Fprintln(out, header)

	if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "batch: create log folder %s", s.LogDir)
	}
	blog, err := logging.NewFileLogger(base, filepath.Join(s.LogDir, s.LogPrefix+"batch.log"))
	if err != nil {
		return nil, err
	}
	defer blog.Close() //nolint:errcheck
	log := blog.Logger
	log.Info("batch: settings", zap.String("header", header))

	var run *store.Run
	if deps.Store != nil {
		run, err = deps.Store.CreateRun(ctx, store.RunKindBatch, s)
		if err != nil {
			logging.Failure(log, "batch: could not record run", err)
			return nil, err
		}
	}

	rep, err := execute(ctx, s, deps, out, log, now)
	if err != nil {
		logging.Failure(log, "batch: failed", err)
		if run != nil {
			if ferr := deps.Store.FailRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
				log.Warn("batch: could not record failure", zap.Error(ferr))
			}
		}
		return nil, err
	}
	rep.Elapsed = time.Since(start)
	if run != nil {
		rep.RunID = run.ID
		if err := deps.Store.CompleteRun(ctx, run.ID, rep.Summary()); err != nil {
			logging.Failure(log, "batch: could not record result", err)
			return nil, err
		}
	}
	log.Info("batch: completed", zap.Duration("elapsed", rep.Elapsed))
	fmt.Fprintf(out, "\nElapsed time: %.2f ms\n", float64(rep.Elapsed)/float64(time.Millisecond))
	return rep, nil
}

func execute(ctx context.Context, s Settings, deps Deps, out io.Writer, log *zap.Logger, now func() time.Time) (*Report, error) {
	log.Info("batch: initializing")
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "batch: create cache folder %s", s.CacheDir)
	}
	if err := os.RemoveAll(s.OutputDir); err != nil {
		return nil, eris.Wrapf(err, "batch: remove output folder %s", s.OutputDir)
	}
	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "batch: create output folder %s", s.OutputDir)
	}

	weights := s.Factors
	if weights == nil {
		log.Info("batch: validating factors file", zap.String("path", s.FactorsFile))
		f, err := factors.Load(s.FactorsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: could not validate factors file %s", s.FactorsFile)
		}
		weights = f
	}

	var rules []classifier.Rule
	if s.MappingFile != "" {
		r, err := classifier.LoadRules(s.MappingFile)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: load mapping %s", s.MappingFile)
		}
		rules = r
	}

	log.Info("batch: parsing SURs file", zap.String("path", s.SURsFile))
	locs, err := surs.Load(s.SURsFile)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: could not parse SURs file %s", s.SURsFile)
	}

	shards := Partition(locs, s.workers())
	rep := &Report{Locations: len(locs), Distribution: Distribution(shards)}
	log.Info("batch: prepared parallelization", zap.Int("locations", len(locs)), zap.Ints("distribution", rep.Distribution))

	fmt.Fprintf(out, "Running %d workers", len(shards))
	prog := &progress{w: out}
	results := make([][]Winner, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			wlog, err := logging.NewFileLogger(log, workerLogPath(s, i))
			if err != nil {
				return err
			}
			defer wlog.Close() //nolint:errcheck

			w := &worker{
				id:       i,
				settings: s,
				locs:     shard,
				maps:     deps.Maps,
				factors:  weights.Clone(),
				rules:    rules,
				progress: prog,
				log:      wlog.Logger,
				now:      now,
			}
			winners, err := w.run(gctx)
			if err != nil {
				logging.Failure(wlog.Logger, "worker: failed", err)
				return err
			}
			results[i] = winners
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(out)
		return nil, eris.Wrap(err, "batch: worker failed")
	}
	fmt.Fprintln(out)

	for _, r := range results {
		rep.Winners = append(rep.Winners, r...)
	}
	sort.Slice(rep.Winners, func(i, j int) bool { return rep.Winners[i].LocationID < rep.Winners[j].LocationID })

	if s.Compare {
		log.Info("batch: running comparator")
		opts := s.comparatorOptions()
		opts.Logger = log
		cmp, err := comparator.Compare(ctx, opts)
		if err != nil {
			return nil, eris.Wrap(err, "batch: could not complete comparison")
		}
		rep.Comparison = cmp
		if err := cmp.Print(&zapWriter{log: log}, true); err != nil {
			return nil, err
		}
		fmt.Fprintln(out)
		if err := cmp.Print(out, false); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// zapWriter forwards printed report text into the batch log.
type zapWriter struct {
	log *zap.Logger
}

func (z *zapWriter) Write(p []byte) (int, error) {
	z.log.Info("batch: comparison", zap.String("report", string(p)))
	return len(p), nil
}
