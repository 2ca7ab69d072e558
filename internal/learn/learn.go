package learn

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/batch"
	"github.com/sells-group/sptp/internal/classifier"
	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/logging"
	"github.com/sells-group/sptp/internal/store"
)

// Deps are the collaborators of a learning run.
type Deps struct {
	Maps   batch.MapFetcher
	Store  store.Store
	Stdout io.Writer
	Logger *zap.Logger
	// Evaluator replaces the training pipeline when set.
	Evaluator Evaluator
}

// Report is the outcome of a learning run.
type Report struct {
	RunID       string
	Best        *Genome
	Generations [][]float64
	// Test is the comparison of the best weights on the verification set.
	Test        *comparator.Report
	TestFitness float64
	Elapsed     time.Duration
}

// Run searches weights on the training set, writes the best ones to
// FactorsFile, verifies them on the test set and removes TempDir.
func Run(ctx context.Context, s Settings, deps Deps) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	out := deps.Stdout
	if out == nil {
		out = io.Discard
	}
	base := deps.Logger
	if base == nil {
		base = zap.L()
	}

	header := s.Header()
	fmt.Fprintln(out, header)

	for _, dir := range []string{s.LogDir, s.CacheDir, s.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "learn: create folder %s", dir)
		}
	}
	llog, err := logging.NewFileLogger(base, filepath.Join(s.LogDir, "learning.log"))
	if err != nil {
		return nil, err
	}
	defer llog.Close() //nolint:errcheck
	log := llog.Logger
	log.Info("learn: settings", zap.String("header", header))

	var run *store.Run
	if deps.Store != nil {
		run, err = deps.Store.CreateRun(ctx, store.RunKindLearn, s)
		if err != nil {
			logging.Failure(log, "learn: could not record run", err)
			return nil, err
		}
	}

	rep, err := learn(ctx, s, deps, run, out, log)
	if err != nil {
		logging.Failure(log, "learn: failed", err)
		if run != nil {
			if ferr := deps.Store.FailRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
				log.Warn("learn: could not record failure", zap.Error(ferr))
			}
		}
		return nil, err
	}
	rep.Elapsed = time.Since(start)
	if run != nil {
		rep.RunID = run.ID
		if err := deps.Store.CompleteRun(ctx, run.ID, summary(rep)); err != nil {
			logging.Failure(log, "learn: could not record result", err)
			return nil, err
		}
	}
	log.Info("learn: completed", zap.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

func learn(ctx context.Context, s Settings, deps Deps, run *store.Run, out io.Writer, log *zap.Logger) (*Report, error) {
	eval := deps.Evaluator
	if eval == nil {
		eval = &PipelineEvaluator{
			Settings: s.batchSettings(),
			Deps:     batch.Deps{Maps: deps.Maps, Logger: log},
			Logger:   log,
		}
	}

	rep := &Report{}
	onRound := func(round int, pop []*Genome) error {
		fit := Fitnesses(pop)
		rep.Generations = append(rep.Generations, fit)
		if run == nil {
			return nil
		}
		return deps.Store.AddGeneration(ctx, store.Generation{
			RunID:   run.ID,
			Round:   round,
			Fitness: fit,
			Best:    pop[0].Factors.Map(),
		})
	}
	opt, err := NewOptimizer(s.Params, classifier.Names(), eval,
		WithProgress(out), WithLogger(log), WithRoundFunc(onRound))
	if err != nil {
		return nil, err
	}

	log.Info("learn: initializing factors", zap.Int("population", s.Population))
	best, _, err := opt.Run(ctx)
	if err != nil {
		return nil, err
	}
	rep.Best = best
	log.Info("learn: all rounds complete", zap.Float64("fitness", best.Score()), zap.Any("factors", best.Factors.Map()))

	if err := best.Factors.Write(s.FactorsFile); err != nil {
		return nil, err
	}

	test := s.batchSettings()
	test.InputDir = s.TestDir
	test.SURsFile = s.TestSURs
	test.ForceCacheUpdate = false
	verifier := &PipelineEvaluator{Settings: test, Deps: batch.Deps{Maps: deps.Maps, Logger: log}, Logger: log}
	cmp, err := verifier.Compare(ctx, best.Factors)
	if err != nil {
		fmt.Fprintln(out, "Comparison failed! See log file for more information.")
		return nil, eris.Wrap(err, "learn: can not complete comparison")
	}
	rep.Test = cmp
	rep.TestFitness = Fitness(cmp)
	if err := cmp.Print(out, false); err != nil {
		return nil, err
	}

	log.Info("learn: deleting temporary files", zap.String("path", s.TempDir))
	if err := os.RemoveAll(s.TempDir); err != nil {
		return nil, eris.Wrapf(err, "learn: can not delete temporary folder %s", s.TempDir)
	}
	return rep, nil
}

func summary(rep *Report) *store.Summary {
	sum := &store.Summary{Factors: rep.Best.Factors.Map()}
	fit := rep.TestFitness
	sum.Fitness = &fit
	if c := rep.Test; c != nil {
		sum.Locations = c.Total() + len(c.Skipped)
		sum.Passed, sum.Failed, sum.Erroneous = len(c.Passed), len(c.Failed), len(c.Erroneous)
		sum.MeanRatio = c.Mean()
	}
	return sum
}
