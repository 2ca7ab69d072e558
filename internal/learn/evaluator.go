package learn

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/batch"
	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/factors"
)

// Fitness condenses a comparison into the value the search maximizes. The
// default metric uses the mean ratio; the two-circle metric rewards the pass
// fraction and penalizes the mean ratio by a hundredth.
func Fitness(rep *comparator.Report) float64 {
	if rep.Metric == comparator.MetricTwoCircle {
		return rep.PassFraction() - rep.Mean()/100
	}
	return rep.Mean()
}

// PipelineEvaluator scores weights by running a batch over a fixed
// location set and comparing the output with its truth files. Critical
// comparison errors fail the evaluation.
type PipelineEvaluator struct {
	Settings batch.Settings
	Deps     batch.Deps
	Logger   *zap.Logger

	refreshed bool
}

// Evaluate implements Evaluator.
func (e *PipelineEvaluator) Evaluate(ctx context.Context, f *factors.Factors) (float64, error) {
	rep, err := e.Compare(ctx, f)
	if err != nil {
		return Sentinel, err
	}
	return Fitness(rep), nil
}

// Compare runs the batch with f and returns the comparison. After the first
// successful batch the cache is no longer forced to refresh.
func (e *PipelineEvaluator) Compare(ctx context.Context, f *factors.Factors) (*comparator.Report, error) {
	s := e.Settings
	s.Factors = f
	s.Compare = false
	s.Quiet = true
	if e.refreshed {
		s.ForceCacheUpdate = false
	}
	if _, err := batch.Run(ctx, s, e.Deps); err != nil {
		return nil, err
	}
	e.refreshed = true

	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return comparator.Compare(ctx, comparator.Options{
		TruthDir:        s.InputDir,
		ComputedDir:     s.OutputDir,
		Threshold:       s.Threshold,
		Metric:          s.Metric,
		RaiseOnCritical: true,
		Logger:          log,
	})
}
