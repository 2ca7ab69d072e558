// Package learn searches classifier weight vectors with a simple
// evolutionary algorithm: breed, evaluate, keep the fittest.
package learn

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/sptp/internal/factors"
)

// Sentinel is the fitness of a genome whose evaluation failed. It is below
// every reachable fitness so such genomes sink but stay in the pool.
const Sentinel = -1.0

// Evaluator scores a weight vector.
type Evaluator interface {
	Evaluate(ctx context.Context, f *factors.Factors) (float64, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, f *factors.Factors) (float64, error)

// Evaluate calls fn.
func (fn EvaluatorFunc) Evaluate(ctx context.Context, f *factors.Factors) (float64, error) {
	return fn(ctx, f)
}

// Genome is one candidate weight vector.
type Genome struct {
	Factors *factors.Factors
	// Fitness is nil until the genome has been evaluated.
	Fitness *float64
}

// Scored reports whether the genome has a fitness.
func (g *Genome) Scored() bool { return g.Fitness != nil }

// Score returns the fitness, or Sentinel when unscored.
func (g *Genome) Score() float64 {
	if g.Fitness == nil {
		return Sentinel
	}
	return *g.Fitness
}

func (g *Genome) setFitness(v float64) {
	if g.Fitness == nil {
		g.Fitness = &v
	}
}

// RoundFunc observes the surviving population after each round.
type RoundFunc func(round int, population []*Genome) error

// Optimizer runs the search. It is not safe for concurrent use.
type Optimizer struct {
	params  Params
	genes   []string
	rng     *rand.Rand
	low     distuv.Uniform
	high    distuv.Uniform
	eval    Evaluator
	out     io.Writer
	log     *zap.Logger
	onRound RoundFunc
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithProgress writes per-round progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *Optimizer) { o.out = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) { o.log = l }
}

// WithRoundFunc registers fn to run after every round. An error aborts the
// search.
func WithRoundFunc(fn RoundFunc) Option {
	return func(o *Optimizer) { o.onRound = fn }
}

// NewOptimizer returns an optimizer over the given gene names.
func NewOptimizer(p Params, genes []string, eval Evaluator, opts ...Option) (*Optimizer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(genes) == 0 {
		return nil, eris.New("learn: no genes")
	}
	if eval == nil {
		return nil, eris.New("learn: no evaluator")
	}
	seed := p.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	o := &Optimizer{
		params: p,
		genes:  append([]string(nil), genes...),
		rng:    rand.New(src),
		low:    distuv.Uniform{Min: 0, Max: 2, Src: src},
		high:   distuv.Uniform{Min: 1, Max: p.MaxFactor, Src: src},
		eval:   eval,
		out:    io.Discard,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// draw returns a weight from the bimodal distribution: uniform on [0, 2)
// or uniform on [1, MaxFactor], each with probability one half.
func (o *Optimizer) draw() float64 {
	if o.rng.Float64() < 0.5 {
		return o.low.Rand()
	}
	return o.high.Rand()
}

// Initial returns Population genomes with every gene drawn at random.
func (o *Optimizer) Initial() []*Genome {
	pop := make([]*Genome, o.params.Population)
	for i := range pop {
		f := factors.New(nil)
		for _, name := range o.genes {
			f.Set(name, o.draw())
		}
		pop[i] = &Genome{Factors: f}
	}
	return pop
}

// breed picks both parents from pool independently, takes each gene from
// either with equal chance and mutates one gene with MutationRate.
func (o *Optimizer) breed(pool []*Genome) *Genome {
	a := pool[o.rng.IntN(len(pool))].Factors
	b := pool[o.rng.IntN(len(pool))].Factors
	child := factors.New(nil)
	for _, name := range o.genes {
		if o.rng.IntN(2) == 0 {
			child.Set(name, a.Get(name))
		} else {
			child.Set(name, b.Get(name))
		}
	}
	if o.rng.Float64() < o.params.MutationRate {
		child.Set(o.genes[o.rng.IntN(len(o.genes))], o.draw())
	}
	return &Genome{Factors: child}
}

// Round breeds Children genomes, evaluates every unscored one and returns
// the fittest Population genomes in descending order. Children may be
// picked as parents of later children in the same round. Failed
// evaluations get Sentinel; only a cancelled context stops the round.
func (o *Optimizer) Round(ctx context.Context, round int, pop []*Genome) ([]*Genome, error) {
	fmt.Fprintf(o.out, "Round %d", round)

	pool := append(make([]*Genome, 0, len(pop)+o.params.Children), pop...)
	for i := 0; i < o.params.Children; i++ {
		pool = append(pool, o.breed(pool))
	}

	for _, g := range pool {
		if err := ctx.Err(); err != nil {
			fmt.Fprintln(o.out)
			return nil, eris.Wrapf(err, "learn: round %d", round)
		}
		if g.Scored() {
			fmt.Fprint(o.out, ":")
			continue
		}
		v, err := o.eval.Evaluate(ctx, g.Factors)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(o.out)
				return nil, eris.Wrapf(ctx.Err(), "learn: round %d", round)
			}
			o.log.Warn("learn: evaluation failed", zap.Int("round", round), zap.Error(err))
			g.setFitness(Sentinel)
			fmt.Fprint(o.out, "!")
			continue
		}
		g.setFitness(v)
		fmt.Fprint(o.out, ".")
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score() > pool[j].Score() })

	fmt.Fprint(o.out, "[ ")
	for _, g := range pool {
		fmt.Fprintf(o.out, "%5.4f ", g.Score())
	}
	fmt.Fprintln(o.out, "] OK")
	o.log.Info("learn: round complete", zap.Int("round", round), zap.Float64s("fitness", Fitnesses(pool)))

	if len(pool) > o.params.Population {
		pool = pool[:o.params.Population]
	}
	return pool, nil
}

// Run performs Rounds rounds from a random initial population and returns
// the best genome and the final population.
func (o *Optimizer) Run(ctx context.Context) (*Genome, []*Genome, error) {
	pop := o.Initial()
	for r := 1; r <= o.params.Rounds; r++ {
		next, err := o.Round(ctx, r, pop)
		if err != nil {
			return nil, nil, err
		}
		pop = next
		if o.onRound != nil {
			if err := o.onRound(r, pop); err != nil {
				return nil, nil, eris.Wrapf(err, "learn: round %d", r)
			}
		}
	}
	fmt.Fprintln(o.out, "All rounds complete!")
	return pop[0], pop, nil
}

// Fitnesses lists the scores of pop in order.
func Fitnesses(pop []*Genome) []float64 {
	out := make([]float64, len(pop))
	for i, g := range pop {
		out[i] = g.Score()
	}
	return out
}
