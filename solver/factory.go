package solver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetroute/metrics"
	"fleetroute/model"
)

// Constructor builds a fresh solver instance. Registered per kind so the
// factory can instantiate lazily, once per solve.
type Constructor func() RouteSolver

// Registry maps kinds to constructors, preserving registration order for
// the fallback chain.
type Registry struct {
	order []Kind
	ctors map[Kind]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: map[Kind]Constructor{}}
}

// Register adds or replaces the constructor for a kind.
func (r *Registry) Register(k Kind, c Constructor) {
	if _, ok := r.ctors[k]; !ok {
		r.order = append(r.order, k)
	}
	r.ctors[k] = c
}

// Kinds lists the registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	return append([]Kind(nil), r.order...)
}

// New instantiates the solver for a kind, or nil if unregistered.
func (r *Registry) New(k Kind) RouteSolver {
	c, ok := r.ctors[k]
	if !ok {
		return nil
	}
	return c()
}

// FactoryOptions tune the fallback chain.
type FactoryOptions struct {
	// QualityThreshold is the minimum quality score at which a result is
	// accepted without trying the next solver. Default 0.9.
	QualityThreshold float64
	// ChainBudget caps total wall time across the chain; zero disables it.
	ChainBudget time.Duration
	// PreferSpeed biases auto-selection away from the slow solvers;
	// PreferQuality does the opposite. Both false uses plain scoring.
	PreferSpeed   bool
	PreferQuality bool
	Logger        *zap.Logger
}

func (o *FactoryOptions) defaults() {
	if o.QualityThreshold <= 0 {
		o.QualityThreshold = 0.9
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Factory resolves a solver kind for each problem and runs the fallback
// chain: the preferred solver first, then the remaining registered kinds,
// with greedy guaranteed last because it cannot fail on a valid problem.
type Factory struct {
	registry *Registry
	selector *Selector
	opts     FactoryOptions
}

// NewFactory builds a factory over a registry.
func NewFactory(registry *Registry, opts FactoryOptions) *Factory {
	opts.defaults()
	return &Factory{
		registry: registry,
		selector: NewSelector(opts.Logger),
		opts:     opts,
	}
}

// SolveWithFallback resolves preferred (KindAuto consults the selector)
// and walks the chain until a result meets the quality threshold or the
// chain is exhausted. The best result seen is returned even below the
// threshold; only a fully failed chain returns an error.
func (f *Factory) SolveWithFallback(ctx context.Context, p *model.RoutingProblem, preferred Kind) (*model.SolutionResult, error) {
	started := time.Now()
	if f.opts.ChainBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.ChainBudget)
		defer cancel()
	}

	chain := f.chain(p, preferred)
	if len(chain) == 0 {
		return nil, ErrNoFeasibleSolver
	}

	var best *model.SolutionResult
	var lastErr error
	attempts := 0
	for _, k := range chain {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		s := f.registry.New(k)
		if s == nil {
			continue
		}
		if !s.HealthCheck(ctx) {
			f.opts.Logger.Warn("skipping unhealthy solver", zap.String("solver", string(k)))
			continue
		}
		attempts++
		solveStart := time.Now()
		res, err := s.Solve(ctx, p)
		elapsed := time.Since(solveStart)
		if err != nil {
			metrics.SolveDuration.WithLabelValues(string(k), "error").Observe(elapsed.Seconds())
			lastErr = &ExecutionError{Solver: k, Err: err}
			f.opts.Logger.Warn("solver failed, falling back",
				zap.String("solver", string(k)), zap.Error(err))
			continue
		}
		metrics.SolveDuration.WithLabelValues(string(k), "ok").Observe(elapsed.Seconds())
		f.stamp(res, k, started)
		if best == nil || res.QualityScore > best.QualityScore {
			best = res
		}
		if res.QualityScore >= f.opts.QualityThreshold || k == KindGreedy {
			break
		}
		f.opts.Logger.Info("result below quality threshold, trying next solver",
			zap.String("solver", string(k)),
			zap.Float64("quality", res.QualityScore))
	}

	metrics.FallbackAttempts.Observe(float64(attempts))
	if best != nil {
		return best, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoFeasibleSolver
}

// chain orders the registered kinds: preferred first, then the rest in
// registration order, greedy always last.
func (f *Factory) chain(p *model.RoutingProblem, preferred Kind) []Kind {
	kinds := f.registry.Kinds()
	if preferred == "" || preferred == KindAuto {
		sel, err := f.selector.Select(p, f.candidateKinds(kinds))
		if err != nil {
			// A shape nothing claims to handle still gets the guaranteed
			// fallback if it is registered.
			if f.registry.New(KindGreedy) == nil {
				return nil
			}
			f.opts.Logger.Warn("selector found no feasible solver, using greedy", zap.Error(err))
			sel = KindGreedy
		}
		preferred = sel
	}

	out := make([]Kind, 0, len(kinds))
	if _, ok := f.registry.ctors[preferred]; ok {
		out = append(out, preferred)
	}
	for _, k := range kinds {
		if k != preferred && k != KindGreedy {
			out = append(out, k)
		}
	}
	if preferred != KindGreedy {
		if _, ok := f.registry.ctors[KindGreedy]; ok {
			out = append(out, KindGreedy)
		}
	}
	return out
}

// candidateKinds applies the speed/quality preference before selection.
func (f *Factory) candidateKinds(kinds []Kind) []Kind {
	if !f.opts.PreferSpeed && !f.opts.PreferQuality {
		return kinds
	}
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		caps := Profile(k)
		if f.opts.PreferSpeed && caps.SpeedFactor > 1.0 {
			continue
		}
		if f.opts.PreferQuality && caps.QualityFactor < 0.9 {
			continue
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return kinds
	}
	return out
}

func (f *Factory) stamp(res *model.SolutionResult, k Kind, started time.Time) {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	res.SolverUsed = string(k)
	res.ComputationMS = time.Since(started).Milliseconds()
}
