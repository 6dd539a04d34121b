// Package fleetroute is a vehicle-routing optimization engine: it assigns
// jobs with demands, service times and time windows to a fleet of
// capacity-constrained vehicles and sequences each vehicle's stops.
//
// The packages compose bottom-up — geo (haversine primitives), model
// (problem/solution types), matrix (batched OSRM tables with a Redis
// fingerprint cache), solver (greedy, genetic, external adapters, selector
// and fallback chain) — and this package wires them from a config.Config:
//
//	cfg, _ := config.Load("fleetroute.yaml")
//	eng := fleetroute.New(cfg, logger)
//	res, err := eng.Solve(ctx, problem)
package fleetroute

import (
	"context"

	"go.uber.org/zap"

	"fleetroute/config"
	"fleetroute/logging"
	"fleetroute/matrix"
	"fleetroute/metrics"
	"fleetroute/model"
	"fleetroute/solver"
)

// Engine is the assembled optimization pipeline. Safe for concurrent use.
type Engine struct {
	factory  *solver.Factory
	provider *matrix.Provider
	log      *zap.Logger
}

// New assembles an engine from configuration. Missing pieces degrade
// rather than fail: no OSRM URL means haversine matrices, no Redis URL
// means no matrix cache, no VRP service URL means that solver is not
// registered. A nil log builds one from cfg.Log.
func New(cfg config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = logging.New(cfg.Log.Level, cfg.Log.Format)
	}
	metrics.RegisterDefault()

	var source matrix.TableSource
	if cfg.Matrix.OSRMURL != "" {
		source = matrix.NewOSRMSource(cfg.Matrix.OSRMURL, matrix.OSRMOptions{
			RequestsPerSec: cfg.Matrix.RateLimit,
			Logger:         log.Named("osrm"),
		})
	}
	var cache matrix.KV
	if cfg.Matrix.RedisURL != "" {
		kv, err := matrix.NewRedisKV(cfg.Matrix.RedisURL)
		if err != nil {
			log.Warn("matrix cache disabled", zap.Error(err))
		} else {
			cache = kv
		}
	}
	provider := matrix.NewProvider(source, matrix.ProviderOptions{
		Cache:       cache,
		Logger:      log.Named("matrix"),
		BatchSize:   cfg.Matrix.BatchSize,
		MaxInFlight: cfg.Matrix.MaxInFlight,
		CacheTTL:    cfg.Matrix.CacheTTL.Std(),
	})

	reg := solver.NewRegistry()
	reg.Register(solver.KindGreedy, func() solver.RouteSolver {
		return solver.NewGreedy(provider, solver.GreedyOptions{
			Profile:        cfg.Matrix.Profile,
			Logger:         log.Named("greedy"),
			MinImprovement: cfg.Greedy.MinImprovement,
			MaxIterations:  cfg.Greedy.Max2OptIterations,
		})
	})
	reg.Register(solver.KindGenetic, func() solver.RouteSolver {
		return solver.NewGenetic(provider, solver.GeneticOptions{
			PopulationSize:       cfg.Genetic.PopulationSize,
			Generations:          cfg.Genetic.Generations,
			EarlyStopGenerations: cfg.Genetic.EarlyStopGenerations,
			CrossoverRate:        cfg.Genetic.CrossoverRate,
			MutationRate:         cfg.Genetic.MutationRate,
			EliteSize:            cfg.Genetic.EliteSize,
			Seed:                 cfg.Genetic.Seed,
			Profile:              cfg.Matrix.Profile,
			Logger:               log.Named("genetic"),
		})
	})
	if cfg.VRPService.URL != "" {
		reg.Register(solver.KindHTTPVRP, func() solver.RouteSolver {
			return solver.NewHTTPVRP(provider, solver.HTTPVRPOptions{
				BaseURL: cfg.VRPService.URL,
				APIKey:  cfg.VRPService.APIKey,
				Profile: cfg.Matrix.Profile,
				Logger:  log.Named("httpvrp"),
			})
		})
	}

	factory := solver.NewFactory(reg, solver.FactoryOptions{
		QualityThreshold: cfg.Factory.QualityThreshold,
		ChainBudget:      cfg.Factory.ChainBudget.Std(),
		PreferSpeed:      cfg.Factory.PreferSpeed,
		PreferQuality:    cfg.Factory.PreferQuality,
		Logger:           log.Named("factory"),
	})
	return &Engine{factory: factory, provider: provider, log: log}
}

// Solve runs auto-selection and the fallback chain over the problem.
func (e *Engine) Solve(ctx context.Context, p *model.RoutingProblem) (*model.SolutionResult, error) {
	return e.factory.SolveWithFallback(ctx, p, solver.KindAuto)
}

// SolveWith forces a specific solver kind as the chain's first candidate.
func (e *Engine) SolveWith(ctx context.Context, p *model.RoutingProblem, kind solver.Kind) (*model.SolutionResult, error) {
	return e.factory.SolveWithFallback(ctx, p, kind)
}

// Matrices exposes the engine's matrix provider for callers that need raw
// tables (ETA grids, clustering) without running a solve.
func (e *Engine) Matrices() *matrix.Provider { return e.provider }
