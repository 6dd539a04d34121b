// Package solver contains the RouteSolver abstraction, the two built-in
// algorithms (greedy nearest-neighbor + 2-opt, and a genetic metaheuristic),
// the capability-based selector and the fallback-chain factory.
package solver

import (
	"context"

	"fleetroute/model"
)

// Kind identifies a solver implementation.
type Kind string

const (
	// KindAuto lets the selector pick from the registry.
	KindAuto Kind = "auto"
	// KindGreedy is the guaranteed fallback: nearest-neighbor + 2-opt.
	KindGreedy Kind = "greedy"
	// KindGenetic is the population metaheuristic for large problems.
	KindGenetic Kind = "genetic"
	// KindConstraint is an external constraint-programming adapter.
	KindConstraint Kind = "constraint"
	// KindHTTPVRP is an external HTTP VRP service adapter.
	KindHTTPVRP Kind = "httpvrp"
)

// RouteSolver is the capability interface every algorithm implements.
type RouteSolver interface {
	Kind() Kind
	// Solve assigns and sequences all jobs. Must not fail for a well-formed
	// problem unless the implementation has an external dependency.
	Solve(ctx context.Context, p *model.RoutingProblem) (*model.SolutionResult, error)
	// SolveTSP orders locations for a single tour starting at startIdx.
	// Every input index appears exactly once in the output.
	SolveTSP(ctx context.Context, locs []model.Location, startIdx int, returnToStart bool) ([]int, error)
	// HealthCheck reports whether the solver can currently take work.
	HealthCheck(ctx context.Context) bool
}

// Capabilities is a solver's declared profile, consulted by the selector.
type Capabilities struct {
	EfficientJobs  int // 0 = unlimited
	FeasibleJobs   int // 0 = unlimited; hard ceiling for the filter
	PickupDelivery bool
	MultiDepot     bool
	Breaks         bool
	SpeedFactor    float64 // relative runtime, lower is faster
	QualityFactor  float64 // expected solution quality, 0..1
}

// Profile returns the capability profile for a kind.
func Profile(k Kind) Capabilities {
	switch k {
	case KindGreedy:
		return Capabilities{PickupDelivery: true, MultiDepot: true, SpeedFactor: 0.1, QualityFactor: 0.85}
	case KindGenetic:
		return Capabilities{EfficientJobs: 1000, FeasibleJobs: 5000, PickupDelivery: true, MultiDepot: true, SpeedFactor: 5.0, QualityFactor: 0.92}
	case KindConstraint:
		return Capabilities{EfficientJobs: 300, FeasibleJobs: 2000, PickupDelivery: true, MultiDepot: true, Breaks: true, SpeedFactor: 3.0, QualityFactor: 0.98}
	case KindHTTPVRP:
		return Capabilities{EfficientJobs: 150, FeasibleJobs: 500, MultiDepot: true, Breaks: true, SpeedFactor: 1.0, QualityFactor: 0.97}
	}
	return Capabilities{}
}

// EstimateQuality is the default quality score: the fraction of jobs the
// solution assigned. Assignment completeness, not distance accuracy, drives
// acceptance in the fallback chain.
func EstimateQuality(res *model.SolutionResult) float64 {
	assigned := res.AssignedJobs()
	total := assigned + len(res.UnassignedJobs)
	if total == 0 {
		return 1
	}
	return float64(assigned) / float64(total)
}
