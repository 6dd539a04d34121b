package solver

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetroute/geo"
	"fleetroute/model"
)

// Greedy is the guaranteed fallback solver: per-vehicle nearest-neighbor
// construction followed by a 2-opt pass. No external dependency, never
// fails for a well-formed problem.
type Greedy struct {
	provider MatrixProvider
	profile  string
	log      *zap.Logger

	minImprove float64
	maxIter    int
}

// GreedyOptions configure the solver. Zero values get defaults.
type GreedyOptions struct {
	Profile        string
	Logger         *zap.Logger
	MinImprovement float64
	MaxIterations  int
}

// NewGreedy builds a greedy solver. provider may be nil; solving then uses
// pre-supplied matrices or the haversine fallback.
func NewGreedy(provider MatrixProvider, opts GreedyOptions) *Greedy {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Profile == "" {
		opts.Profile = "driving"
	}
	if opts.MinImprovement <= 0 {
		opts.MinImprovement = DefaultMinImprovement
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMax2OptIterations
	}
	return &Greedy{
		provider:   provider,
		profile:    opts.Profile,
		log:        opts.Logger,
		minImprove: opts.MinImprovement,
		maxIter:    opts.MaxIterations,
	}
}

func (g *Greedy) Kind() Kind { return KindGreedy }

// HealthCheck always succeeds: the greedy solver has no external dependency.
func (g *Greedy) HealthCheck(ctx context.Context) bool { return true }

func (g *Greedy) Solve(ctx context.Context, p *model.RoutingProblem) (*model.SolutionResult, error) {
	dur, dist, summary, err := problemMatrices(ctx, p, g.provider, g.profile)
	if err != nil {
		return nil, err
	}
	res := &model.SolutionResult{
		ID:             uuid.New().String(),
		SolverUsed:     string(KindGreedy),
		UnassignedJobs: []string{},
		Summary:        summary,
	}
	if len(p.Jobs) == 0 {
		res.QualityScore = 1
		return res, nil
	}

	builder := newRouteBuilder(p, dur, dist)
	assigned := make([]bool, len(p.Jobs))

	for _, v := range p.Vehicles {
		order := g.construct(builder, v, assigned)
		if len(order) == 0 {
			continue
		}
		if improved := g.improveOrder(builder, v, dist, order); improved != nil {
			order = improved
		}
		route := builder.build(v, order)
		res.Routes = append(res.Routes, route)
		res.TotalDistanceM += route.TotalDistanceM
		res.TotalDurationSec += route.TotalDurationSec
	}
	for i, ok := range assigned {
		if !ok {
			res.UnassignedJobs = append(res.UnassignedJobs, p.Jobs[i].ID)
		}
	}
	res.QualityScore = EstimateQuality(res)
	if z := countZeroDistanceLegs(res.Routes); z > 0 {
		res.Summary["zeroDistanceLegs"] = z
	}
	return res, nil
}

// construct appends the nearest unassigned, feasible job until none
// remains. Ties break by encounter order (strict less-than keeps the first
// candidate seen).
func (g *Greedy) construct(b *routeBuilder, v model.VehicleConfig, assigned []bool) []int {
	now := v.WorkHours.Start
	if now.IsZero() {
		now = time.Now().Truncate(time.Minute)
	}
	cur := v.Start
	curJob := -1
	var load model.Demand
	var order []int
	pending := append([]model.Break(nil), v.Breaks...)

	for {
		// The schedule builder will insert due fixed-window breaks before
		// each leg; feasibility has to see that same clock or a late break
		// would push service past the windows checked here.
		pending, now = applyDueBreaks(pending, now)

		best := -1
		bestDur := math.MaxFloat64
		var bestEnd time.Time
		for ji := range b.problem.Jobs {
			if assigned[ji] {
				continue
			}
			job := b.problem.Jobs[ji]
			if !load.Add(job.Demand).Fits(v.Capacity) {
				continue
			}
			_, ds := b.leg(cur, curJob, job.Location, ji)
			arrival := now.Add(time.Duration(ds * float64(time.Second)))
			serviceStart := arrival
			if w := jobWindow(job); w != nil {
				if !w.End.IsZero() && arrival.After(w.End) {
					continue
				}
				if !w.Start.IsZero() && arrival.Before(w.Start) {
					serviceStart = w.Start
				}
			}
			serviceEnd := serviceStart.Add(time.Duration(job.Location.ServiceSec) * time.Second)
			if !v.WorkHours.End.IsZero() && serviceEnd.After(v.WorkHours.End) {
				continue
			}
			if ds < bestDur {
				bestDur = ds
				best = ji
				bestEnd = serviceEnd
			}
		}
		if best == -1 {
			return order
		}
		assigned[best] = true
		order = append(order, best)
		load = load.Add(b.problem.Jobs[best].Demand)
		now = bestEnd
		cur = b.problem.Jobs[best].Location
		curJob = best
	}
}

// improveOrder runs 2-opt on the job sequence and keeps the result only if
// the schedule stays feasible; capacity is order-independent so only time
// constraints need rechecking. Returns nil when no usable improvement.
func (g *Greedy) improveOrder(b *routeBuilder, v model.VehicleConfig, dist [][]float64, order []int) []int {
	if len(order) < 4 {
		return nil
	}
	// 2-opt works over matrix indices; translate and back.
	mIdx := make([]int, len(order))
	for i, ji := range order {
		mIdx[i] = ji + 1
	}
	improved := twoOptImprove(dist, mIdx, g.minImprove, g.maxIter)
	out := make([]int, len(improved))
	for i, mi := range improved {
		out[i] = mi - 1
	}
	if !g.orderFeasible(b, v, out) {
		return nil
	}
	return out
}

func (g *Greedy) orderFeasible(b *routeBuilder, v model.VehicleConfig, order []int) bool {
	now := v.WorkHours.Start
	if now.IsZero() {
		now = time.Now().Truncate(time.Minute)
	}
	cur := v.Start
	curJob := -1
	pending := append([]model.Break(nil), v.Breaks...)
	for _, ji := range order {
		pending, now = applyDueBreaks(pending, now)
		job := b.problem.Jobs[ji]
		_, ds := b.leg(cur, curJob, job.Location, ji)
		arrival := now.Add(time.Duration(ds * float64(time.Second)))
		serviceStart := arrival
		if w := jobWindow(job); w != nil {
			if !w.End.IsZero() && arrival.After(w.End) {
				return false
			}
			if !w.Start.IsZero() && arrival.Before(w.Start) {
				serviceStart = w.Start
			}
		}
		now = serviceStart.Add(time.Duration(job.Location.ServiceSec) * time.Second)
		if !v.WorkHours.End.IsZero() && now.After(v.WorkHours.End) {
			return false
		}
		cur = job.Location
		curJob = ji
	}
	return true
}

// SolveTSP orders locs as a single tour from startIdx: nearest-neighbor
// construction, then 2-opt.
func (g *Greedy) SolveTSP(ctx context.Context, locs []model.Location, startIdx int, returnToStart bool) ([]int, error) {
	n := len(locs)
	if n == 0 {
		return []int{}, nil
	}
	if startIdx < 0 || startIdx >= n {
		startIdx = 0
	}
	dist, err := g.tspDistances(ctx, locs)
	if err != nil {
		return nil, err
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)
	order = append(order, startIdx)
	visited[startIdx] = true
	cur := startIdx
	for len(order) < n {
		best := -1
		bestD := math.MaxFloat64
		for i := 0; i < n; i++ {
			if visited[i] {
				continue
			}
			if dist[cur][i] < bestD {
				bestD = dist[cur][i]
				best = i
			}
		}
		visited[best] = true
		order = append(order, best)
		cur = best
	}
	return twoOptImprove(dist, order, g.minImprove, g.maxIter), nil
}

func (g *Greedy) tspDistances(ctx context.Context, locs []model.Location) ([][]float64, error) {
	coords := make([]geo.Coordinate, len(locs))
	for i, l := range locs {
		coords[i] = l.Coordinate()
	}
	if g.provider != nil {
		res, err := g.provider.Compute(ctx, coords, g.profile)
		if err != nil {
			return nil, err
		}
		return res.Distances, nil
	}
	_, dist := geo.Matrix(coords, fallbackSpeedKph)
	return dist, nil
}
