package solver

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetroute/geo"
	"fleetroute/model"
)

// GeneticOptions configure the metaheuristic. Zero values get defaults.
type GeneticOptions struct {
	PopulationSize       int     // default 100
	Generations          int     // default 500
	EarlyStopGenerations int     // default 50, stagnant generations before stopping
	TournamentSize       int     // default 5
	CrossoverRate        float64 // default 0.85
	MutationRate         float64 // default 0.15
	EliteSize            int     // default 10
	CapacityPenalty      float64 // cost per violation unit, default 10000
	Seed                 int64   // 0 means time-based
	Profile              string
	Logger               *zap.Logger
}

func (o *GeneticOptions) defaults() {
	if o.PopulationSize <= 0 {
		o.PopulationSize = 100
	}
	if o.Generations <= 0 {
		o.Generations = 500
	}
	if o.EarlyStopGenerations <= 0 {
		o.EarlyStopGenerations = 50
	}
	if o.TournamentSize <= 0 {
		o.TournamentSize = 5
	}
	if o.CrossoverRate <= 0 {
		o.CrossoverRate = 0.85
	}
	if o.MutationRate <= 0 {
		o.MutationRate = 0.15
	}
	if o.EliteSize <= 0 {
		o.EliteSize = 10
	}
	if o.CapacityPenalty <= 0 {
		o.CapacityPenalty = 10000
	}
	if o.Profile == "" {
		o.Profile = "driving"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Genetic is the population-based metaheuristic for large or complex
// problems. Chromosomes are permutations of job indices; routes are derived
// by a deterministic bin-packing decode, so capacity violations are
// penalized in fitness rather than rejected.
type Genetic struct {
	provider MatrixProvider
	opts     GeneticOptions
}

// NewGenetic builds a genetic solver. provider may be nil.
func NewGenetic(provider MatrixProvider, opts GeneticOptions) *Genetic {
	opts.defaults()
	return &Genetic{provider: provider, opts: opts}
}

func (g *Genetic) Kind() Kind { return KindGenetic }

// HealthCheck always succeeds: the genetic solver has no external dependency.
func (g *Genetic) HealthCheck(ctx context.Context) bool { return true }

func (g *Genetic) Solve(ctx context.Context, p *model.RoutingProblem) (*model.SolutionResult, error) {
	dur, dist, summary, err := problemMatrices(ctx, p, g.provider, g.opts.Profile)
	if err != nil {
		return nil, err
	}
	res := &model.SolutionResult{
		ID:             uuid.New().String(),
		SolverUsed:     string(KindGenetic),
		UnassignedJobs: []string{},
		Summary:        summary,
	}
	n := len(p.Jobs)
	if n == 0 {
		res.QualityScore = 1
		return res, nil
	}

	rng := g.rng()
	eval := newGeneticEval(p, dist, g.opts.CapacityPenalty)

	pop := make([][]int, g.opts.PopulationSize)
	for i := range pop {
		pop[i] = rng.Perm(n)
	}

	best := append([]int(nil), pop[0]...)
	bestFit := eval.fitness(best)
	stagnant := 0
	generations := 0

	for gen := 0; gen < g.opts.Generations; gen++ {
		generations = gen + 1
		fits := make([]float64, len(pop))
		for i, ind := range pop {
			fits[i] = eval.fitness(ind)
		}
		idx := make([]int, len(pop))
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return fits[idx[a]] > fits[idx[b]] })

		if fits[idx[0]] > bestFit {
			bestFit = fits[idx[0]]
			best = append(best[:0], pop[idx[0]]...)
			stagnant = 0
		} else {
			stagnant++
			if stagnant >= g.opts.EarlyStopGenerations {
				break
			}
		}

		next := make([][]int, 0, len(pop))
		elite := g.opts.EliteSize
		if elite > len(idx) {
			elite = len(idx)
		}
		for i := 0; i < elite; i++ {
			next = append(next, append([]int(nil), pop[idx[i]]...))
		}
		for len(next) < len(pop) {
			pa := tournament(pop, fits, g.opts.TournamentSize, rng)
			pb := tournament(pop, fits, g.opts.TournamentSize, rng)
			var c1, c2 []int
			if rng.Float64() < g.opts.CrossoverRate {
				c1 = orderCrossover(pa, pb, rng)
				c2 = orderCrossover(pb, pa, rng)
			} else {
				c1 = append([]int(nil), pa...)
				c2 = append([]int(nil), pb...)
			}
			if rng.Float64() < g.opts.MutationRate {
				mutate(c1, rng)
			}
			if rng.Float64() < g.opts.MutationRate {
				mutate(c2, rng)
			}
			next = append(next, c1)
			if len(next) < len(pop) {
				next = append(next, c2)
			}
		}
		pop = next
	}

	builder := newRouteBuilder(p, dur, dist)
	perVehicle := eval.decode(best)
	for vi, v := range p.Vehicles {
		if len(perVehicle[vi]) == 0 {
			continue
		}
		route := builder.build(v, perVehicle[vi])
		res.Routes = append(res.Routes, route)
		res.TotalDistanceM += route.TotalDistanceM
		res.TotalDurationSec += route.TotalDurationSec
	}
	if len(p.Vehicles) == 0 {
		for _, j := range p.Jobs {
			res.UnassignedJobs = append(res.UnassignedJobs, j.ID)
		}
	}
	res.QualityScore = EstimateQuality(res)
	res.Summary["generations"] = generations
	res.Summary["bestCost"] = -bestFit
	if z := countZeroDistanceLegs(res.Routes); z > 0 {
		res.Summary["zeroDistanceLegs"] = z
	}
	g.opts.Logger.Debug("genetic solve finished",
		zap.Int("generations", generations), zap.Float64("bestCost", -bestFit))
	return res, nil
}

func (g *Genetic) rng() *rand.Rand {
	seed := g.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// geneticEval scores chromosomes against the matrices once per Solve call.
type geneticEval struct {
	problem *model.RoutingProblem
	dist    [][]float64
	penalty float64
}

func newGeneticEval(p *model.RoutingProblem, dist [][]float64, penalty float64) *geneticEval {
	return &geneticEval{problem: p, dist: dist, penalty: penalty}
}

// decode splits a permutation across vehicles: each gene goes to the first
// vehicle with remaining capacity, else to the currently least-loaded one.
// The overflow is a deliberate violation the fitness penalizes, keeping the
// search able to explore and repair.
func (e *geneticEval) decode(perm []int) [][]int {
	nv := len(e.problem.Vehicles)
	out := make([][]int, nv)
	if nv == 0 {
		return out
	}
	loads := make([]model.Demand, nv)
	for _, ji := range perm {
		d := e.problem.Jobs[ji].Demand
		placed := -1
		for vi := 0; vi < nv; vi++ {
			if loads[vi].Add(d).Fits(e.problem.Vehicles[vi].Capacity) {
				placed = vi
				break
			}
		}
		if placed == -1 {
			placed = 0
			for vi := 1; vi < nv; vi++ {
				if loads[vi].Weight < loads[placed].Weight {
					placed = vi
				}
			}
		}
		loads[placed] = loads[placed].Add(d)
		out[placed] = append(out[placed], ji)
	}
	return out
}

// fitness is the negated cost: matrix distance between consecutive genes
// within each vehicle's sub-list, plus penalties for capacity overflow and
// sub-hour time windows (a tightness heuristic, not a full schedule check).
func (e *geneticEval) fitness(perm []int) float64 {
	perVehicle := e.decode(perm)
	cost := 0.0
	violations := 0.0
	for vi, order := range perVehicle {
		for i := 0; i < len(order)-1; i++ {
			cost += e.dist[order[i]+1][order[i+1]+1]
		}
		var load model.Demand
		for _, ji := range order {
			load = load.Add(e.problem.Jobs[ji].Demand)
		}
		limit := e.problem.Vehicles[vi].Capacity
		if limit.Weight > 0 && load.Weight > limit.Weight {
			violations += load.Weight - limit.Weight
		}
		if limit.Volume > 0 && load.Volume > limit.Volume {
			violations += load.Volume - limit.Volume
		}
	}
	for _, ji := range perm {
		if w := jobWindow(e.problem.Jobs[ji]); w != nil {
			if width := w.Width(); width > 0 && width < time.Hour {
				violations++
			}
		}
	}
	return -(cost + violations*e.penalty)
}

// tournament samples size individuals uniformly and returns the fittest.
func tournament(pop [][]int, fits []float64, size int, rng *rand.Rand) []int {
	best := rng.Intn(len(pop))
	for i := 1; i < size; i++ {
		c := rng.Intn(len(pop))
		if fits[c] > fits[best] {
			best = c
		}
	}
	return pop[best]
}

// orderCrossover (OX) copies a random contiguous segment from a into the
// child at the same positions, then fills the rest, in order, with b's
// genes not already present. The child is always a permutation of a's
// gene set.
func orderCrossover(a, b []int, rng *rand.Rand) []int {
	n := len(a)
	child := make([]int, n)
	for i := range child {
		child[i] = -1
	}
	lo := rng.Intn(n)
	hi := rng.Intn(n)
	if lo > hi {
		lo, hi = hi, lo
	}
	used := make(map[int]bool, hi-lo+1)
	for i := lo; i <= hi; i++ {
		child[i] = a[i]
		used[a[i]] = true
	}
	pos := 0
	for _, gene := range b {
		if used[gene] {
			continue
		}
		for child[pos] != -1 {
			pos++
		}
		child[pos] = gene
	}
	return child
}

// mutate applies exactly one operator: swap two positions, remove-and-
// reinsert one gene, or reverse a contiguous segment.
func mutate(perm []int, rng *rand.Rand) {
	n := len(perm)
	if n < 2 {
		return
	}
	switch rng.Intn(3) {
	case 0: // swap
		i, j := rng.Intn(n), rng.Intn(n)
		perm[i], perm[j] = perm[j], perm[i]
	case 1: // remove and reinsert
		i := rng.Intn(n)
		gene := perm[i]
		rest := append(append([]int(nil), perm[:i]...), perm[i+1:]...)
		j := rng.Intn(n)
		copy(perm, rest[:j])
		perm[j] = gene
		copy(perm[j+1:], rest[j:])
	case 2: // reverse segment
		i, j := rng.Intn(n), rng.Intn(n)
		if i > j {
			i, j = j, i
		}
		reverse(perm, i, j)
	}
}

// SolveTSP runs a compact GA over tour permutations anchored at startIdx.
func (g *Genetic) SolveTSP(ctx context.Context, locs []model.Location, startIdx int, returnToStart bool) ([]int, error) {
	n := len(locs)
	if n == 0 {
		return []int{}, nil
	}
	if startIdx < 0 || startIdx >= n {
		startIdx = 0
	}
	coords := make([]geo.Coordinate, n)
	for i, l := range locs {
		coords[i] = l.Coordinate()
	}
	var dist [][]float64
	if g.provider != nil {
		res, err := g.provider.Compute(ctx, coords, g.opts.Profile)
		if err != nil {
			return nil, err
		}
		dist = res.Distances
	} else {
		_, dist = geo.Matrix(coords, fallbackSpeedKph)
	}
	if n <= 2 {
		out := []int{startIdx}
		for i := 0; i < n; i++ {
			if i != startIdx {
				out = append(out, i)
			}
		}
		return out, nil
	}

	rng := g.rng()
	rest := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != startIdx {
			rest = append(rest, i)
		}
	}
	score := func(tail []int) float64 {
		tour := append([]int{startIdx}, tail...)
		return -tourLength(dist, tour, returnToStart)
	}

	popSize := 60
	pop := make([][]int, popSize)
	for i := range pop {
		p := append([]int(nil), rest...)
		rng.Shuffle(len(p), func(a, b int) { p[a], p[b] = p[b], p[a] })
		pop[i] = p
	}
	best := append([]int(nil), pop[0]...)
	bestFit := score(best)
	stagnant := 0
	for gen := 0; gen < 200 && stagnant < 30; gen++ {
		fits := make([]float64, popSize)
		for i, ind := range pop {
			fits[i] = score(ind)
		}
		improvedGen := false
		for i, f := range fits {
			if f > bestFit {
				bestFit = f
				best = append(best[:0], pop[i]...)
				improvedGen = true
			}
		}
		if improvedGen {
			stagnant = 0
		} else {
			stagnant++
		}
		next := [][]int{append([]int(nil), best...)}
		for len(next) < popSize {
			pa := tournament(pop, fits, g.opts.TournamentSize, rng)
			pb := tournament(pop, fits, g.opts.TournamentSize, rng)
			c := orderCrossover(pa, pb, rng)
			if rng.Float64() < g.opts.MutationRate {
				mutate(c, rng)
			}
			next = append(next, c)
		}
		pop = next
	}
	return append([]int{startIdx}, best...), nil
}
