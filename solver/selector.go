package solver

import (
	"math"
	"time"

	"go.uber.org/zap"

	"fleetroute/model"
)

// ProblemFeatures is the shape summary the selector scores against.
type ProblemFeatures struct {
	JobCount            int
	VehicleCount        int
	TimeWindowTightness float64 // 0 loose .. 1 tight
	CapacityUtilization float64 // total demand / total capacity, weight axis
	GeoDispersion       float64 // std dev of job coordinates, km
	HasTimeWindows      bool
	HasPickupDelivery   bool
	HasMultiDepot       bool
	HasBreaks           bool
	HasPriorities       bool
}

// Complexity buckets a problem for scoring. Tight windows promote a
// problem one bucket because feasibility, not size, dominates runtime.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityMedium      Complexity = "medium"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// Complexity classifies the feature set.
func (f ProblemFeatures) Complexity() Complexity {
	level := 0
	switch {
	case f.JobCount > 1000:
		level = 3
	case f.JobCount > 200:
		level = 2
	case f.JobCount > 50:
		level = 1
	}
	if f.TimeWindowTightness > 0.7 || f.HasPickupDelivery {
		level++
	}
	switch {
	case level <= 0:
		return ComplexitySimple
	case level == 1:
		return ComplexityMedium
	case level == 2:
		return ComplexityComplex
	default:
		return ComplexityVeryComplex
	}
}

// windowTightness normalization bounds: a one-hour window scores 1 (tight),
// an eight-hour window scores 0 (loose).
const (
	tightWindow = time.Hour
	looseWindow = 8 * time.Hour
)

// ExtractFeatures summarizes a problem for selection. It never fails: a
// degenerate problem yields zero features and the selector still picks a
// solver.
func ExtractFeatures(p *model.RoutingProblem) ProblemFeatures {
	f := ProblemFeatures{
		JobCount:          len(p.Jobs),
		VehicleCount:      len(p.Vehicles),
		HasPickupDelivery: p.HasPickupDelivery,
		HasMultiDepot:     p.HasMultiDepot,
	}

	var windowed int
	var tightSum float64
	var demand float64
	for _, j := range p.Jobs {
		if j.Priority != 0 {
			f.HasPriorities = true
		}
		demand += j.Demand.Weight
		w := jobWindow(j)
		if w == nil || w.Width() == 0 {
			continue
		}
		windowed++
		width := w.Width()
		switch {
		case width <= tightWindow:
			tightSum += 1
		case width >= looseWindow:
			// contributes 0
		default:
			tightSum += 1 - float64(width-tightWindow)/float64(looseWindow-tightWindow)
		}
	}
	if windowed > 0 {
		f.HasTimeWindows = true
		f.TimeWindowTightness = tightSum / float64(windowed)
	}
	f.HasTimeWindows = f.HasTimeWindows || p.HasTimeWindows

	var capacity float64
	for _, v := range p.Vehicles {
		capacity += v.Capacity.Weight
		if len(v.Breaks) > 0 {
			f.HasBreaks = true
		}
	}
	if capacity > 0 {
		f.CapacityUtilization = demand / capacity
	}

	f.GeoDispersion = coordDispersionKm(p)
	return f
}

// coordDispersionKm is the standard deviation of job positions from their
// centroid, in kilometers (1 degree ~ 111 km, good enough for a feature).
func coordDispersionKm(p *model.RoutingProblem) float64 {
	n := len(p.Jobs)
	if n < 2 {
		return 0
	}
	var cLat, cLng float64
	for _, j := range p.Jobs {
		cLat += j.Location.Lat
		cLng += j.Location.Lng
	}
	cLat /= float64(n)
	cLng /= float64(n)
	var sq float64
	for _, j := range p.Jobs {
		dLat := j.Location.Lat - cLat
		dLng := j.Location.Lng - cLng
		sq += dLat*dLat + dLng*dLng
	}
	return math.Sqrt(sq/float64(n)) * 111.0
}

// Selector picks the best-scoring feasible solver kind for a problem.
type Selector struct {
	log *zap.Logger
}

// NewSelector builds a selector. log may be nil.
func NewSelector(log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{log: log}
}

// Select scores the candidate kinds against the problem's features and
// returns the winner. Kinds whose capability profile cannot handle the
// problem shape are eliminated before scoring; if nothing survives,
// ErrNoFeasibleSolver is returned.
func (s *Selector) Select(p *model.RoutingProblem, candidates []Kind) (Kind, error) {
	f := ExtractFeatures(p)
	complexity := f.Complexity()

	var best Kind
	bestScore := math.Inf(-1)
	for _, k := range candidates {
		caps := Profile(k)
		if !feasible(caps, f) {
			continue
		}
		score := scoreKind(k, caps, f, complexity)
		s.log.Debug("solver scored",
			zap.String("solver", string(k)),
			zap.Float64("score", score),
			zap.String("complexity", string(complexity)))
		if score > bestScore {
			bestScore = score
			best = k
		}
	}
	if best == "" {
		return "", ErrNoFeasibleSolver
	}
	return best, nil
}

func feasible(caps Capabilities, f ProblemFeatures) bool {
	if caps.FeasibleJobs > 0 && f.JobCount > caps.FeasibleJobs {
		return false
	}
	if f.HasPickupDelivery && !caps.PickupDelivery {
		return false
	}
	if f.HasMultiDepot && !caps.MultiDepot {
		return false
	}
	if f.HasBreaks && !caps.Breaks {
		return false
	}
	return true
}

// scoreKind blends size efficiency, expected quality, and speed, then
// adjusts for fit: the fast constructive solver loses ground as problems
// grow (its ceilings are unlimited, so the size term alone never touches
// it), constraint solving gains on tight windows, and the population
// search gains on very large instances.
func scoreKind(k Kind, caps Capabilities, f ProblemFeatures, c Complexity) float64 {
	score := sizeScore(caps, f.JobCount)
	score += caps.QualityFactor * 30

	speed := 30.0
	if caps.SpeedFactor > 0 {
		speed = 30 / caps.SpeedFactor
	}
	if speed > 30 {
		speed = 30
	}
	score += speed

	if k == KindGreedy {
		switch c {
		case ComplexitySimple:
			score += 8
		case ComplexityComplex:
			score -= 25
		case ComplexityVeryComplex:
			score -= 40
		}
	}
	if k == KindConstraint && f.TimeWindowTightness > 0.7 {
		score += 10
	}
	if k == KindGenetic && f.JobCount > 1000 {
		score += 10
	}
	return score
}

// sizeScore is the size-efficiency term: the full 30 points while the job
// count sits at or under the solver's efficient ceiling, decaying
// quadratically toward zero as it approaches the feasible ceiling. The
// quadratic keeps a solver deep into its degraded range from outscoring
// one still inside its comfort zone. Unlimited solvers always take the
// full term.
func sizeScore(caps Capabilities, jobs int) float64 {
	if caps.EfficientJobs <= 0 || jobs <= caps.EfficientJobs {
		return 30
	}
	if caps.FeasibleJobs <= caps.EfficientJobs {
		return 0
	}
	over := float64(jobs-caps.EfficientJobs) / float64(caps.FeasibleJobs-caps.EfficientJobs)
	if over > 1 {
		over = 1
	}
	rem := 1 - over
	return 30 * rem * rem
}
