// Package model defines the problem and solution value objects every solver
// consumes and produces. All types are built per optimization request and
// discarded afterwards; none hold mutable shared state.
package model

import (
	"time"

	"fleetroute/geo"
)

// TimeWindow is a half-open [Start, End) interval in absolute time.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Width returns the window length, or zero for an unset/inverted window.
func (w TimeWindow) Width() time.Duration {
	if w.Start.IsZero() || w.End.IsZero() || w.End.Before(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Location is an immutable stop description.
type Location struct {
	ID         string      `json:"id"`
	Lat        float64     `json:"lat"`
	Lng        float64     `json:"lng"`
	ServiceSec int         `json:"serviceTimeSec,omitempty"`
	Window     *TimeWindow `json:"timeWindow,omitempty"`
	// Capability flags; informational for callers, ignored by the solvers.
	HasLoadingDock      bool `json:"hasLoadingDock,omitempty"`
	AppointmentRequired bool `json:"appointmentRequired,omitempty"`
}

// Coordinate returns the location as a geo point.
func (l Location) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: l.Lat, Lng: l.Lng}
}

// Demand is the weight/volume a job adds to a vehicle's load.
type Demand struct {
	Weight float64 `json:"weightKg,omitempty"`
	Volume float64 `json:"volumeM3,omitempty"`
}

// Add returns d + o.
func (d Demand) Add(o Demand) Demand {
	return Demand{Weight: d.Weight + o.Weight, Volume: d.Volume + o.Volume}
}

// Fits reports whether d fits within capacity cap. A zero capacity axis
// means unconstrained on that axis.
func (d Demand) Fits(cap Demand) bool {
	if cap.Weight > 0 && d.Weight > cap.Weight {
		return false
	}
	if cap.Volume > 0 && d.Volume > cap.Volume {
		return false
	}
	return true
}

// Job is one unit of work to assign and sequence.
type Job struct {
	ID       string      `json:"id"`
	Location Location    `json:"location"`
	Demand   Demand      `json:"demand"`
	Priority int         `json:"priority,omitempty"`
	Window   *TimeWindow `json:"timeWindow,omitempty"`
}

// PriorityInputs are the domain signals a caller can fold into Job.Priority.
// Solvers treat the resulting integer as opaque.
type PriorityInputs struct {
	StockLevel float64 // 0..1, low stock raises priority
	DebtAmount float64 // outstanding balance, any currency unit
	Promo      bool
	ChurnRisk  float64 // 0..1
}

// ScorePriority collapses domain signals into a single priority integer.
// Higher means more important.
func ScorePriority(in PriorityInputs) int {
	score := 0.0
	if in.StockLevel >= 0 && in.StockLevel <= 1 {
		score += (1 - in.StockLevel) * 40
	}
	if in.DebtAmount > 0 {
		score += 20
	}
	if in.Promo {
		score += 15
	}
	if in.ChurnRisk >= 0 && in.ChurnRisk <= 1 {
		score += in.ChurnRisk * 25
	}
	return int(score)
}

// Break is a scheduled pause in a vehicle's day.
type Break struct {
	ID          string      `json:"id"`
	Window      *TimeWindow `json:"window,omitempty"` // optional fixed window
	DurationSec int         `json:"durationSec"`
}

// VehicleConfig describes one vehicle or field agent.
type VehicleConfig struct {
	ID        string     `json:"id"`
	Capacity  Demand     `json:"capacity"`
	Start     Location   `json:"start"`
	End       Location   `json:"end"` // may differ from Start
	WorkHours TimeWindow `json:"workHours"`
	Breaks    []Break    `json:"breaks,omitempty"`
	// Objective-function inputs, not constraints.
	CostPerKm   float64 `json:"costPerKm,omitempty"`
	CostPerHour float64 `json:"costPerHour,omitempty"`
	FixedCost   float64 `json:"fixedCost,omitempty"`
}

// RoutingProblem is the aggregate every solver consumes.
type RoutingProblem struct {
	Jobs     []Job           `json:"jobs"`
	Vehicles []VehicleConfig `json:"vehicles"`
	Depot    *Location       `json:"depot,omitempty"`

	// Optional pre-supplied matrices. When set they must be square with
	// dimension 1+len(Jobs) (depot at index 0); see Validate.
	DurationMatrix [][]float64 `json:"durationMatrix,omitempty"`
	DistanceMatrix [][]float64 `json:"distanceMatrix,omitempty"`

	// Shape flags used only for solver selection; the core types do not
	// enforce them.
	HasTimeWindows    bool `json:"hasTimeWindows,omitempty"`
	HasPickupDelivery bool `json:"hasPickupDelivery,omitempty"`
	HasMultiDepot     bool `json:"hasMultiDepot,omitempty"`
}

// Coordinates returns the matrix coordinate set: depot at index 0, then one
// entry per job in order. Without an explicit depot the first vehicle's
// start location is used; with no vehicles either, the first job doubles as
// the anchor.
func (p *RoutingProblem) Coordinates() []geo.Coordinate {
	out := make([]geo.Coordinate, 0, 1+len(p.Jobs))
	switch {
	case p.Depot != nil:
		out = append(out, p.Depot.Coordinate())
	case len(p.Vehicles) > 0:
		out = append(out, p.Vehicles[0].Start.Coordinate())
	case len(p.Jobs) > 0:
		out = append(out, p.Jobs[0].Location.Coordinate())
	default:
		out = append(out, geo.Coordinate{})
	}
	for _, j := range p.Jobs {
		out = append(out, j.Location.Coordinate())
	}
	return out
}

// StepKind tags a RouteStep.
type StepKind string

const (
	StepStart StepKind = "start"
	StepJob   StepKind = "job"
	StepBreak StepKind = "break"
	StepEnd   StepKind = "end"
)

// RouteStep is one stop in a solved route.
type RouteStep struct {
	JobID       string    `json:"jobId,omitempty"` // empty for start/break/end
	Location    Location  `json:"location"`
	Arrival     time.Time `json:"arrival"`
	Departure   time.Time `json:"departure"`
	DistanceM   float64   `json:"distanceM"`   // from previous step
	DurationSec float64   `json:"durationSec"` // from previous step
	Load        Demand    `json:"load"`        // cumulative after this step
	Kind        StepKind  `json:"kind"`
}

// Route is one vehicle's solved itinerary.
type Route struct {
	VehicleID        string      `json:"vehicleId"`
	Steps            []RouteStep `json:"steps"`
	TotalDistanceM   float64     `json:"totalDistanceM"`
	TotalDurationSec float64     `json:"totalDurationSec"`
	TotalLoad        Demand      `json:"totalLoad"`
	Geometry         string      `json:"geometry,omitempty"` // opaque encoded path
}

// AssignedJobs counts job steps on the route.
func (r Route) AssignedJobs() int {
	n := 0
	for _, s := range r.Steps {
		if s.Kind == StepJob {
			n++
		}
	}
	return n
}

// SolutionResult is what every solver returns.
type SolutionResult struct {
	ID               string         `json:"id"`
	Routes           []Route        `json:"routes"`
	UnassignedJobs   []string       `json:"unassignedJobs"`
	TotalDistanceM   float64        `json:"totalDistanceM"`
	TotalDurationSec float64        `json:"totalDurationSec"`
	SolverUsed       string         `json:"solverUsed,omitempty"`
	QualityScore     float64        `json:"qualityScore"` // 0..1
	ComputationMS    int64          `json:"computationTimeMs"`
	Summary          map[string]any `json:"summary,omitempty"`
}

// AssignedJobs counts job steps across all routes.
func (s *SolutionResult) AssignedJobs() int {
	n := 0
	for _, r := range s.Routes {
		n += r.AssignedJobs()
	}
	return n
}
