package solver

import (
	"context"
	"time"

	"fleetroute/geo"
	"fleetroute/matrix"
	"fleetroute/model"
)

// MatrixProvider is what solvers need from the matrix package. Accepting
// the interface keeps solvers testable without a network source.
type MatrixProvider interface {
	Compute(ctx context.Context, coords []geo.Coordinate, profile string) (*matrix.Result, error)
}

// fallbackSpeedKph converts distances to durations when only a distance
// matrix is supplied and for off-matrix legs (vehicle starts away from the
// depot anchor).
const fallbackSpeedKph = 50.0

// problemMatrices resolves duration/distance matrices for a problem:
// pre-supplied matrices win, then the provider, then plain haversine.
// The returned summary records which path was taken.
func problemMatrices(ctx context.Context, p *model.RoutingProblem, provider MatrixProvider, profile string) (dur, dist [][]float64, summary map[string]any, err error) {
	if err := p.Validate(); err != nil {
		return nil, nil, nil, err
	}
	summary = map[string]any{}

	if p.DistanceMatrix != nil {
		dist = p.DistanceMatrix
		dur = p.DurationMatrix
		if dur == nil {
			dur = durationsFromDistances(dist)
		}
		summary["matrixSource"] = "supplied"
		return dur, dist, summary, nil
	}

	coords := p.Coordinates()
	if provider != nil {
		res, err := provider.Compute(ctx, coords, profile)
		if err != nil {
			return nil, nil, nil, err
		}
		summary["matrixSource"] = res.Diagnostics.Source
		if res.Diagnostics.FailedBatches > 0 {
			summary["matrixFailedBatches"] = res.Diagnostics.FailedBatches
		}
		return res.Durations, res.Distances, summary, nil
	}

	dur, dist = geo.Matrix(coords, fallbackSpeedKph)
	summary["matrixSource"] = matrix.SourceHaversine
	return dur, dist, summary, nil
}

func durationsFromDistances(dist [][]float64) [][]float64 {
	speedMS := fallbackSpeedKph / 3.6
	out := make([][]float64, len(dist))
	for i, row := range dist {
		out[i] = make([]float64, len(row))
		for j, d := range row {
			out[i][j] = d / speedMS
		}
	}
	return out
}

// anchorTolerance decides whether a vehicle's start/end sits on the matrix
// anchor (depot, index 0). ~50m.
const anchorTolerance = 50.0

// routeBuilder turns an ordered job-index list into a scheduled Route.
// Matrix index convention: 0 is the depot anchor, job i maps to i+1.
type routeBuilder struct {
	problem *model.RoutingProblem
	dur     [][]float64
	dist    [][]float64
	anchor  geo.Coordinate
}

func newRouteBuilder(p *model.RoutingProblem, dur, dist [][]float64) *routeBuilder {
	return &routeBuilder{problem: p, dur: dur, dist: dist, anchor: p.Coordinates()[0]}
}

// matrixIdx returns the matrix index for a location, or -1 when the
// location is off-matrix (a vehicle start/end away from the anchor).
func (b *routeBuilder) matrixIdx(loc model.Location, jobIdx int) int {
	if jobIdx >= 0 {
		return jobIdx + 1
	}
	if geo.Haversine(loc.Coordinate(), b.anchor) <= anchorTolerance {
		return 0
	}
	return -1
}

// leg returns distance (m) and duration (s) between two stops, using the
// matrix where both ends are on it and haversine otherwise.
func (b *routeBuilder) leg(fromLoc model.Location, fromJob int, toLoc model.Location, toJob int) (float64, float64) {
	fi := b.matrixIdx(fromLoc, fromJob)
	ti := b.matrixIdx(toLoc, toJob)
	if fi >= 0 && ti >= 0 && fi < len(b.dist) && ti < len(b.dist) {
		return b.dist[fi][ti], b.dur[fi][ti]
	}
	d := geo.Haversine(fromLoc.Coordinate(), toLoc.Coordinate())
	return d, d / (fallbackSpeedKph / 3.6)
}

// endLocation supports the common "return to start" configuration where a
// vehicle has no explicit end location.
func endLocation(v model.VehicleConfig) model.Location {
	if v.End.ID == "" && v.End.Lat == 0 && v.End.Lng == 0 {
		return v.Start
	}
	return v.End
}

// build schedules the ordered jobs on a vehicle: drive, wait on window
// starts, serve, take fixed-window breaks when their window opens, return
// to the end location. Order entries index into problem.Jobs.
func (b *routeBuilder) build(v model.VehicleConfig, order []int) model.Route {
	startAt := v.WorkHours.Start
	if startAt.IsZero() {
		startAt = time.Now().Truncate(time.Minute)
	}

	route := model.Route{VehicleID: v.ID}
	route.Steps = append(route.Steps, model.RouteStep{
		Location: v.Start, Arrival: startAt, Departure: startAt, Kind: model.StepStart,
	})

	now := startAt
	cur := v.Start
	curJob := -1
	var load model.Demand
	pendingBreaks := append([]model.Break(nil), v.Breaks...)

	for _, ji := range order {
		job := b.problem.Jobs[ji]

		// Fixed-window breaks are taken as soon as their window opens.
		pendingBreaks, now = b.takeDueBreaks(&route, pendingBreaks, cur, load, now)

		dm, ds := b.leg(cur, curJob, job.Location, ji)
		arrival := now.Add(time.Duration(ds * float64(time.Second)))
		departure := arrival
		if w := jobWindow(job); w != nil && !w.Start.IsZero() && arrival.Before(w.Start) {
			departure = w.Start // wait for the window to open
		}
		serviceEnd := departure.Add(time.Duration(job.Location.ServiceSec) * time.Second)
		load = load.Add(job.Demand)

		route.Steps = append(route.Steps, model.RouteStep{
			JobID:       job.ID,
			Location:    job.Location,
			Arrival:     arrival,
			Departure:   serviceEnd,
			DistanceM:   dm,
			DurationSec: ds,
			Load:        load,
			Kind:        model.StepJob,
		})
		route.TotalDistanceM += dm
		now = serviceEnd
		cur = job.Location
		curJob = ji
	}

	// Breaks whose window opened during the last service or the way home
	// still belong on the route.
	_, now = b.takeDueBreaks(&route, pendingBreaks, cur, load, now)

	end := endLocation(v)
	dm, ds := b.leg(cur, curJob, end, -1)
	arrival := now.Add(time.Duration(ds * float64(time.Second)))
	route.Steps = append(route.Steps, model.RouteStep{
		Location: end, Arrival: arrival, Departure: arrival,
		DistanceM: dm, DurationSec: ds, Load: load, Kind: model.StepEnd,
	})
	route.TotalDistanceM += dm
	route.TotalDurationSec = arrival.Sub(startAt).Seconds()
	route.TotalLoad = load
	return route
}

func (b *routeBuilder) takeDueBreaks(route *model.Route, pending []model.Break, cur model.Location, load model.Demand, now time.Time) ([]model.Break, time.Time) {
	remaining := pending[:0]
	for _, br := range pending {
		if br.Window == nil || br.Window.Start.IsZero() || now.Before(br.Window.Start) {
			remaining = append(remaining, br)
			continue
		}
		end := now.Add(time.Duration(br.DurationSec) * time.Second)
		route.Steps = append(route.Steps, model.RouteStep{
			Location: cur, Arrival: now, Departure: end, Load: load, Kind: model.StepBreak,
		})
		now = end
	}
	return remaining, now
}

// applyDueBreaks mirrors takeDueBreaks on a bare timeline, for feasibility
// checks that must see the same clock the schedule builder will produce.
func applyDueBreaks(pending []model.Break, now time.Time) ([]model.Break, time.Time) {
	remaining := pending[:0]
	for _, br := range pending {
		if br.Window == nil || br.Window.Start.IsZero() || now.Before(br.Window.Start) {
			remaining = append(remaining, br)
			continue
		}
		now = now.Add(time.Duration(br.DurationSec) * time.Second)
	}
	return remaining, now
}

// countZeroDistanceLegs flags legs of zero distance between distinct
// points, the symptom of a zero-filled matrix slice bleeding into a route.
func countZeroDistanceLegs(routes []model.Route) int {
	n := 0
	for _, r := range routes {
		for i := 1; i < len(r.Steps); i++ {
			s := r.Steps[i]
			if s.Kind == model.StepBreak {
				continue
			}
			prev := r.Steps[i-1].Location
			if s.DistanceM == 0 && (prev.Lat != s.Location.Lat || prev.Lng != s.Location.Lng) {
				n++
			}
		}
	}
	return n
}

// jobWindow prefers the job-level window, falling back to the location's.
func jobWindow(j model.Job) *model.TimeWindow {
	if j.Window != nil {
		return j.Window
	}
	return j.Location.Window
}
