package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/model"
)

func TestGreedySolveAssignsEverything(t *testing.T) {
	p := testProblem(8, 1, testVehicle("v1", 100), testVehicle("v2", 100))
	g := NewGreedy(nil, GreedyOptions{})

	res, err := g.Solve(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "greedy", res.SolverUsed)
	assert.NotEmpty(t, res.ID)
	assert.Empty(t, res.UnassignedJobs)
	assert.Equal(t, 1.0, res.QualityScore)
	assert.Greater(t, res.TotalDistanceM, 0.0)

	counts := jobIDsOnRoutes(res)
	assert.Len(t, counts, 8)
	for id, n := range counts {
		assert.Equal(t, 1, n, "job %s scheduled more than once", id)
	}
	for _, r := range res.Routes {
		require.NotEmpty(t, r.Steps)
		assert.Equal(t, model.StepStart, r.Steps[0].Kind)
		assert.Equal(t, model.StepEnd, r.Steps[len(r.Steps)-1].Kind)
	}
}

func TestGreedySolveSaturatesCapacity(t *testing.T) {
	p := testProblem(10, 1, testVehicle("v1", 3), testVehicle("v2", 3))
	g := NewGreedy(nil, GreedyOptions{})

	res, err := g.Solve(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 6, res.AssignedJobs())
	assert.Len(t, res.UnassignedJobs, 4)
	assert.InDelta(t, 0.6, res.QualityScore, 1e-9)

	// Cumulative load never exceeds capacity at any step.
	for _, r := range res.Routes {
		for _, s := range r.Steps {
			assert.LessOrEqual(t, s.Load.Weight, 3.0)
		}
		assert.LessOrEqual(t, r.TotalLoad.Weight, 3.0)
	}
}

func TestGreedySolveEmptyJobs(t *testing.T) {
	p := testProblem(0, 1, testVehicle("v1", 10))
	res, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, res.Routes)
	assert.Equal(t, 1.0, res.QualityScore)
}

func TestGreedySolveSkipsClosedWindows(t *testing.T) {
	p := testProblem(3, 1, testVehicle("v1", 100))
	closed := &model.TimeWindow{Start: testDay.Add(-3 * time.Hour), End: testDay.Add(-2 * time.Hour)}
	p.Jobs[1].Window = closed

	res, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, res.UnassignedJobs)
	assert.Equal(t, 2, res.AssignedJobs())
}

func TestGreedySolveWaitsForWindowStart(t *testing.T) {
	p := testProblem(1, 1, testVehicle("v1", 100))
	open := testDay.Add(2 * time.Hour)
	p.Jobs[0].Window = &model.TimeWindow{Start: open, End: open.Add(4 * time.Hour)}

	res, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, res.Routes, 1)

	var jobStep *model.RouteStep
	for i := range res.Routes[0].Steps {
		if res.Routes[0].Steps[i].Kind == model.StepJob {
			jobStep = &res.Routes[0].Steps[i]
		}
	}
	require.NotNil(t, jobStep)
	assert.True(t, jobStep.Arrival.Before(open))
	// Service starts at the window open, so departure = open + service time.
	assert.Equal(t, open.Add(300*time.Second), jobStep.Departure)
}

func TestGreedyWorkHoursAccountForBreaks(t *testing.T) {
	// A 30-minute break opens right at shift start and the shift is one
	// hour. Without the break the job (a few minutes of driving plus 30
	// minutes of service) fits; with it, service runs past the shift end,
	// so the job must stay unassigned rather than land on a route that
	// overruns the work hours once the break is scheduled.
	v := testVehicle("v1", 100)
	v.WorkHours.End = testDay.Add(time.Hour)
	v.Breaks = []model.Break{{
		ID:          "early",
		DurationSec: 1800,
		Window:      &model.TimeWindow{Start: testDay, End: testDay.Add(time.Hour)},
	}}
	p := testProblem(1, 1, v)
	p.Jobs[0].Location.ServiceSec = 1800

	res, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-0"}, res.UnassignedJobs)
	assert.Zero(t, res.AssignedJobs())

	// With a shift long enough for break plus job, it is assigned again.
	v.WorkHours.End = testDay.Add(3 * time.Hour)
	p2 := testProblem(1, 1, v)
	p2.Jobs[0].Location.ServiceSec = 1800
	res2, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p2)
	require.NoError(t, err)
	assert.Empty(t, res2.UnassignedJobs)
}

func TestGreedySolveUsesSuppliedMatrices(t *testing.T) {
	p := testProblem(2, 1, testVehicle("v1", 100))
	p.DistanceMatrix = [][]float64{
		{0, 1000, 2000},
		{1000, 0, 1500},
		{2000, 1500, 0},
	}

	res, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "supplied", res.Summary["matrixSource"])
	assert.Empty(t, res.UnassignedJobs)
}

func TestGreedySolveRejectsMalformedMatrix(t *testing.T) {
	p := testProblem(2, 1, testVehicle("v1", 100))
	p.DistanceMatrix = [][]float64{{0, 1}, {1, 0}} // wrong dimension

	_, err := NewGreedy(nil, GreedyOptions{}).Solve(context.Background(), p)
	assert.Error(t, err)
}

func TestGreedySolveTSP(t *testing.T) {
	locs := make([]model.Location, 5)
	for i := range locs {
		locs[i] = model.Location{ID: string(rune('a' + i)), Lat: 52.5, Lng: 13.3 + float64(i)*0.01}
	}
	g := NewGreedy(nil, GreedyOptions{})

	order, err := g.SolveTSP(context.Background(), locs, 0, false)
	require.NoError(t, err)
	assert.True(t, isPermutation(order, 5))
	// Points sit on a west-east line, so from index 0 the tour is sorted.
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	fromEnd, err := g.SolveTSP(context.Background(), locs, 4, false)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 1, 0}, fromEnd)
}

func TestGreedySolveTSPEmptyAndBadStart(t *testing.T) {
	g := NewGreedy(nil, GreedyOptions{})
	order, err := g.SolveTSP(context.Background(), nil, 0, false)
	require.NoError(t, err)
	assert.Empty(t, order)

	locs := []model.Location{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}
	order, err = g.SolveTSP(context.Background(), locs, 99, false)
	require.NoError(t, err)
	assert.Equal(t, 0, order[0])
}
