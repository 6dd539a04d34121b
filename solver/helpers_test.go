package solver

import (
	"fmt"
	"time"

	"fleetroute/model"
)

var testDay = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// clusterJobs spreads n jobs around Berlin, ~1km apart, ample defaults.
func clusterJobs(n int, demandKg float64) []model.Job {
	jobs := make([]model.Job, n)
	for i := range jobs {
		jobs[i] = model.Job{
			ID: fmt.Sprintf("job-%d", i),
			Location: model.Location{
				ID:         fmt.Sprintf("loc-%d", i),
				Lat:        52.50 + float64(i%10)*0.01,
				Lng:        13.35 + float64(i/10)*0.01,
				ServiceSec: 300,
			},
			Demand: model.Demand{Weight: demandKg},
		}
	}
	return jobs
}

func testVehicle(id string, capacityKg float64) model.VehicleConfig {
	return model.VehicleConfig{
		ID:       id,
		Capacity: model.Demand{Weight: capacityKg},
		Start:    model.Location{ID: "depot", Lat: 52.52, Lng: 13.405},
		WorkHours: model.TimeWindow{
			Start: testDay,
			End:   testDay.Add(10 * time.Hour),
		},
	}
}

func testProblem(nJobs int, demandKg float64, vehicles ...model.VehicleConfig) *model.RoutingProblem {
	depot := model.Location{ID: "depot", Lat: 52.52, Lng: 13.405}
	return &model.RoutingProblem{
		Jobs:     clusterJobs(nJobs, demandKg),
		Vehicles: vehicles,
		Depot:    &depot,
	}
}

func isPermutation(got []int, n int) bool {
	if len(got) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range got {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func jobIDsOnRoutes(res *model.SolutionResult) map[string]int {
	out := map[string]int{}
	for _, r := range res.Routes {
		for _, s := range r.Steps {
			if s.Kind == model.StepJob {
				out[s.JobID]++
			}
		}
	}
	return out
}
