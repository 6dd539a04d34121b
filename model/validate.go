package model

import (
	"fmt"
	"math"
)

// symmetryTolerance allows for rounding introduced by provider
// normalization when checking pre-supplied distance matrices.
const symmetryTolerance = 1e-6

// Validate checks the structural invariants of a problem. Solvers call it
// before touching the matrices; a caller can call it early for better error
// locality.
func (p *RoutingProblem) Validate() error {
	for i, j := range p.Jobs {
		if j.ID == "" {
			return fmt.Errorf("job %d: missing id", i)
		}
	}
	for i, v := range p.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle %d: missing id", i)
		}
	}
	dim := 1 + len(p.Jobs)
	if p.DistanceMatrix != nil {
		if err := checkSquare("distanceMatrix", p.DistanceMatrix, dim); err != nil {
			return err
		}
		if err := checkSymmetric("distanceMatrix", p.DistanceMatrix); err != nil {
			return err
		}
	}
	if p.DurationMatrix != nil {
		if err := checkSquare("durationMatrix", p.DurationMatrix, dim); err != nil {
			return err
		}
	}
	return nil
}

func checkSquare(name string, m [][]float64, dim int) error {
	if len(m) != dim {
		return fmt.Errorf("%s: got %d rows, want %d (1+jobs, depot at index 0)", name, len(m), dim)
	}
	for i, row := range m {
		if len(row) != dim {
			return fmt.Errorf("%s: row %d has %d columns, want %d", name, i, len(row), dim)
		}
	}
	return nil
}

func checkSymmetric(name string, m [][]float64) error {
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			if math.Abs(m[i][j]-m[j][i]) > symmetryTolerance {
				return fmt.Errorf("%s: not symmetric at (%d,%d): %v != %v", name, i, j, m[i][j], m[j][i])
			}
		}
	}
	return nil
}
