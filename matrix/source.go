// Package matrix turns coordinate sets into duration/distance matrices,
// hiding the network distance source's request-size limit and
// unreliability behind batching, bounded concurrency, a haversine fallback
// and an optional content-addressed cache.
package matrix

import (
	"context"
	"errors"

	"fleetroute/geo"
)

// ErrMatrixUnavailable is returned only when every batch and the haversine
// fallback fail. The fallback never fails, so in practice Compute does not
// return it; it exists so callers can still branch on the type.
var ErrMatrixUnavailable = errors.New("matrix: no distance source available")

// Table is one source response: durations in seconds, distances in meters.
type Table struct {
	Durations [][]float64
	Distances [][]float64
}

// TableSource is the network distance source contract (OSRM-compatible
// table service shape). sources/destinations are indices into coords; nil
// means "all". Unreachable pairs must be reported as very large values,
// never zero.
type TableSource interface {
	Table(ctx context.Context, coords []geo.Coordinate, sources, destinations []int, profile string) (*Table, error)
}
