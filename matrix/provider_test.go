package matrix

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/geo"
)

// fakeSource computes tables from a deterministic formula so batched and
// unbatched assembly can be compared cell by cell.
type fakeSource struct {
	calls    atomic.Int64
	failWhen func(sources, destinations []int) bool
}

func (f *fakeSource) Table(ctx context.Context, coords []geo.Coordinate, sources, destinations []int, profile string) (*Table, error) {
	f.calls.Add(1)
	if sources == nil {
		sources = allIndices(len(coords))
	}
	if destinations == nil {
		destinations = allIndices(len(coords))
	}
	if f.failWhen != nil && f.failWhen(sources, destinations) {
		return nil, errors.New("simulated batch failure")
	}
	tbl := &Table{
		Durations: make([][]float64, len(sources)),
		Distances: make([][]float64, len(sources)),
	}
	for r, i := range sources {
		tbl.Durations[r] = make([]float64, len(destinations))
		tbl.Distances[r] = make([]float64, len(destinations))
		for c, j := range destinations {
			tbl.Durations[r][c] = float64(i*1000 + j)
			tbl.Distances[r][c] = float64(i*1000+j) * 10
		}
	}
	return tbl, nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func testCoords(n int) []geo.Coordinate {
	out := make([]geo.Coordinate, n)
	for i := range out {
		out[i] = geo.Coordinate{Lat: 52.0 + float64(i)*0.01, Lng: 13.0 + float64(i)*0.01}
	}
	return out
}

func TestComputeSingleRequestBelowBatchSize(t *testing.T) {
	src := &fakeSource{}
	p := NewProvider(src, ProviderOptions{BatchSize: 100})

	res, err := p.Compute(context.Background(), testCoords(5), "driving")
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.calls.Load())
	assert.Equal(t, SourceNetwork, res.Diagnostics.Source)
	assert.Equal(t, 1, res.Diagnostics.Batches)
	assert.Len(t, res.Durations, 5)
	assert.Equal(t, float64(2*1000+4), res.Durations[2][4])
}

func TestComputeBatchedMatchesUnbatched(t *testing.T) {
	coords := testCoords(25)

	whole, err := NewProvider(&fakeSource{}, ProviderOptions{BatchSize: 100}).
		Compute(context.Background(), coords, "driving")
	require.NoError(t, err)

	batchedSrc := &fakeSource{}
	batched, err := NewProvider(batchedSrc, ProviderOptions{BatchSize: 10, MaxInFlight: 4}).
		Compute(context.Background(), coords, "driving")
	require.NoError(t, err)

	// 25 points at batch size 10 -> 3 blocks -> 9 cross-product requests.
	assert.Equal(t, int64(9), batchedSrc.calls.Load())
	assert.Equal(t, 9, batched.Diagnostics.Batches)
	assert.Equal(t, whole.Durations, batched.Durations)
	assert.Equal(t, whole.Distances, batched.Distances)
}

func TestComputeZeroFillsFailedBatch(t *testing.T) {
	src := &fakeSource{
		failWhen: func(sources, destinations []int) bool {
			return sources[0] == 0 && destinations[0] == 10
		},
	}
	p := NewProvider(src, ProviderOptions{BatchSize: 10})

	res, err := p.Compute(context.Background(), testCoords(20), "driving")
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Diagnostics.Source)
	assert.Equal(t, 1, res.Diagnostics.FailedBatches)

	// The failed slice (rows 0-9 x cols 10-19) stays zero.
	assert.Zero(t, res.Durations[0][10])
	assert.Zero(t, res.Durations[9][19])
	// Everything else is populated.
	assert.Equal(t, float64(0*1000+9), res.Durations[0][9])
	assert.Equal(t, float64(10*1000+3), res.Durations[10][3])
}

func TestComputeFallsBackWithoutSource(t *testing.T) {
	p := NewProvider(nil, ProviderOptions{})

	res, err := p.Compute(context.Background(), testCoords(4), "driving")
	require.NoError(t, err)
	assert.Equal(t, SourceHaversine, res.Diagnostics.Source)
	assert.Len(t, res.Durations, 4)
	assert.Zero(t, res.Durations[2][2])
	assert.Greater(t, res.Durations[0][3], 0.0)
}

func TestComputeFallsBackWhenEveryBatchFails(t *testing.T) {
	src := &fakeSource{failWhen: func(_, _ []int) bool { return true }}
	p := NewProvider(src, ProviderOptions{BatchSize: 10})

	res, err := p.Compute(context.Background(), testCoords(30), "driving")
	require.NoError(t, err)
	assert.Equal(t, SourceHaversine, res.Diagnostics.Source)
	assert.Greater(t, res.Distances[0][29], 0.0)
}

func TestComputeSymmetrizesDistances(t *testing.T) {
	p := NewProvider(&fakeSource{}, ProviderOptions{})

	res, err := p.Compute(context.Background(), testCoords(6), "driving")
	require.NoError(t, err)
	for i := range res.Distances {
		for j := range res.Distances {
			assert.Equal(t, res.Distances[i][j], res.Distances[j][i])
		}
	}
	// Directed mode keeps the raw asymmetric values.
	raw, err := NewProvider(&fakeSource{}, ProviderOptions{NoSymmetrize: true}).
		Compute(context.Background(), testCoords(6), "driving")
	require.NoError(t, err)
	assert.NotEqual(t, raw.Distances[0][5], raw.Distances[5][0])
}

func TestComputeEmptyInput(t *testing.T) {
	p := NewProvider(&fakeSource{}, ProviderOptions{})
	res, err := p.Compute(context.Background(), nil, "driving")
	require.NoError(t, err)
	assert.Empty(t, res.Durations)
}

func TestBlockRanges(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 10}, {10, 20}, {20, 25}}, blockRanges(25, 10))
	assert.Equal(t, [][2]int{{0, 3}}, blockRanges(3, 100))
}
