package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Berlin -> Hamburg is roughly 255 km as the crow flies.
	berlin := Coordinate{Lat: 52.5200, Lng: 13.4050}
	hamburg := Coordinate{Lat: 53.5511, Lng: 9.9937}
	d := Haversine(berlin, hamburg)
	assert.InDelta(t, 255000, d, 5000)
}

func TestHaversineZero(t *testing.T) {
	p := Coordinate{Lat: 40.0, Lng: -70.0}
	assert.Equal(t, 0.0, Haversine(p, p))
}

func TestHaversineSymmetric(t *testing.T) {
	a := Coordinate{Lat: 48.8566, Lng: 2.3522}
	b := Coordinate{Lat: 51.5074, Lng: -0.1278}
	assert.Equal(t, Haversine(a, b), Haversine(b, a))
}

func TestMatrixShapeAndSymmetry(t *testing.T) {
	coords := []Coordinate{
		{Lat: 52.52, Lng: 13.40},
		{Lat: 52.53, Lng: 13.41},
		{Lat: 52.54, Lng: 13.39},
	}
	dur, dist := Matrix(coords, 50)
	require.Len(t, dur, 3)
	require.Len(t, dist, 3)
	for i := range coords {
		require.Len(t, dur[i], 3)
		require.Len(t, dist[i], 3)
		assert.Equal(t, 0.0, dist[i][i])
		for j := range coords {
			assert.Equal(t, dist[i][j], dist[j][i])
			assert.Equal(t, dur[i][j], dur[j][i])
		}
	}
	// 50 km/h constant speed: duration = distance / (50/3.6)
	assert.InDelta(t, dist[0][1]/(50/3.6), dur[0][1], 1e-9)
}

func TestMatrixDefaultsSpeed(t *testing.T) {
	coords := []Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}}
	dur, dist := Matrix(coords, 0)
	assert.Greater(t, dur[0][1], 0.0)
	assert.Greater(t, dist[0][1], 0.0)
}
