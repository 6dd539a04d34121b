// Package geo holds the distance primitives shared by every solver and by
// the matrix provider's offline fallback.
package geo

import "math"

// Coordinate is a WGS84 point. Lng first in wire formats, Lat first here.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	return HaversineLatLng(a.Lat, a.Lng, b.Lat, b.Lng)
}

// HaversineLatLng returns the great-circle distance in meters.
func HaversineLatLng(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// Matrix builds full duration and distance matrices from straight-line
// distances, assuming a constant travel speed. This is the fallback used
// when no network distance source is reachable; it never fails.
func Matrix(coords []Coordinate, speedKph float64) (durations, distances [][]float64) {
	if speedKph <= 0 {
		speedKph = 50
	}
	speedMS := speedKph / 3.6
	n := len(coords)
	durations = make([][]float64, n)
	distances = make([][]float64, n)
	for i := 0; i < n; i++ {
		durations[i] = make([]float64, n)
		distances[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Haversine(coords[i], coords[j])
			distances[i][j] = d
			distances[j][i] = d
			durations[i][j] = d / speedMS
			durations[j][i] = d / speedMS
		}
	}
	return durations, distances
}
