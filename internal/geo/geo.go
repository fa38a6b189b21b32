// Package geo implements the map measurement math: path length over the
// earth's surface and the area enclosed by a small lat/lon polygon.
package geo

import "math"

const (
	// EarthRadiusMeters is the mean earth radius used for great-circle distances.
	EarthRadiusMeters = 6371008.8

	// MetersPerDegree is the length of one degree of latitude.
	MetersPerDegree = 111320.0

	MinDistancePoints = 2
	MinAreaPoints     = 3
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies inside the lat/lon domain.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// GreatCircle returns the haversine distance in meters between a and b.
func GreatCircle(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Distance sums the great-circle distances between consecutive points.
// ok is false when fewer than two points are given.
func Distance(points []Point) (meters float64, ok bool) {
	if len(points) < MinDistancePoints {
		return 0, false
	}
	for i := 1; i < len(points); i++ {
		meters += GreatCircle(points[i-1], points[i])
	}
	return meters, true
}

// Area returns the polygon area in square meters. ok is false when fewer
// than three points are given.
//
// The shoelace formula runs on raw degrees and the result is scaled by
// MetersPerDegree for latitude and MetersPerDegree*cos(lat0) for longitude,
// where lat0 is the first vertex. This flat-earth approximation is only
// good for parcels and job sites: error grows with polygon size and with
// latitude, and vertices far from lat0 are scaled with the wrong factor.
func Area(points []Point) (squareMeters float64, ok bool) {
	n := len(points)
	if n < MinAreaPoints {
		return 0, false
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].Lon * points[j].Lat
		sum -= points[j].Lon * points[i].Lat
	}
	degrees := math.Abs(sum) / 2

	latMeters := MetersPerDegree
	lonMeters := math.Cos(radians(points[0].Lat)) * MetersPerDegree
	return degrees * latMeters * lonMeters, true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
