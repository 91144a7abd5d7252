package geo

import (
	"math"

	"droneSurveyManagement/models"
)

const (
	// WaypointRadiusMeters is how close a reported position must be to a
	// planned point to count as having reached it.
	WaypointRadiusMeters = 30.0
	// EarthRadiusMeters is Earth's mean radius for the Haversine calculation.
	EarthRadiusMeters = 6371008.8
)

// HaversineMeters calculates the great-circle distance between two points
// on Earth in meters using the Haversine formula.
func HaversineMeters(a, b models.Point) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// PathLength sums the segment lengths of p in meters.
func PathLength(p models.Path) float64 {
	var total float64
	for i := 1; i < len(p.Points); i++ {
		total += HaversineMeters(p.Points[i-1], p.Points[i])
	}
	return total
}

// IsWithinRadius checks if two coordinates are within radiusMeters of each other.
func IsWithinRadius(a, b models.Point, radiusMeters float64) bool {
	return HaversineMeters(a, b) <= radiusMeters
}
