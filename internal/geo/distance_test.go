package geo

import (
	"math"
	"testing"

	"droneSurveyManagement/models"
)

func TestHaversineMeters_ZeroDistance(t *testing.T) {
	p := models.Point{Lat: 10, Lng: 20}
	if d := HaversineMeters(p, p); d < 0 || d > 1e-9 {
		t.Fatalf("zero distance expected ~0, got %v", d)
	}
}

func TestHaversineMeters_OneDegreeOfLatitude(t *testing.T) {
	d := HaversineMeters(models.Point{Lat: 0, Lng: 0}, models.Point{Lat: 1, Lng: 0})
	// One degree along a meridian is ~111.2km.
	if math.Abs(d-111195) > 50 {
		t.Fatalf("one degree = %v m, want ~111195", d)
	}
}

func TestPathLength(t *testing.T) {
	p := models.NewLineString(
		models.Point{Lat: 0, Lng: 0},
		models.Point{Lat: 1, Lng: 0},
		models.Point{Lat: 2, Lng: 0},
	)
	want := 2 * HaversineMeters(models.Point{}, models.Point{Lat: 1})
	if got := PathLength(p); math.Abs(got-want) > 1e-6 {
		t.Fatalf("PathLength=%v want %v", got, want)
	}
	if got := PathLength(models.Path{}); got != 0 {
		t.Fatalf("empty PathLength=%v", got)
	}
}

func TestIsWithinRadius_Boundary(t *testing.T) {
	a := models.Point{Lat: 0, Lng: 0}
	near := models.Point{Lat: 0, Lng: 0.0001} // ~11m at the equator
	far := models.Point{Lat: 0, Lng: 0.001}   // ~111m
	if !IsWithinRadius(a, near, WaypointRadiusMeters) {
		t.Fatalf("expected points to be within radius")
	}
	if IsWithinRadius(a, far, WaypointRadiusMeters) {
		t.Fatalf("expected points to be outside radius")
	}
}
