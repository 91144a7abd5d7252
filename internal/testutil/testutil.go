package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"droneSurveyManagement/internal/db"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The database is closed through t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// NewStore returns a Store over a fresh in-memory database.
func NewStore(t *testing.T, name string) *repository.Store {
	t.Helper()
	return repository.NewStore(OpenInMemoryDB(t, name))
}

// LinePath returns an n-point LineString stepping north-east from (lat, lng).
func LinePath(n int, lat, lng float64) models.Path {
	pts := make([]models.Point, n)
	for i := range pts {
		pts[i] = models.Point{Lat: lat + float64(i)*0.001, Lng: lng + float64(i)*0.001}
	}
	return models.NewLineString(pts...)
}

// SeedDrone inserts an available drone with the given battery level.
func SeedDrone(t *testing.T, s *repository.Store, serial string, battery int, status models.DroneStatus) *models.Drone {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	d, err := s.Drones.Create(ctx, &models.Drone{
		Name:                "drone-" + serial,
		Model:               "DJI Mavic 3",
		SerialNumber:        serial,
		BatteryCapacity:     100,
		CurrentBatteryLevel: battery,
		Status:              status,
		Location:            "Hangar",
	})
	if err != nil {
		t.Fatalf("create drone: %v", err)
	}
	return d
}

// SeedMission inserts a mission with an n-point flight path.
func SeedMission(t *testing.T, s *repository.Store, name string, status models.MissionStatus, points int, droneID *int64) *models.Mission {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m, err := s.Missions.Create(ctx, &models.Mission{
		Name:        name,
		MissionType: "Site Survey",
		Status:      status,
		Location:    "North Field",
		Area:        1200,
		DroneID:     droneID,
		FlightPath:  LinePath(points, 37.77, -122.41),
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}
