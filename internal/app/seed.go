package app

import (
	"context"
	"fmt"

	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// sampleSurvey builds a lawnmower pattern of rows x cols points starting at
// (lat, lng), 0.001 degrees apart.
func sampleSurvey(lat, lng float64, rows, cols int) models.Path {
	pts := make([]models.Point, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			col := c
			if r%2 == 1 {
				col = cols - 1 - c
			}
			pts = append(pts, models.Point{Lat: lat + float64(r)*0.001, Lng: lng + float64(col)*0.001})
		}
	}
	return models.NewLineString(pts...)
}

func ptr[T any](v T) *T { return &v }

// Seed inserts a small sample fleet and a few missions into an empty
// database. It does nothing when drones already exist.
func Seed(ctx context.Context, store *repository.Store) (drones, missions int, err error) {
	existing, err := store.ListDrones(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(existing) > 0 {
		return 0, 0, nil
	}

	fleet := []models.Drone{
		{Name: "Falcon-1", Model: "DJI Matrice 300", SerialNumber: "MX300-0001", BatteryCapacity: 5935, CurrentBatteryLevel: 92, Location: "Hangar A"},
		{Name: "Falcon-2", Model: "DJI Matrice 300", SerialNumber: "MX300-0002", BatteryCapacity: 5935, CurrentBatteryLevel: 78, Location: "Hangar A"},
		{Name: "Kestrel", Model: "DJI Mavic 3 Enterprise", SerialNumber: "M3E-1042", BatteryCapacity: 5000, CurrentBatteryLevel: 64, Location: "Field Office"},
		{Name: "Osprey", Model: "Skydio X2", SerialNumber: "SX2-7781", BatteryCapacity: 4280, CurrentBatteryLevel: 35, Status: models.DroneStatusCharging, Location: "Hangar B"},
		{Name: "Harrier", Model: "senseFly eBee X", SerialNumber: "EBX-3310", BatteryCapacity: 4900, CurrentBatteryLevel: 100, Status: models.DroneStatusMaintenance, Location: "Workshop"},
	}
	for i := range fleet {
		if _, err := store.Drones.Create(ctx, &fleet[i]); err != nil {
			return drones, 0, fmt.Errorf("seed drone %s: %w", fleet[i].SerialNumber, err)
		}
		drones++
	}

	plans := []models.Mission{
		{Name: "North Orchard Health", MissionType: "Crop Survey", Status: models.MissionStatusPending, Location: "North Orchard", Area: 48000,
			FlightPath: sampleSurvey(37.7712, -122.4231, 4, 5), Altitude: ptr(60.0), Speed: ptr(6.0), ImageOverlap: ptr(75),
			PatternType: ptr("lawnmower"), Sensors: []string{"RGB", "Multispectral"}, DataFrequency: ptr(2)},
		{Name: "Bridge Deck Inspection", MissionType: "Infrastructure Inspection", Status: models.MissionStatusPending, Location: "Route 9 Bridge", Area: 6500,
			FlightPath: sampleSurvey(37.7801, -122.3952, 2, 6), Altitude: ptr(35.0), Speed: ptr(3.5), ImageOverlap: ptr(80),
			PatternType: ptr("linear"), Sensors: []string{"RGB", "Thermal"}},
		{Name: "Quarry Stockpile Volume", MissionType: "Mapping", Status: models.MissionStatusPlanned, Location: "East Quarry", Area: 120000,
			FlightPath: sampleSurvey(37.7655, -122.4018, 5, 5), Altitude: ptr(90.0), Speed: ptr(8.0), ImageOverlap: ptr(70),
			PatternType: ptr("crosshatch"), Sensors: []string{"RGB", "LiDAR"}},
	}
	for i := range plans {
		if _, err := store.Missions.Create(ctx, &plans[i]); err != nil {
			return drones, missions, fmt.Errorf("seed mission %q: %w", plans[i].Name, err)
		}
		missions++
	}
	return drones, missions, nil
}
