package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"droneSurveyManagement/internal/db"
	"droneSurveyManagement/models"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return NewStore(d)
}

func line(n int) models.Path {
	pts := make([]models.Point, n)
	for i := range pts {
		pts[i] = models.Point{Lat: 10 + float64(i), Lng: 20 + float64(i)}
	}
	return models.NewLineString(pts...)
}

func TestStore_DroneCRUDAndPartialUpdate(t *testing.T) {
	s := newTestStore(t, "storedrone")
	ctx := context.Background()

	d, err := s.Drones.Create(ctx, &models.Drone{Name: "Mavic-1", Model: "DJI Mavic 3", SerialNumber: "DR-1", BatteryCapacity: 100, CurrentBatteryLevel: 80})
	if err != nil {
		t.Fatalf("create drone: %v", err)
	}
	if d.ID == 0 || d.Status != models.DroneStatusAvailable || d.HealthStatus != "good" {
		t.Fatalf("defaults not applied: %+v", d)
	}

	level := 42
	st := models.DroneStatusCharging
	got, err := s.UpdateDrone(ctx, d.ID, models.DroneUpdate{CurrentBatteryLevel: &level, Status: &st})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.CurrentBatteryLevel != 42 || got.Status != models.DroneStatusCharging || got.Name != "Mavic-1" {
		t.Fatalf("partial update mismatch: %+v", got)
	}

	if _, err := s.GetDrone(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDrone missing err=%v want ErrNotFound", err)
	}
	if _, err := s.UpdateDrone(ctx, 9999, models.DroneUpdate{CurrentBatteryLevel: &level}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateDrone missing err=%v want ErrNotFound", err)
	}

	list, err := s.ListDrones(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDrones: %v len=%d", err, len(list))
	}

	if missing, err := s.Drones.GetByID(ctx, 9999); missing != nil || err != nil {
		t.Fatalf("GetByID missing: %+v %v", missing, err)
	}
}

func TestStore_MissionRoundTripAndStatusFilter(t *testing.T) {
	s := newTestStore(t, "storemission")
	ctx := context.Background()

	alt := 80.0
	pattern := "Grid"
	m, err := s.Missions.Create(ctx, &models.Mission{
		Name: "Solar farm", MissionType: "Site Survey", Status: models.MissionStatusPending,
		Area: 5000, FlightPath: line(5), Altitude: &alt, PatternType: &pattern,
		Sensors: []string{"RGB", "Thermal"},
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if m.FlightPath.Len() != 5 || m.ActualPath != nil || m.Progress != 0 {
		t.Fatalf("unexpected created mission: %+v", m)
	}
	if m.Altitude == nil || *m.Altitude != 80 || m.PatternType == nil || *m.PatternType != "Grid" {
		t.Fatalf("optional fields lost: %+v", m)
	}
	if len(m.Sensors) != 2 || m.Sensors[1] != "Thermal" {
		t.Fatalf("sensors lost: %+v", m.Sensors)
	}
	if m.FlightPath.Points[2] != (models.Point{Lat: 12, Lng: 22}) {
		t.Fatalf("flight path point mismatch: %+v", m.FlightPath.Points[2])
	}

	if _, err := s.Missions.Create(ctx, &models.Mission{Name: "empty", MissionType: "x"}); !errors.Is(err, models.ErrEmptyPath) {
		t.Fatalf("create with empty path err=%v", err)
	}

	started := time.Now().UTC().Truncate(time.Millisecond)
	progress := 12.5
	st := models.MissionStatusInProgress
	actual := m.FlightPath.Prefix(2)
	got, err := s.UpdateMissionFields(ctx, m.ID, models.MissionUpdate{Status: &st, StartedAt: &started, Progress: &progress, ActualPath: &actual})
	if err != nil {
		t.Fatalf("update fields: %v", err)
	}
	if got.Status != st || got.Progress != 12.5 || got.ActualPath == nil || got.ActualPath.Len() != 2 {
		t.Fatalf("update mismatch: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("startedAt=%v want %v", got.StartedAt, started)
	}

	inProgress, err := s.ListMissionsByStatus(ctx, models.MissionStatusInProgress)
	if err != nil || len(inProgress) != 1 {
		t.Fatalf("ListMissionsByStatus: %v len=%d", err, len(inProgress))
	}
	pending, err := s.ListMissionsByStatus(ctx, models.MissionStatusPending)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending: %v len=%d", err, len(pending))
	}

	if _, err := s.GetMission(ctx, 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMission missing err=%v", err)
	}
}

func TestStore_MalformedStoredFlightPathReadsAsEmpty(t *testing.T) {
	d, err := db.Open("file:storemalformed?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	s := NewStore(d)
	ctx := context.Background()

	m, err := s.Missions.Create(ctx, &models.Mission{Name: "m", MissionType: "x", FlightPath: line(3)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := d.Exec(`UPDATE missions SET flight_path = '{"type":"Polygon"}' WHERE id = ?`, m.ID); err != nil {
		t.Fatalf("corrupt path: %v", err)
	}
	got, err := s.GetMission(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.FlightPath.Empty() {
		t.Fatalf("expected empty flight path, got %+v", got.FlightPath)
	}
}

func TestStore_TelemetryAndLogsNewestFirst(t *testing.T) {
	s := newTestStore(t, "storeappend")
	ctx := context.Background()
	m, err := s.Missions.Create(ctx, &models.Mission{Name: "m", MissionType: "x", FlightPath: line(2)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		battery := 90 - i
		if _, err := s.AppendTelemetry(ctx, &models.Telemetry{MissionID: m.ID, Timestamp: base.Add(time.Duration(i) * time.Second), Latitude: 1, Longitude: 2, BatteryLevel: &battery}); err != nil {
			t.Fatalf("append telemetry: %v", err)
		}
		if _, err := s.AppendMissionLog(ctx, &models.MissionLog{MissionID: m.ID, Timestamp: base.Add(time.Duration(i) * time.Millisecond), LogType: models.LogTypeInfo, Message: "tick"}); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	samples, err := s.Telemetry.ListByMission(ctx, m.ID, 0)
	if err != nil || len(samples) != 3 {
		t.Fatalf("list telemetry: %v len=%d", err, len(samples))
	}
	if !samples[0].Timestamp.After(samples[2].Timestamp) || *samples[0].BatteryLevel != 88 {
		t.Fatalf("telemetry not newest first: %+v", samples)
	}
	logs, err := s.Logs.ListByMission(ctx, m.ID)
	if err != nil || len(logs) != 3 {
		t.Fatalf("list logs: %v len=%d", err, len(logs))
	}
	if !logs[0].Timestamp.After(logs[1].Timestamp) {
		t.Fatalf("logs not newest first: %+v", logs)
	}
}

func TestDroneRepository_DuplicateSerialIsConflict(t *testing.T) {
	s := newTestStore(t, "storedupe")
	ctx := context.Background()
	if _, err := s.Drones.Create(ctx, &models.Drone{Name: "a", Model: "m", SerialNumber: "DUP-1", BatteryCapacity: 100, CurrentBatteryLevel: 90}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Drones.Create(ctx, &models.Drone{Name: "b", Model: "m", SerialNumber: "DUP-1", BatteryCapacity: 100, CurrentBatteryLevel: 90})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err=%v want ErrConflict", err)
	}
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t, "storetx")
	ctx := context.Background()
	d, err := s.Drones.Create(ctx, &models.Drone{Name: "Tx", Model: "M", SerialNumber: "TX-1", BatteryCapacity: 100, CurrentBatteryLevel: 90})
	if err != nil {
		t.Fatalf("create drone: %v", err)
	}

	boom := errors.New("boom")
	level := 10
	err = s.WithTx(ctx, func(tx Repository) error {
		if _, err := tx.UpdateDrone(ctx, d.ID, models.DroneUpdate{CurrentBatteryLevel: &level}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err=%v want boom", err)
	}
	got, _ := s.GetDrone(ctx, d.ID)
	if got.CurrentBatteryLevel != 90 {
		t.Fatalf("rolled back write visible: battery=%d", got.CurrentBatteryLevel)
	}

	err = s.WithTx(ctx, func(tx Repository) error {
		_, err := tx.UpdateDrone(ctx, d.ID, models.DroneUpdate{CurrentBatteryLevel: &level})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	got, _ = s.GetDrone(ctx, d.ID)
	if got.CurrentBatteryLevel != 10 {
		t.Fatalf("committed write lost: battery=%d", got.CurrentBatteryLevel)
	}
}

func TestStore_DeleteDroneClearsMissionReference(t *testing.T) {
	s := newTestStore(t, "storedelete")
	ctx := context.Background()
	d, err := s.Drones.Create(ctx, &models.Drone{Name: "Gone", Model: "M", SerialNumber: "DEL-1", BatteryCapacity: 100, CurrentBatteryLevel: 90})
	if err != nil {
		t.Fatalf("create drone: %v", err)
	}
	m, err := s.Missions.Create(ctx, &models.Mission{Name: "Flown", MissionType: "Mapping", Status: models.MissionStatusPending, DroneID: &d.ID, FlightPath: line(2)})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}

	if err := s.DeleteDrone(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDrone: %v", err)
	}
	if _, err := s.GetDrone(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDrone after delete err=%v", err)
	}
	got, err := s.GetMission(ctx, m.ID)
	if err != nil || got.DroneID != nil {
		t.Fatalf("mission after drone delete: %+v %v", got, err)
	}
	if err := s.DeleteDrone(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err=%v want ErrNotFound", err)
	}
}
