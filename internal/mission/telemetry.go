package mission

import (
	"context"

	"droneSurveyManagement/internal/geo"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// TelemetryInput is a telemetry sample submitted by an observer.
type TelemetryInput struct {
	MissionID        int64    `json:"missionId"`
	Altitude         *float64 `json:"altitude,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	BatteryLevel     *int     `json:"batteryLevel,omitempty"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	DistanceTraveled *float64 `json:"distanceTraveled,omitempty"`
	SignalStrength   *int     `json:"signalStrength,omitempty"`
}

// Validate reports every field that is missing or out of range.
func (in TelemetryInput) Validate() error {
	var bad []string
	if in.MissionID <= 0 {
		bad = append(bad, "missionId")
	}
	if in.Latitude == nil || *in.Latitude < -90 || *in.Latitude > 90 {
		bad = append(bad, "latitude")
	}
	if in.Longitude == nil || *in.Longitude < -180 || *in.Longitude > 180 {
		bad = append(bad, "longitude")
	}
	if in.Altitude != nil && *in.Altitude < 0 {
		bad = append(bad, "altitude")
	}
	if in.Speed != nil && *in.Speed < 0 {
		bad = append(bad, "speed")
	}
	if in.BatteryLevel != nil && (*in.BatteryLevel < 0 || *in.BatteryLevel > 100) {
		bad = append(bad, "batteryLevel")
	}
	if in.DistanceTraveled != nil && *in.DistanceTraveled < 0 {
		bad = append(bad, "distanceTraveled")
	}
	if in.SignalStrength != nil && (*in.SignalStrength < 0 || *in.SignalStrength > 100) {
		bad = append(bad, "signalStrength")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}

// IngestTelemetry stores a submitted sample. While the mission is InProgress
// it also advances progress by the configured increment and grows the actual
// path, either to the submitted path or, without one, by the next planned
// point once the reported position is within reach of it.
func (e *Engine) IngestTelemetry(ctx context.Context, in TelemetryInput, actual *models.Path) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if actual != nil && actual.Validate() != nil {
		return nil, &ValidationError{Fields: []string{"actualPath"}}
	}

	unlock := e.missions.Lock(in.MissionID)
	defer unlock()

	m, err := e.repo.GetMission(ctx, in.MissionID)
	if err != nil {
		return nil, storageErr("get mission", err)
	}
	if actual != nil && actual.Len() > m.FlightPath.Len() {
		return nil, &ValidationError{Fields: []string{"actualPath"}}
	}

	res := &Result{Mission: m}
	err = e.inTx(ctx, m.DroneID, func(tx repository.Repository) error {
		saved, err := tx.AppendTelemetry(ctx, &models.Telemetry{
			MissionID:        m.ID,
			Timestamp:        e.now(),
			Altitude:         in.Altitude,
			Speed:            in.Speed,
			BatteryLevel:     in.BatteryLevel,
			Latitude:         *in.Latitude,
			Longitude:        *in.Longitude,
			DistanceTraveled: in.DistanceTraveled,
			SignalStrength:   in.SignalStrength,
		})
		if err != nil {
			return storageErr("append telemetry", err)
		}
		res.Telemetry = saved
		if m.Status != models.MissionStatusInProgress {
			return nil
		}
		path := actual
		if path == nil {
			path = reachedPrefix(m, models.Point{Lat: *in.Latitude, Lng: *in.Longitude})
		}
		progress := clampProgress(m.Progress + e.settings.ProgressIncrement)
		return e.applyProgressTx(ctx, tx, m, progress, path, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// reachedPrefix returns the actual path extended by the next planned point
// when pos is within reach of it, or nil when nothing changes.
func reachedPrefix(m *models.Mission, pos models.Point) *models.Path {
	if m.FlightPath.Empty() {
		return nil
	}
	next := 0
	if m.ActualPath != nil {
		next = m.ActualPath.Len()
	}
	if next >= m.FlightPath.Len() {
		return nil
	}
	if !geo.IsWithinRadius(pos, m.FlightPath.Points[next], geo.WaypointRadiusMeters) {
		return nil
	}
	p := m.FlightPath.Prefix(next + 1)
	return &p
}
