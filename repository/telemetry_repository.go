package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"droneSurveyManagement/models"
)

// TelemetryRepository stores append-only telemetry samples.
type TelemetryRepository struct {
	db DBTX
}

func NewTelemetryRepository(db DBTX) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// Append inserts a sample. A zero timestamp is replaced with the current time.
func (r *TelemetryRepository) Append(ctx context.Context, t *models.Telemetry) (*models.Telemetry, error) {
	if t == nil {
		return nil, errors.New("telemetry is nil")
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO telemetry (mission_id, timestamp, altitude, speed, battery_level, latitude, longitude, distance_traveled, signal_strength) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.MissionID, formatTime(t.Timestamp), nullFloat(t.Altitude), nullFloat(t.Speed), nullInt(t.BatteryLevel),
		t.Latitude, t.Longitude, nullFloat(t.DistanceTraveled), nullInt(t.SignalStrength))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	t.ID = id
	return t, nil
}

// ListByMission returns a mission's samples, newest first.
func (r *TelemetryRepository) ListByMission(ctx context.Context, missionID int64, limit int) ([]models.Telemetry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, mission_id, timestamp, altitude, speed, battery_level, latitude, longitude, distance_traveled, signal_strength FROM telemetry WHERE mission_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, missionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Telemetry
	for rows.Next() {
		var (
			t                       models.Telemetry
			ts                      string
			altitude, speed, dist   sql.NullFloat64
			battery, signalStrength sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.MissionID, &ts, &altitude, &speed, &battery, &t.Latitude, &t.Longitude, &dist, &signalStrength); err != nil {
			return nil, err
		}
		if t.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		t.Altitude = floatPtr(altitude)
		t.Speed = floatPtr(speed)
		t.BatteryLevel = intPtr(battery)
		t.DistanceTraveled = floatPtr(dist)
		t.SignalStrength = intPtr(signalStrength)
		out = append(out, t)
	}
	return out, rows.Err()
}
