package models

import "time"

// Telemetry is one timestamped observation of a drone flying a mission.
type Telemetry struct {
	ID               int64     `db:"id" json:"id"`
	MissionID        int64     `db:"mission_id" json:"missionId"`
	Timestamp        time.Time `db:"timestamp" json:"timestamp"`
	Altitude         *float64  `db:"altitude" json:"altitude"`
	Speed            *float64  `db:"speed" json:"speed"`
	BatteryLevel     *int      `db:"battery_level" json:"batteryLevel"`
	Latitude         float64   `db:"latitude" json:"latitude"`
	Longitude        float64   `db:"longitude" json:"longitude"`
	DistanceTraveled *float64  `db:"distance_traveled" json:"distanceTraveled"` // meters
	SignalStrength   *int      `db:"signal_strength" json:"signalStrength"`
}

// LogType classifies a mission log entry.
type LogType string

const (
	LogTypeInfo  LogType = "INFO"
	LogTypeWarn  LogType = "WARN"
	LogTypeError LogType = "ERROR"
	LogTypeStart LogType = "START"
	LogTypeEnd   LogType = "END"
)

// Valid reports whether t is a known log type.
func (t LogType) Valid() bool {
	switch t {
	case LogTypeInfo, LogTypeWarn, LogTypeError, LogTypeStart, LogTypeEnd:
		return true
	}
	return false
}

// MissionLog is an append-only audit entry attached to a mission.
type MissionLog struct {
	ID        int64     `db:"id" json:"id"`
	MissionID int64     `db:"mission_id" json:"missionId"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	LogType   LogType   `db:"log_type" json:"logType"`
	Message   string    `db:"message" json:"message"`
}
