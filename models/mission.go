package models

import "time"

// MissionStatus represents the lifecycle state of a mission.
type MissionStatus string

const (
	MissionStatusPlanned    MissionStatus = "Planned"
	MissionStatusPending    MissionStatus = "Pending"
	MissionStatusInProgress MissionStatus = "In Progress"
	MissionStatusPaused     MissionStatus = "Paused"
	MissionStatusCompleted  MissionStatus = "Completed"
	MissionStatusAborted    MissionStatus = "Aborted"
)

// Valid reports whether s is one of the known mission statuses.
func (s MissionStatus) Valid() bool {
	switch s {
	case MissionStatusPlanned, MissionStatusPending, MissionStatusInProgress,
		MissionStatusPaused, MissionStatusCompleted, MissionStatusAborted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s MissionStatus) Terminal() bool {
	return s == MissionStatusCompleted || s == MissionStatusAborted
}

// Mission is a unit of planned survey work flown by at most one drone.
type Mission struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	MissionType string        `db:"mission_type" json:"missionType"`
	Status      MissionStatus `db:"status" json:"status"`
	Location    string        `db:"location" json:"location"`
	Area        float64       `db:"area" json:"area"` // square meters
	DroneID     *int64        `db:"drone_id" json:"droneId"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	ScheduledAt *time.Time    `db:"scheduled_at" json:"scheduledAt"`
	StartedAt   *time.Time    `db:"started_at" json:"startedAt"`
	CompletedAt *time.Time    `db:"completed_at" json:"completedAt"`
	Duration    *int64        `db:"duration" json:"duration"` // seconds
	FlightPath  Path          `db:"flight_path" json:"flightPath"`
	ActualPath  *Path         `db:"actual_path" json:"actualPath"`
	Progress    float64       `db:"progress" json:"progress"`

	Altitude      *float64 `db:"altitude" json:"altitude"`         // meters
	Speed         *float64 `db:"speed" json:"speed"`               // m/s
	ImageOverlap  *int     `db:"image_overlap" json:"imageOverlap"` // percent
	PatternType   *string  `db:"pattern_type" json:"patternType"`
	Sensors       []string `db:"sensors" json:"sensors,omitempty"`
	Waypoints     []Point  `db:"waypoints" json:"waypoints,omitempty"`
	DataFrequency *int     `db:"data_frequency" json:"dataCollectionFrequency,omitempty"` // seconds
}

// MissionUpdate is a partial mission update; nil fields are left unchanged.
type MissionUpdate struct {
	Status      *MissionStatus
	DroneID     *int64
	StartedAt   *time.Time
	CompletedAt *time.Time
	Duration    *int64
	Progress    *float64
	ActualPath  *Path
}
