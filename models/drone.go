package models

// DroneStatus represents the operational state of a drone.
type DroneStatus string

const (
	DroneStatusAvailable   DroneStatus = "Available"
	DroneStatusOnMission   DroneStatus = "On Mission"
	DroneStatusCharging    DroneStatus = "Charging"
	DroneStatusMaintenance DroneStatus = "Maintenance"
	DroneStatusTerminated  DroneStatus = "Terminated"
)

// Valid reports whether s is one of the known drone statuses.
func (s DroneStatus) Valid() bool {
	switch s {
	case DroneStatusAvailable, DroneStatusOnMission, DroneStatusCharging, DroneStatusMaintenance, DroneStatusTerminated:
		return true
	}
	return false
}

// Drone represents a survey drone in the fleet.
// LastMissionID references the most recent mission the drone flew (nullable).
type Drone struct {
	ID                  int64       `db:"id" json:"id"`
	Name                string      `db:"name" json:"name"`
	Model               string      `db:"model" json:"model"`
	SerialNumber        string      `db:"serial_number" json:"serialNumber"`
	BatteryCapacity     int         `db:"battery_capacity" json:"batteryCapacity"`
	CurrentBatteryLevel int         `db:"current_battery_level" json:"currentBatteryLevel"`
	Status              DroneStatus `db:"status" json:"status"`
	Location            string      `db:"location" json:"location"`
	FlightHours         float64     `db:"flight_hours" json:"flightHours"`
	HealthStatus        string      `db:"health_status" json:"healthStatus"`
	LastMissionID       *int64      `db:"last_mission" json:"lastMission"`
}

// DroneUpdate is a partial drone update; nil fields are left unchanged.
type DroneUpdate struct {
	Name                *string
	Model               *string
	CurrentBatteryLevel *int
	Status              *DroneStatus
	Location            *string
	FlightHours         *float64
	HealthStatus        *string
	LastMissionID       *int64
}
