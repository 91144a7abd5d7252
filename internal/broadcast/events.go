package broadcast

import "droneSurveyManagement/models"

// Outbound event types.
const (
	TypeMissionsActive = "missions:active"
	TypeMissionUpdate  = "mission:update"
	TypeMissionStarted = "mission:started"
	TypeDroneUpdate    = "drone:update"
	TypeMissionLog     = "mission:log"
	TypeTelemetryAck   = "telemetry:ack"
	TypeError          = "error"
)

// Event is a message pushed to observers. Every event marshals to a JSON
// object with a "type" field.
type Event interface {
	Kind() string
}

type MissionsActiveEvent struct {
	Type     string           `json:"type"`
	Missions []models.Mission `json:"missions"`
}

type MissionUpdateEvent struct {
	Type    string          `json:"type"`
	Mission *models.Mission `json:"mission"`
}

type MissionStartedEvent struct {
	Type      string `json:"type"`
	MissionID int64  `json:"missionId"`
}

type DroneUpdateEvent struct {
	Type  string        `json:"type"`
	Drone *models.Drone `json:"drone"`
}

type MissionLogEvent struct {
	Type string             `json:"type"`
	Log  *models.MissionLog `json:"log"`
}

type TelemetryAckEvent struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e MissionsActiveEvent) Kind() string { return e.Type }
func (e MissionUpdateEvent) Kind() string  { return e.Type }
func (e MissionStartedEvent) Kind() string { return e.Type }
func (e DroneUpdateEvent) Kind() string    { return e.Type }
func (e MissionLogEvent) Kind() string     { return e.Type }
func (e TelemetryAckEvent) Kind() string   { return e.Type }
func (e ErrorEvent) Kind() string          { return e.Type }

func MissionsActive(ms []models.Mission) MissionsActiveEvent {
	if ms == nil {
		ms = []models.Mission{}
	}
	return MissionsActiveEvent{Type: TypeMissionsActive, Missions: ms}
}

func MissionUpdate(m *models.Mission) MissionUpdateEvent {
	return MissionUpdateEvent{Type: TypeMissionUpdate, Mission: m}
}

func MissionStarted(id int64) MissionStartedEvent {
	return MissionStartedEvent{Type: TypeMissionStarted, MissionID: id}
}

func DroneUpdate(d *models.Drone) DroneUpdateEvent {
	return DroneUpdateEvent{Type: TypeDroneUpdate, Drone: d}
}

func MissionLog(l *models.MissionLog) MissionLogEvent {
	return MissionLogEvent{Type: TypeMissionLog, Log: l}
}

func TelemetryAck(id int64) TelemetryAckEvent {
	return TelemetryAckEvent{Type: TypeTelemetryAck, ID: id}
}

func Error(msg string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: msg}
}
