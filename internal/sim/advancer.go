package sim

import (
	"fmt"
	"math"

	"droneSurveyManagement/internal/geo"
	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
)

const (
	defaultAltitude = 80.0
	defaultSpeed    = 5.0
	minSimBattery   = 25
)

// SimulatedAdvancer walks a mission along its planned path, one point ahead
// of its progress, and synthesizes the telemetry a drone there would report.
type SimulatedAdvancer struct {
	Increment float64
	rand      Rand
}

var _ mission.Advancer = (*SimulatedAdvancer)(nil)

func NewSimulatedAdvancer(increment float64, r Rand) *SimulatedAdvancer {
	return &SimulatedAdvancer{Increment: increment, rand: r}
}

func (a *SimulatedAdvancer) Advance(m *models.Mission) (mission.Step, bool) {
	if m.FlightPath.Empty() {
		return mission.Step{}, false
	}
	n := m.FlightPath.Len()
	pointsToComplete := int(math.Floor(float64(n) * m.Progress / 100))
	next := min(pointsToComplete+1, n-1)
	if next < 0 || next >= n {
		return mission.Step{}, false
	}
	pos := m.FlightPath.Points[next]

	altitude, speed := defaultAltitude, defaultSpeed
	if m.Altitude != nil {
		altitude = *m.Altitude
	}
	if m.Speed != nil {
		speed = *m.Speed
	}
	battery := int(math.Max(minSimBattery, math.Floor(100-m.Progress)))
	signal := 80 + int(a.rand.Float64()*20)
	actual := m.FlightPath.Prefix(next + 1)
	distance := geo.PathLength(actual)
	progress := m.Progress + a.Increment

	step := mission.Step{
		Telemetry: &models.Telemetry{
			Altitude:         &altitude,
			Speed:            &speed,
			BatteryLevel:     &battery,
			Latitude:         pos.Lat,
			Longitude:        pos.Lng,
			DistanceTraveled: &distance,
			SignalStrength:   &signal,
		},
		Progress:   progress,
		ActualPath: &actual,
	}
	if section := sectionOf(progress); section > sectionOf(m.Progress) {
		step.Logs = append(step.Logs, models.MissionLog{
			LogType: models.LogTypeInfo,
			Message: fmt.Sprintf("Completed survey section %d/4", section),
		})
	}
	return step, true
}

// sectionOf returns how many quarters of the survey p covers.
func sectionOf(p float64) int {
	return int(math.Floor(math.Min(p, 100) / 25))
}
