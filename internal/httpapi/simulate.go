package httpapi

import (
	"math"
	"net/http"

	"droneSurveyManagement/models"
)

const (
	simulatedAltitude = 80.0
	simulatedSpeed    = 10.0
	// Each planned point counts for this many meters of simulated distance.
	simulatedPointSpacing = 10.0
)

// activeMission picks a random In Progress mission. It writes the response
// itself and returns nil when there is none.
func (s *Server) activeMission(w http.ResponseWriter, r *http.Request) *models.Mission {
	ms, err := s.store.ListMissionsByStatus(r.Context(), models.MissionStatusInProgress)
	if err != nil {
		s.respondErr(w, err, "")
		return nil
	}
	if len(ms) == 0 {
		respondError(w, http.StatusNotFound, "No active missions")
		return nil
	}
	return &ms[s.rand.Intn(len(ms))]
}

// handleSimulateTelemetry records one sample at a random point of a random
// active mission's flight path. It does not move progress.
func (s *Server) handleSimulateTelemetry(w http.ResponseWriter, r *http.Request) {
	m := s.activeMission(w, r)
	if m == nil {
		return
	}
	if m.FlightPath.Empty() {
		respondError(w, http.StatusBadRequest, "Mission missing valid flight path")
		return
	}
	idx := s.rand.Intn(m.FlightPath.Len())
	pt := m.FlightPath.Points[idx]

	altitude, speed := simulatedAltitude, simulatedSpeed
	if m.Altitude != nil {
		altitude = *m.Altitude
	}
	if m.Speed != nil {
		speed = *m.Speed
	}
	battery := int(math.Max(10, math.Floor(100-m.Progress)))
	distance := float64(idx) * simulatedPointSpacing
	signal := 80 + int(s.rand.Float64()*20)

	t, err := s.store.AppendTelemetry(r.Context(), &models.Telemetry{
		MissionID:        m.ID,
		Altitude:         &altitude,
		Speed:            &speed,
		BatteryLevel:     &battery,
		Latitude:         pt.Lat,
		Longitude:        pt.Lng,
		DistanceTraveled: &distance,
		SignalStrength:   &signal,
	})
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Simulated telemetry", "telemetry": t})
}

func (s *Server) handleSimulateLog(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
	}
	if err := decodeBody(w, r, &in, true); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid log data")
		return
	}
	if in.Message == "" {
		in.Message = "Simulated log entry"
	}
	m := s.activeMission(w, r)
	if m == nil {
		return
	}
	l, err := s.engine.AppendLog(r.Context(), m.ID, models.LogTypeInfo, in.Message)
	if err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	s.registry.BroadcastMissionLog(r.Context(), l)
	respondJSON(w, http.StatusOK, map[string]any{"message": "Simulated log", "log": l})
}
