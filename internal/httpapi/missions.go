package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

type missionInput struct {
	Name          string               `json:"name"`
	MissionType   string               `json:"missionType"`
	Status        models.MissionStatus `json:"status"`
	Location      string               `json:"location"`
	Area          float64              `json:"area"`
	DroneID       *int64               `json:"droneId"`
	ScheduledAt   *time.Time           `json:"scheduledAt"`
	FlightPath    models.Path          `json:"flightPath"`
	Altitude      *float64             `json:"altitude"`
	Speed         *float64             `json:"speed"`
	ImageOverlap  *int                 `json:"imageOverlap"`
	PatternType   *string              `json:"patternType"`
	Sensors       []string             `json:"sensors"`
	Waypoints     []models.Point       `json:"waypoints"`
	DataFrequency *int                 `json:"dataCollectionFrequency"`
}

// validate returns a client-facing message, or "" when in is acceptable.
// New missions start out Planned or Pending; later states are reached
// through status transitions only.
func (in missionInput) validate() string {
	switch {
	case in.Name == "" || in.MissionType == "":
		return "name and missionType are required"
	case in.FlightPath.Empty():
		return "flightPath must be a LineString with at least one point"
	case in.Status != "" && in.Status != models.MissionStatusPlanned && in.Status != models.MissionStatusPending:
		return "new missions must be Planned or Pending"
	case in.Area < 0:
		return "area must not be negative"
	case in.Altitude != nil && *in.Altitude < 0, in.Speed != nil && *in.Speed < 0:
		return "altitude and speed must not be negative"
	case in.ImageOverlap != nil && (*in.ImageOverlap < 0 || *in.ImageOverlap > 100):
		return "imageOverlap must be between 0 and 100"
	}
	return ""
}

type statusInput struct {
	Status models.MissionStatus `json:"status"`
}

type progressInput struct {
	Progress   *float64     `json:"progress"`
	ActualPath *models.Path `json:"actualPath"`
}

type logInput struct {
	LogType models.LogType `json:"logType"`
	Message string         `json:"message"`
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	ms, err := s.store.ListMissions(r.Context())
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(ms))
}

func (s *Server) handleActiveMissions(w http.ResponseWriter, r *http.Request) {
	ms, err := s.store.ListMissionsByStatus(r.Context(), models.MissionStatusInProgress)
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(ms))
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Mission not found")
		return
	}
	m, err := s.store.GetMission(r.Context(), id)
	if err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var in missionInput
	if err := decodeBody(w, r, &in, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid mission data")
		return
	}
	if msg := in.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	ctx := r.Context()
	if in.DroneID != nil {
		if _, err := s.store.GetDrone(ctx, *in.DroneID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "Unknown drone")
				return
			}
			s.respondErr(w, err, "")
			return
		}
	}
	m, err := s.store.Missions.Create(ctx, &models.Mission{
		Name:          in.Name,
		MissionType:   in.MissionType,
		Status:        in.Status,
		Location:      in.Location,
		Area:          in.Area,
		DroneID:       in.DroneID,
		ScheduledAt:   in.ScheduledAt,
		FlightPath:    in.FlightPath,
		Altitude:      in.Altitude,
		Speed:         in.Speed,
		ImageOverlap:  in.ImageOverlap,
		PatternType:   in.PatternType,
		Sensors:       in.Sensors,
		Waypoints:     in.Waypoints,
		DataFrequency: in.DataFrequency,
	})
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Mission not found")
		return
	}
	var in statusInput
	if err := decodeBody(w, r, &in, false); err != nil || !in.Status.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid status update")
		return
	}
	res, err := s.engine.Transition(r.Context(), id, in.Status)
	if err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	s.registry.PublishResult(r.Context(), res)
	respondJSON(w, http.StatusOK, res.Mission)
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Mission not found")
		return
	}
	var in progressInput
	if err := decodeBody(w, r, &in, false); err != nil || in.Progress == nil {
		respondError(w, http.StatusBadRequest, "Invalid progress update")
		return
	}
	res, err := s.engine.UpdateProgress(r.Context(), id, *in.Progress, in.ActualPath)
	if err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	s.registry.PublishResult(r.Context(), res)
	respondJSON(w, http.StatusOK, res.Mission)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Mission not found")
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetMission(ctx, id); err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	logs, err := s.store.Logs.ListByMission(ctx, id)
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(logs))
}

func (s *Server) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Mission not found")
		return
	}
	var in logInput
	if err := decodeBody(w, r, &in, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid log data")
		return
	}
	l, err := s.engine.AppendLog(r.Context(), id, in.LogType, in.Message)
	if err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	s.registry.BroadcastMissionLog(r.Context(), l)
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) handleListTelemetry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Mission not found")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	ctx := r.Context()
	if _, err := s.store.GetMission(ctx, id); err != nil {
		s.respondErr(w, err, "Mission not found")
		return
	}
	samples, err := s.store.Telemetry.ListByMission(ctx, id, limit)
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(samples))
}
