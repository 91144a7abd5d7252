package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"droneSurveyManagement/models"
)

type droneInput struct {
	Name                string             `json:"name"`
	Model               string             `json:"model"`
	SerialNumber        string             `json:"serialNumber"`
	BatteryCapacity     int                `json:"batteryCapacity"`
	CurrentBatteryLevel *int               `json:"currentBatteryLevel"`
	Status              models.DroneStatus `json:"status"`
	Location            string             `json:"location"`
	FlightHours         float64            `json:"flightHours"`
	HealthStatus        string             `json:"healthStatus"`
}

func (in droneInput) validate() string {
	switch {
	case in.Name == "" || in.Model == "" || in.SerialNumber == "":
		return "name, model and serialNumber are required"
	case in.BatteryCapacity <= 0:
		return "batteryCapacity must be positive"
	case in.CurrentBatteryLevel != nil && (*in.CurrentBatteryLevel < 0 || *in.CurrentBatteryLevel > 100):
		return "currentBatteryLevel must be between 0 and 100"
	case in.Status != "" && !in.Status.Valid():
		return "unknown drone status"
	case in.FlightHours < 0:
		return "flightHours must not be negative"
	}
	return ""
}

// droneUpdateInput is a partial drone edit; absent fields are left unchanged.
type droneUpdateInput struct {
	Name                *string             `json:"name"`
	Model               *string             `json:"model"`
	CurrentBatteryLevel *int                `json:"currentBatteryLevel"`
	Status              *models.DroneStatus `json:"status"`
	Location            *string             `json:"location"`
	FlightHours         *float64            `json:"flightHours"`
	HealthStatus        *string             `json:"healthStatus"`
}

// pathID returns the {id} route variable. Routes constrain it to digits.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleListDrones(w http.ResponseWriter, r *http.Request) {
	drones, err := s.store.ListDrones(r.Context())
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(drones))
}

func (s *Server) handleGetDrone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Drone not found")
		return
	}
	d, err := s.store.GetDrone(r.Context(), id)
	if err != nil {
		s.respondErr(w, err, "Drone not found")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateDrone(w http.ResponseWriter, r *http.Request) {
	var in droneInput
	if err := decodeBody(w, r, &in, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drone data")
		return
	}
	if msg := in.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	level := 100
	if in.CurrentBatteryLevel != nil {
		level = *in.CurrentBatteryLevel
	}
	d, err := s.store.Drones.Create(r.Context(), &models.Drone{
		Name:                in.Name,
		Model:               in.Model,
		SerialNumber:        in.SerialNumber,
		BatteryCapacity:     in.BatteryCapacity,
		CurrentBatteryLevel: level,
		Status:              in.Status,
		Location:            in.Location,
		FlightHours:         in.FlightHours,
		HealthStatus:        in.HealthStatus,
	})
	if err != nil {
		s.respondErr(w, err, "")
		return
	}
	s.registry.BroadcastDrone(d)
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDrone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Drone not found")
		return
	}
	var in droneUpdateInput
	if err := decodeBody(w, r, &in, false); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to update drone")
		return
	}
	d, err := s.engine.UpdateDrone(r.Context(), id, models.DroneUpdate{
		Name:                in.Name,
		Model:               in.Model,
		CurrentBatteryLevel: in.CurrentBatteryLevel,
		Status:              in.Status,
		Location:            in.Location,
		FlightHours:         in.FlightHours,
		HealthStatus:        in.HealthStatus,
	})
	if err != nil {
		s.respondErr(w, err, "Drone not found")
		return
	}
	s.registry.BroadcastDrone(d)
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDrone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, "Drone not found")
		return
	}
	if err := s.engine.DeleteDrone(r.Context(), id); err != nil {
		s.respondErr(w, err, "Drone not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
