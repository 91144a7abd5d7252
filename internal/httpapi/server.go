// Package httpapi exposes drones, missions and their logs and telemetry over
// REST, and mounts the observer endpoints next to them.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"droneSurveyManagement/internal/broadcast"
	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/internal/sim"
	"droneSurveyManagement/repository"
)

const maxBodyBytes = 1 << 20

// Server represents the API server
type Server struct {
	store    *repository.Store
	engine   *mission.Engine
	registry *broadcast.Registry
	rand     sim.Rand
	logger   *slog.Logger
	router   *mux.Router
}

// NewServer creates a new API server
func NewServer(store *repository.Store, engine *mission.Engine, registry *broadcast.Registry, r sim.Rand, logger *slog.Logger) *Server {
	s := &Server{
		store:    store,
		engine:   engine,
		registry: registry,
		rand:     r,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonMiddleware)

	api.HandleFunc("/drones", s.handleListDrones).Methods(http.MethodGet)
	api.HandleFunc("/drones", s.handleCreateDrone).Methods(http.MethodPost)
	api.HandleFunc("/drones/{id:[0-9]+}", s.handleGetDrone).Methods(http.MethodGet)
	api.HandleFunc("/drones/{id:[0-9]+}", s.handleUpdateDrone).Methods(http.MethodPatch)
	api.HandleFunc("/drones/{id:[0-9]+}", s.handleDeleteDrone).Methods(http.MethodDelete)

	api.HandleFunc("/missions", s.handleListMissions).Methods(http.MethodGet)
	api.HandleFunc("/missions", s.handleCreateMission).Methods(http.MethodPost)
	api.HandleFunc("/missions/active", s.handleActiveMissions).Methods(http.MethodGet)
	api.HandleFunc("/missions/{id:[0-9]+}", s.handleGetMission).Methods(http.MethodGet)
	api.HandleFunc("/missions/{id:[0-9]+}/status", s.handleUpdateStatus).Methods(http.MethodPatch)
	api.HandleFunc("/missions/{id:[0-9]+}/progress", s.handleUpdateProgress).Methods(http.MethodPatch)
	api.HandleFunc("/missions/{id:[0-9]+}/logs", s.handleListLogs).Methods(http.MethodGet)
	api.HandleFunc("/missions/{id:[0-9]+}/logs", s.handleCreateLog).Methods(http.MethodPost)
	api.HandleFunc("/missions/{id:[0-9]+}/telemetry", s.handleListTelemetry).Methods(http.MethodGet)

	api.HandleFunc("/simulate/telemetry", s.handleSimulateTelemetry).Methods(http.MethodPost)
	api.HandleFunc("/simulate/log", s.handleSimulateLog).Methods(http.MethodPost)
}

// Mount serves h at path, outside the JSON API.
func (s *Server) Mount(path string, h http.Handler) {
	s.router.Handle(path, h)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Message: message})
}

// respondErr maps engine and repository errors to a status code. notFound
// is the message used when the referenced entity does not exist.
func (s *Server) respondErr(w http.ResponseWriter, err error, notFound string) {
	var verr *mission.ValidationError
	var serr *mission.StorageError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, notFound)
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mission.ErrInvalidTransition),
		errors.Is(err, mission.ErrDroneUnavailable),
		errors.Is(err, mission.ErrDroneInUse),
		errors.Is(err, mission.ErrProgressRegression),
		errors.Is(err, repository.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &serr):
		s.logger.Warn("storage unavailable", slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "Temporarily unable to process request")
	default:
		s.logger.Error("request failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy", "observers": s.registry.Len()})
}

// emptyIfNil keeps list endpoints returning [] instead of null.
func emptyIfNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
