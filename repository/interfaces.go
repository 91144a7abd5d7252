package repository

import (
	"context"
	"database/sql"
	"errors"

	"droneSurveyManagement/models"
)

// ErrNotFound is returned by Store when a referenced drone or mission does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with a unique column.
var ErrConflict = errors.New("already exists")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is the narrow storage surface consumed by the mission engine,
// the simulators and the broadcaster.
type Repository interface {
	GetDrone(ctx context.Context, id int64) (*models.Drone, error)
	ListDrones(ctx context.Context) ([]models.Drone, error)
	UpdateDrone(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error)
	DeleteDrone(ctx context.Context, id int64) error
	GetMission(ctx context.Context, id int64) (*models.Mission, error)
	ListMissions(ctx context.Context) ([]models.Mission, error)
	ListMissionsByStatus(ctx context.Context, status models.MissionStatus) ([]models.Mission, error)
	UpdateMissionFields(ctx context.Context, id int64, u models.MissionUpdate) (*models.Mission, error)
	AppendTelemetry(ctx context.Context, t *models.Telemetry) (*models.Telemetry, error)
	AppendMissionLog(ctx context.Context, l *models.MissionLog) (*models.MissionLog, error)

	// WithTx runs fn against a Repository whose writes commit together, or
	// not at all when fn returns an error.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// DroneRepositoryI defines operations on Drone entities.
type DroneRepositoryI interface {
	Create(ctx context.Context, d *models.Drone) (*models.Drone, error)
	GetByID(ctx context.Context, id int64) (*models.Drone, error)
	List(ctx context.Context) ([]models.Drone, error)
	Update(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error)
	Delete(ctx context.Context, id int64) error
}

// MissionRepositoryI defines operations on Mission entities.
type MissionRepositoryI interface {
	Create(ctx context.Context, m *models.Mission) (*models.Mission, error)
	GetByID(ctx context.Context, id int64) (*models.Mission, error)
	List(ctx context.Context) ([]models.Mission, error)
	ListByStatus(ctx context.Context, status models.MissionStatus) ([]models.Mission, error)
	UpdateFields(ctx context.Context, id int64, u models.MissionUpdate) (*models.Mission, error)
}
