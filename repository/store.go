package repository

import (
	"context"
	"database/sql"
	"fmt"

	"droneSurveyManagement/models"
)

// Store bundles the per-entity repositories behind the Repository interface.
// Unlike the entity repositories, Store reports missing rows as ErrNotFound.
type Store struct {
	db *sql.DB // nil inside a transaction

	Drones    *DroneRepository
	Missions  *MissionRepository
	Telemetry *TelemetryRepository
	Logs      *LogRepository
}

var (
	_ Repository         = (*Store)(nil)
	_ DroneRepositoryI   = (*DroneRepository)(nil)
	_ MissionRepositoryI = (*MissionRepository)(nil)
)

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	s := newStore(db)
	s.db = db
	return s
}

func newStore(db DBTX) *Store {
	return &Store{
		Drones:    NewDroneRepository(db),
		Missions:  NewMissionRepository(db),
		Telemetry: NewTelemetryRepository(db),
		Logs:      NewLogRepository(db),
	}
}

func (s *Store) GetDrone(ctx context.Context, id int64) (*models.Drone, error) {
	d, err := s.Drones.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("drone %d: %w", id, ErrNotFound)
	}
	return d, nil
}

func (s *Store) ListDrones(ctx context.Context) ([]models.Drone, error) {
	return s.Drones.List(ctx)
}

func (s *Store) UpdateDrone(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error) {
	d, err := s.Drones.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("drone %d: %w", id, ErrNotFound)
	}
	return d, nil
}

// DeleteDrone removes a drone, returning ErrNotFound when it does not exist.
func (s *Store) DeleteDrone(ctx context.Context, id int64) error {
	if _, err := s.GetDrone(ctx, id); err != nil {
		return err
	}
	return s.Drones.Delete(ctx, id)
}

func (s *Store) GetMission(ctx context.Context, id int64) (*models.Mission, error) {
	m, err := s.Missions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("mission %d: %w", id, ErrNotFound)
	}
	return m, nil
}

func (s *Store) ListMissions(ctx context.Context) ([]models.Mission, error) {
	return s.Missions.List(ctx)
}

func (s *Store) ListMissionsByStatus(ctx context.Context, status models.MissionStatus) ([]models.Mission, error) {
	return s.Missions.ListByStatus(ctx, status)
}

func (s *Store) UpdateMissionFields(ctx context.Context, id int64, u models.MissionUpdate) (*models.Mission, error) {
	m, err := s.Missions.UpdateFields(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("mission %d: %w", id, ErrNotFound)
	}
	return m, nil
}

func (s *Store) AppendTelemetry(ctx context.Context, t *models.Telemetry) (*models.Telemetry, error) {
	return s.Telemetry.Append(ctx, t)
}

func (s *Store) AppendMissionLog(ctx context.Context, l *models.MissionLog) (*models.MissionLog, error) {
	return s.Logs.Append(ctx, l)
}

// WithTx runs fn inside one database transaction. Calls made through a
// transaction's Store join it instead of nesting.
func (s *Store) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(newStore(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
