package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"droneSurveyManagement/models"
)

const droneColumns = `id, name, model, serial_number, battery_capacity, current_battery_level, status, location, flight_hours, health_status, last_mission`

type DroneRepository struct {
	db DBTX
}

func NewDroneRepository(db DBTX) *DroneRepository {
	return &DroneRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrone(row rowScanner) (*models.Drone, error) {
	var d models.Drone
	var status string
	var lastMission sql.NullInt64
	if err := row.Scan(&d.ID, &d.Name, &d.Model, &d.SerialNumber, &d.BatteryCapacity, &d.CurrentBatteryLevel,
		&status, &d.Location, &d.FlightHours, &d.HealthStatus, &lastMission); err != nil {
		return nil, err
	}
	d.Status = models.DroneStatus(status)
	d.LastMissionID = int64Ptr(lastMission)
	return &d, nil
}

// Create inserts a new drone. Status defaults to Available and health to "good".
func (r *DroneRepository) Create(ctx context.Context, d *models.Drone) (*models.Drone, error) {
	if d == nil {
		return nil, errors.New("drone is nil")
	}
	if d.Status == "" {
		d.Status = models.DroneStatusAvailable
	}
	if d.HealthStatus == "" {
		d.HealthStatus = "good"
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO drones (name, model, serial_number, battery_capacity, current_battery_level, status, location, flight_hours, health_status, last_mission) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.Name, d.Model, d.SerialNumber, d.BatteryCapacity, d.CurrentBatteryLevel, string(d.Status), d.Location, d.FlightHours, d.HealthStatus, nullInt64(d.LastMissionID))
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, fmt.Errorf("serial number %q: %w", d.SerialNumber, ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

// GetByID returns the drone, or nil when no row matches.
func (r *DroneRepository) GetByID(ctx context.Context, id int64) (*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDrone(r.db.QueryRowContext(ctx, `SELECT `+droneColumns+` FROM drones WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// List returns every drone ordered by id.
func (r *DroneRepository) List(ctx context.Context) ([]models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies the non-nil fields of u and returns the updated drone,
// or nil when no row matches.
func (r *DroneRepository) Update(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error) {
	set := make([]string, 0, 8)
	args := make([]any, 0, 9)
	if u.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Model != nil {
		set = append(set, "model = ?")
		args = append(args, *u.Model)
	}
	if u.CurrentBatteryLevel != nil {
		set = append(set, "current_battery_level = ?")
		args = append(args, *u.CurrentBatteryLevel)
	}
	if u.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.Location != nil {
		set = append(set, "location = ?")
		args = append(args, *u.Location)
	}
	if u.FlightHours != nil {
		set = append(set, "flight_hours = ?")
		args = append(args, *u.FlightHours)
	}
	if u.HealthStatus != nil {
		set = append(set, "health_status = ?")
		args = append(args, *u.HealthStatus)
	}
	if u.LastMissionID != nil {
		set = append(set, "last_mission = ?")
		args = append(args, *u.LastMissionID)
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	tctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	args = append(args, id)
	res, err := r.db.ExecContext(tctx, `UPDATE drones SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// Delete removes a drone. Missions flown by it keep their history with the
// drone reference cleared.
func (r *DroneRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM drones WHERE id = ?`, id)
	return err
}
