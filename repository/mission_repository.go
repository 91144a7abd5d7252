package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"droneSurveyManagement/models"
)

const missionColumns = `id, name, mission_type, status, location, area, drone_id, created_at, scheduled_at, started_at, completed_at, duration, flight_path, actual_path, progress, altitude, speed, image_overlap, pattern_type, sensors, waypoints, data_frequency`

// MissionRepository persists missions. Paths are stored as GeoJSON text and
// validated on the way in; a stored flight path that fails to parse is
// surfaced as an empty Path so the mission stays readable.
type MissionRepository struct {
	db DBTX
}

// NewMissionRepository creates a new MissionRepository.
func NewMissionRepository(db DBTX) *MissionRepository {
	return &MissionRepository{db: db}
}

func scanMission(row rowScanner) (*models.Mission, error) {
	var (
		m                                       models.Mission
		status, createdAt, flightPath           string
		droneID, duration, overlap, frequency   sql.NullInt64
		scheduledAt, startedAt, completedAt     sql.NullString
		actualPath, pattern, sensors, waypoints sql.NullString
		altitude, speed                         sql.NullFloat64
	)
	err := row.Scan(&m.ID, &m.Name, &m.MissionType, &status, &m.Location, &m.Area, &droneID, &createdAt,
		&scheduledAt, &startedAt, &completedAt, &duration, &flightPath, &actualPath, &m.Progress,
		&altitude, &speed, &overlap, &pattern, &sensors, &waypoints, &frequency)
	if err != nil {
		return nil, err
	}
	m.Status = models.MissionStatus(status)
	m.DroneID = int64Ptr(droneID)
	m.Duration = int64Ptr(duration)
	m.Altitude = floatPtr(altitude)
	m.Speed = floatPtr(speed)
	m.ImageOverlap = intPtr(overlap)
	m.PatternType = stringPtr(pattern)
	m.DataFrequency = intPtr(frequency)

	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("mission %d created_at: %w", m.ID, err)
	}
	if m.ScheduledAt, err = parseNullTime(scheduledAt); err != nil {
		return nil, fmt.Errorf("mission %d scheduled_at: %w", m.ID, err)
	}
	if m.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("mission %d started_at: %w", m.ID, err)
	}
	if m.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("mission %d completed_at: %w", m.ID, err)
	}
	if p, err := models.ParsePath([]byte(flightPath)); err == nil {
		m.FlightPath = p
	}
	if actualPath.Valid {
		if p, err := models.ParsePath([]byte(actualPath.String)); err == nil {
			m.ActualPath = &p
		}
	}
	if m.Sensors, err = decodeJSONColumn[string](sensors); err != nil {
		return nil, fmt.Errorf("mission %d sensors: %w", m.ID, err)
	}
	if m.Waypoints, err = decodeJSONColumn[models.Point](waypoints); err != nil {
		return nil, fmt.Errorf("mission %d waypoints: %w", m.ID, err)
	}
	return &m, nil
}

func encodePath(p models.Path) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create inserts a new mission. Status defaults to Planned; progress starts at 0.
func (r *MissionRepository) Create(ctx context.Context, m *models.Mission) (*models.Mission, error) {
	if m == nil {
		return nil, errors.New("mission is nil")
	}
	if m.Status == "" {
		m.Status = models.MissionStatusPlanned
	}
	if m.FlightPath.Len() == 0 {
		return nil, fmt.Errorf("flight path: %w", models.ErrEmptyPath)
	}
	flightPath, err := encodePath(m.FlightPath)
	if err != nil {
		return nil, fmt.Errorf("flight path: %w", err)
	}
	sensors, err := jsonColumn(m.Sensors)
	if err != nil {
		return nil, err
	}
	waypoints, err := jsonColumn(m.Waypoints)
	if err != nil {
		return nil, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO missions (name, mission_type, status, location, area, drone_id, created_at, scheduled_at, flight_path, progress, altitude, speed, image_overlap, pattern_type, sensors, waypoints, data_frequency) VALUES (?,?,?,?,?,?,?,?,?,0,?,?,?,?,?,?,?)`,
		m.Name, m.MissionType, string(m.Status), m.Location, m.Area, nullInt64(m.DroneID), formatTime(m.CreatedAt),
		nullTime(m.ScheduledAt), flightPath, nullFloat(m.Altitude), nullFloat(m.Speed), nullInt(m.ImageOverlap),
		nullString(m.PatternType), sensors, waypoints, nullInt(m.DataFrequency))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("created mission not found: id=%d", id)
	}
	return created, nil
}

// GetByID fetches a mission by its ID, or nil when no row matches.
func (r *MissionRepository) GetByID(ctx context.Context, id int64) (*models.Mission, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	m, err := scanMission(r.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// List returns all missions ordered by id.
func (r *MissionRepository) List(ctx context.Context) ([]models.Mission, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMissionRows(rows)
}

// ListByStatus returns missions in the given status ordered by id.
func (r *MissionRepository) ListByStatus(ctx context.Context, status models.MissionStatus) ([]models.Mission, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE status = ? ORDER BY id ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMissionRows(rows)
}

func scanMissionRows(rows *sql.Rows) ([]models.Mission, error) {
	var out []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateFields applies the non-nil fields of u and returns the updated mission,
// or nil when no row matches.
func (r *MissionRepository) UpdateFields(ctx context.Context, id int64, u models.MissionUpdate) (*models.Mission, error) {
	set := make([]string, 0, 7)
	args := make([]any, 0, 8)
	if u.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.DroneID != nil {
		set = append(set, "drone_id = ?")
		args = append(args, *u.DroneID)
	}
	if u.StartedAt != nil {
		set = append(set, "started_at = ?")
		args = append(args, formatTime(*u.StartedAt))
	}
	if u.CompletedAt != nil {
		set = append(set, "completed_at = ?")
		args = append(args, formatTime(*u.CompletedAt))
	}
	if u.Duration != nil {
		set = append(set, "duration = ?")
		args = append(args, *u.Duration)
	}
	if u.Progress != nil {
		set = append(set, "progress = ?")
		args = append(args, *u.Progress)
	}
	if u.ActualPath != nil {
		p, err := encodePath(*u.ActualPath)
		if err != nil {
			return nil, fmt.Errorf("actual path: %w", err)
		}
		set = append(set, "actual_path = ?")
		args = append(args, p)
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	tctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	args = append(args, id)
	res, err := r.db.ExecContext(tctx, `UPDATE missions SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}
