package repository

import (
	"context"
	"errors"
	"time"

	"droneSurveyManagement/models"
)

// LogRepository stores append-only mission log entries.
type LogRepository struct {
	db DBTX
}

func NewLogRepository(db DBTX) *LogRepository {
	return &LogRepository{db: db}
}

// Append inserts a log entry, stamping it with the current time when unset.
func (r *LogRepository) Append(ctx context.Context, l *models.MissionLog) (*models.MissionLog, error) {
	if l == nil {
		return nil, errors.New("mission log is nil")
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO mission_logs (mission_id, timestamp, log_type, message) VALUES (?,?,?,?)`,
		l.MissionID, formatTime(l.Timestamp), string(l.LogType), l.Message)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	l.ID = id
	return l, nil
}

// ListByMission returns a mission's log, newest first.
func (r *LogRepository) ListByMission(ctx context.Context, missionID int64) ([]models.MissionLog, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, mission_id, timestamp, log_type, message FROM mission_logs WHERE mission_id = ? ORDER BY timestamp DESC, id DESC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MissionLog
	for rows.Next() {
		var l models.MissionLog
		var ts, logType string
		if err := rows.Scan(&l.ID, &l.MissionID, &ts, &logType, &l.Message); err != nil {
			return nil, err
		}
		if l.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		l.LogType = models.LogType(logType)
		out = append(out, l)
	}
	return out, rows.Err()
}
