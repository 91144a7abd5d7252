// Package mission owns every mutation of mission and drone state: status
// transitions, progress steps, telemetry ingestion and battery changes.
// Mutations of one mission are serialized through a per-mission lock, drone
// writes through a per-drone lock taken after it, and the writes of one
// mutation commit in a single repository transaction.
package mission

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Settings carries the tunable simulation constants.
type Settings struct {
	ProgressIncrement   float64 // progress added per inbound telemetry sample
	CompletionThreshold float64 // progress at which a mission completes
	CompletionDrain     int     // battery drained from the drone on completion
	BatteryFloor        int     // drains never take a battery below this
}

// DefaultSettings mirrors the reference simulation constants.
func DefaultSettings() Settings {
	return Settings{
		ProgressIncrement:   0.5,
		CompletionThreshold: 99.5,
		CompletionDrain:     20,
		BatteryFloor:        10,
	}
}

// Result is the state produced by one mutation. Callers broadcast it.
type Result struct {
	Mission   *models.Mission
	Drone     *models.Drone // set when the mutation changed a drone
	Logs      []models.MissionLog
	Telemetry *models.Telemetry
	Completed bool
}

func (r *Result) addLog(l *models.MissionLog) {
	if l != nil {
		r.Logs = append(r.Logs, *l)
	}
}

// Engine applies mission state changes against a Repository.
type Engine struct {
	repo     repository.Repository
	missions *LockTable
	drones   *LockTable
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(repo repository.Repository, settings Settings, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		missions: NewLockTable(),
		drones:   NewLockTable(),
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// legalTransitions lists every permitted edge of the mission lifecycle.
var legalTransitions = map[models.MissionStatus][]models.MissionStatus{
	models.MissionStatusPlanned:    {models.MissionStatusPending},
	models.MissionStatusPending:    {models.MissionStatusInProgress},
	models.MissionStatusInProgress: {models.MissionStatusCompleted, models.MissionStatusAborted, models.MissionStatusPaused},
	models.MissionStatusPaused:     {models.MissionStatusInProgress},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to models.MissionStatus) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// inTx runs fn in one repository transaction while holding the lock of
// droneID, when set. The caller holds the mission lock. Locks are only taken
// before the transaction begins, so a transaction never waits on a lock
// while it holds the database.
func (e *Engine) inTx(ctx context.Context, droneID *int64, fn func(tx repository.Repository) error) error {
	if droneID != nil {
		unlock := e.drones.Lock(*droneID)
		defer unlock()
	}
	var fnErr error
	err := e.repo.WithTx(ctx, func(tx repository.Repository) error {
		fnErr = fn(tx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return storageErr("commit", err)
}

// Transition moves mission id to target and applies the side effects of
// entering or leaving InProgress. The mission, drone and log writes commit
// together.
func (e *Engine) Transition(ctx context.Context, id int64, target models.MissionStatus) (*Result, error) {
	if !target.Valid() {
		return nil, &ValidationError{Fields: []string{"status"}}
	}
	unlock := e.missions.Lock(id)
	defer unlock()

	m, err := e.repo.GetMission(ctx, id)
	if err != nil {
		return nil, storageErr("get mission", err)
	}
	if !CanTransition(m.Status, target) {
		return nil, invalidTransition(m.Status, target)
	}
	res := &Result{}
	err = e.inTx(ctx, m.DroneID, func(tx repository.Repository) error {
		return e.transitionTx(ctx, tx, m, target, 0, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Start assigns droneID to a Pending mission and moves it to InProgress.
// It is the dispatcher's entry point.
func (e *Engine) Start(ctx context.Context, missionID, droneID int64) (*Result, error) {
	unlock := e.missions.Lock(missionID)
	defer unlock()

	m, err := e.repo.GetMission(ctx, missionID)
	if err != nil {
		return nil, storageErr("get mission", err)
	}
	if m.Status != models.MissionStatusPending {
		return nil, invalidTransition(m.Status, models.MissionStatusInProgress)
	}

	res := &Result{}
	err = e.inTx(ctx, &droneID, func(tx repository.Repository) error {
		d, err := tx.GetDrone(ctx, droneID)
		if err != nil {
			return storageErr("get drone", err)
		}
		if d.Status != models.DroneStatusAvailable {
			return fmt.Errorf("%w: drone %d is %s", ErrDroneUnavailable, droneID, d.Status)
		}
		assigned := m
		if m.DroneID == nil || *m.DroneID != droneID {
			assigned, err = tx.UpdateMissionFields(ctx, missionID, models.MissionUpdate{DroneID: &droneID})
			if err != nil {
				return storageErr("assign drone", err)
			}
		}
		if err := e.transitionTx(ctx, tx, assigned, models.MissionStatusInProgress, 0, res); err != nil {
			return err
		}
		l, err := e.appendLog(ctx, tx, missionID, models.LogTypeInfo, "Mission started with drone "+d.Name)
		if err != nil {
			return err
		}
		res.addLog(l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// transitionTx applies target to m through tx. The caller holds m's lock and
// the lock of its drone. drain is battery taken from the drone when the
// mission completes.
func (e *Engine) transitionTx(ctx context.Context, tx repository.Repository, m *models.Mission, target models.MissionStatus, drain int, res *Result) error {
	if !CanTransition(m.Status, target) {
		return invalidTransition(m.Status, target)
	}
	from := m.Status
	now := e.now()
	upd := models.MissionUpdate{Status: &target}

	switch {
	case target == models.MissionStatusInProgress:
		if m.StartedAt == nil {
			upd.StartedAt = &now
		}
		if m.DroneID != nil {
			d, err := tx.GetDrone(ctx, *m.DroneID)
			if err != nil {
				return storageErr("get drone", err)
			}
			resuming := d.Status == models.DroneStatusOnMission && d.LastMissionID != nil && *d.LastMissionID == m.ID
			if d.Status != models.DroneStatusAvailable && !resuming {
				return fmt.Errorf("%w: drone %d is %s", ErrDroneUnavailable, d.ID, d.Status)
			}
			onMission := models.DroneStatusOnMission
			d, err = tx.UpdateDrone(ctx, d.ID, models.DroneUpdate{Status: &onMission, LastMissionID: &m.ID})
			if err != nil {
				return storageErr("update drone", err)
			}
			res.Drone = d
		}
		updated, err := tx.UpdateMissionFields(ctx, m.ID, upd)
		if err != nil {
			return storageErr("update mission", err)
		}
		res.Mission = updated
		msg := "Mission initiated"
		if from == models.MissionStatusPaused {
			msg = "Mission resumed"
		}
		l, err := e.appendLog(ctx, tx, m.ID, models.LogTypeStart, msg)
		if err != nil {
			return err
		}
		res.addLog(l)

	case target.Terminal():
		upd.CompletedAt = &now
		var hours float64
		if m.StartedAt != nil {
			elapsed := now.Sub(*m.StartedAt)
			secs := int64(math.Floor(elapsed.Seconds()))
			if secs < 0 {
				secs = 0
			}
			upd.Duration = &secs
			hours = float64(secs) / 3600
		}
		if m.DroneID != nil {
			d, err := e.releaseDrone(ctx, tx, *m.DroneID, hours, drain)
			if err != nil {
				return err
			}
			res.Drone = d
		}
		updated, err := tx.UpdateMissionFields(ctx, m.ID, upd)
		if err != nil {
			return storageErr("update mission", err)
		}
		res.Mission = updated
		logType, msg := models.LogTypeInfo, "Mission completed"
		if target == models.MissionStatusAborted {
			logType, msg = models.LogTypeWarn, "Mission aborted"
		}
		l, err := e.appendLog(ctx, tx, m.ID, logType, msg)
		if err != nil {
			return err
		}
		res.addLog(l)
		res.Completed = target == models.MissionStatusCompleted

	default:
		updated, err := tx.UpdateMissionFields(ctx, m.ID, upd)
		if err != nil {
			return storageErr("update mission", err)
		}
		res.Mission = updated
		if target == models.MissionStatusPaused {
			l, err := e.appendLog(ctx, tx, m.ID, models.LogTypeInfo, "Mission paused")
			if err != nil {
				return err
			}
			res.addLog(l)
		}
	}

	e.logger.Info("mission transition",
		slog.Int64("mission", m.ID),
		slog.String("from", string(from)),
		slog.String("to", string(target)))
	return nil
}

// releaseDrone returns a drone to Available, credits its flight hours and
// applies any completion drain. The caller holds the drone's lock.
func (e *Engine) releaseDrone(ctx context.Context, tx repository.Repository, droneID int64, hours float64, drain int) (*models.Drone, error) {
	d, err := tx.GetDrone(ctx, droneID)
	if err != nil {
		return nil, storageErr("get drone", err)
	}
	available := models.DroneStatusAvailable
	flightHours := d.FlightHours + hours
	upd := models.DroneUpdate{Status: &available, FlightHours: &flightHours}
	if drain > 0 {
		level := drainedLevel(d.CurrentBatteryLevel, float64(drain), e.settings.BatteryFloor)
		upd.CurrentBatteryLevel = &level
	}
	d, err = tx.UpdateDrone(ctx, droneID, upd)
	if err != nil {
		return nil, storageErr("update drone", err)
	}
	return d, nil
}

// drainedLevel subtracts amount from level without going below floor. A level
// already at or below floor is left as is.
func drainedLevel(level int, amount float64, floor int) int {
	if level <= floor {
		return level
	}
	next := int(math.Floor(float64(level) - amount))
	if next < floor {
		next = floor
	}
	if next < 0 {
		next = 0
	}
	return next
}

// DrainBattery lowers an Available drone's battery by amount, floored at
// the configured floor. It returns nil without error when nothing changed.
func (e *Engine) DrainBattery(ctx context.Context, droneID int64, amount float64) (*models.Drone, error) {
	unlock := e.drones.Lock(droneID)
	defer unlock()
	d, err := e.repo.GetDrone(ctx, droneID)
	if err != nil {
		return nil, storageErr("get drone", err)
	}
	if d.Status != models.DroneStatusAvailable || d.CurrentBatteryLevel <= 0 {
		return nil, nil
	}
	level := drainedLevel(d.CurrentBatteryLevel, amount, e.settings.BatteryFloor)
	if level == d.CurrentBatteryLevel {
		return nil, nil
	}
	d, err = e.repo.UpdateDrone(ctx, droneID, models.DroneUpdate{CurrentBatteryLevel: &level})
	if err != nil {
		return nil, storageErr("update drone", err)
	}
	return d, nil
}

func (e *Engine) appendLog(ctx context.Context, repo repository.Repository, missionID int64, t models.LogType, msg string) (*models.MissionLog, error) {
	l, err := repo.AppendMissionLog(ctx, &models.MissionLog{MissionID: missionID, Timestamp: e.now(), LogType: t, Message: msg})
	if err != nil {
		return nil, storageErr("append log", err)
	}
	return l, nil
}

// AppendLog validates and records a log entry for an existing mission.
func (e *Engine) AppendLog(ctx context.Context, missionID int64, t models.LogType, msg string) (*models.MissionLog, error) {
	var bad []string
	if !t.Valid() {
		bad = append(bad, "logType")
	}
	if msg == "" {
		bad = append(bad, "message")
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}
	if _, err := e.repo.GetMission(ctx, missionID); err != nil {
		return nil, storageErr("get mission", err)
	}
	return e.appendLog(ctx, e.repo, missionID, t, msg)
}
