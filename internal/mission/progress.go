package mission

import (
	"context"
	"fmt"

	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Step is what an Advancer proposes for one mission on one tick. The engine
// fills in mission ids and timestamps.
type Step struct {
	Telemetry  *models.Telemetry
	Logs       []models.MissionLog
	Progress   float64
	ActualPath *models.Path
}

// Advancer moves an in-progress mission forward. The simulator implements
// it; a real telemetry source can implement it too. ok is false when the
// mission cannot be advanced.
type Advancer interface {
	Advance(m *models.Mission) (step Step, ok bool)
}

// Advance runs adv against the current state of mission id and persists the
// step. Missions that are not InProgress, or that adv declines, yield a nil
// Result and no error. A step that reaches the completion threshold also
// completes the mission under the same lock.
func (e *Engine) Advance(ctx context.Context, id int64, adv Advancer) (*Result, error) {
	unlock := e.missions.Lock(id)
	defer unlock()

	m, err := e.repo.GetMission(ctx, id)
	if err != nil {
		return nil, storageErr("get mission", err)
	}
	if m.Status != models.MissionStatusInProgress {
		return nil, nil
	}
	step, ok := adv.Advance(m)
	if !ok {
		return nil, nil
	}

	actual := step.ActualPath
	if actual != nil && actual.Len() > m.FlightPath.Len() {
		p := actual.Prefix(m.FlightPath.Len())
		actual = &p
	}
	progress := clampProgress(step.Progress)
	if progress < m.Progress {
		progress = m.Progress
	}

	res := &Result{}
	err = e.inTx(ctx, m.DroneID, func(tx repository.Repository) error {
		if step.Telemetry != nil {
			t := *step.Telemetry
			t.MissionID = m.ID
			if t.Timestamp.IsZero() {
				t.Timestamp = e.now()
			}
			saved, err := tx.AppendTelemetry(ctx, &t)
			if err != nil {
				return storageErr("append telemetry", err)
			}
			res.Telemetry = saved
		}
		for _, l := range step.Logs {
			saved, err := e.appendLog(ctx, tx, m.ID, l.LogType, l.Message)
			if err != nil {
				return err
			}
			res.addLog(saved)
		}
		return e.applyProgressTx(ctx, tx, m, progress, actual, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateProgress sets a mission's progress and, optionally, its actual path.
// It shares the serialization point of the simulator and telemetry ingestion.
func (e *Engine) UpdateProgress(ctx context.Context, id int64, progress float64, actual *models.Path) (*Result, error) {
	var bad []string
	if progress < 0 || progress > 100 {
		bad = append(bad, "progress")
	}
	if actual != nil && actual.Validate() != nil {
		bad = append(bad, "actualPath")
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}

	unlock := e.missions.Lock(id)
	defer unlock()

	m, err := e.repo.GetMission(ctx, id)
	if err != nil {
		return nil, storageErr("get mission", err)
	}
	if m.Status.Terminal() {
		return nil, fmt.Errorf("%w: mission %d is %s", ErrInvalidTransition, id, m.Status)
	}
	if m.Status == models.MissionStatusInProgress && progress < m.Progress {
		return nil, fmt.Errorf("%w: %v < %v", ErrProgressRegression, progress, m.Progress)
	}
	if actual != nil && actual.Len() > m.FlightPath.Len() {
		return nil, &ValidationError{Fields: []string{"actualPath"}}
	}

	res := &Result{}
	err = e.inTx(ctx, m.DroneID, func(tx repository.Repository) error {
		return e.applyProgressTx(ctx, tx, m, progress, actual, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyProgressTx persists progress and actual, then completes the mission
// if it is InProgress and has reached the threshold.
func (e *Engine) applyProgressTx(ctx context.Context, tx repository.Repository, m *models.Mission, progress float64, actual *models.Path, res *Result) error {
	updated, err := tx.UpdateMissionFields(ctx, m.ID, models.MissionUpdate{Progress: &progress, ActualPath: actual})
	if err != nil {
		return storageErr("update progress", err)
	}
	res.Mission = updated
	if updated.Status == models.MissionStatusInProgress && progress >= e.settings.CompletionThreshold {
		return e.transitionTx(ctx, tx, updated, models.MissionStatusCompleted, e.settings.CompletionDrain, res)
	}
	return nil
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
