package mission

import (
	"context"
	"fmt"
	"log/slog"

	"droneSurveyManagement/models"
)

// UpdateDrone applies an operator edit to a drone. On Mission is only set
// and cleared by mission transitions, so edits cannot enter it and cannot
// change the status of a drone that is flying.
func (e *Engine) UpdateDrone(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error) {
	var bad []string
	if u.Name != nil && *u.Name == "" {
		bad = append(bad, "name")
	}
	if u.Model != nil && *u.Model == "" {
		bad = append(bad, "model")
	}
	if u.CurrentBatteryLevel != nil && (*u.CurrentBatteryLevel < 0 || *u.CurrentBatteryLevel > 100) {
		bad = append(bad, "currentBatteryLevel")
	}
	if u.Status != nil && (!u.Status.Valid() || *u.Status == models.DroneStatusOnMission) {
		bad = append(bad, "status")
	}
	if u.FlightHours != nil && *u.FlightHours < 0 {
		bad = append(bad, "flightHours")
	}
	if u.LastMissionID != nil {
		bad = append(bad, "lastMission")
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}

	unlock := e.drones.Lock(id)
	defer unlock()
	d, err := e.repo.GetDrone(ctx, id)
	if err != nil {
		return nil, storageErr("get drone", err)
	}
	if u.Status != nil && *u.Status != d.Status && d.Status == models.DroneStatusOnMission {
		return nil, fmt.Errorf("%w: drone %d", ErrDroneInUse, id)
	}
	d, err = e.repo.UpdateDrone(ctx, id, u)
	if err != nil {
		return nil, storageErr("update drone", err)
	}
	return d, nil
}

// DeleteDrone removes a drone that is not flying a mission.
func (e *Engine) DeleteDrone(ctx context.Context, id int64) error {
	unlock := e.drones.Lock(id)
	defer unlock()
	d, err := e.repo.GetDrone(ctx, id)
	if err != nil {
		return storageErr("get drone", err)
	}
	if d.Status == models.DroneStatusOnMission {
		return fmt.Errorf("%w: drone %d", ErrDroneInUse, id)
	}
	if err := e.repo.DeleteDrone(ctx, id); err != nil {
		return storageErr("delete drone", err)
	}
	e.logger.Info("drone deleted", slog.Int64("drone", id))
	return nil
}
