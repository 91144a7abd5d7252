package mission

import (
	"errors"
	"fmt"
	"strings"

	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

var (
	// ErrInvalidTransition is returned when the target status is not
	// reachable from the mission's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDroneUnavailable is returned when the assigned drone cannot fly the mission.
	ErrDroneUnavailable = errors.New("drone unavailable")
	// ErrDroneInUse is returned when a change would pull a drone out from
	// under the mission it is flying.
	ErrDroneInUse = errors.New("drone is on a mission")
	// ErrProgressRegression is returned when a progress update would move an
	// in-progress mission backwards.
	ErrProgressRegression = errors.New("progress cannot decrease while mission is in progress")
)

// ValidationError lists the fields of a payload that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid " + strings.Join(e.Fields, ", ")
}

// StorageError wraps a failed repository call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err as a StorageError unless it already reports a missing row.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func invalidTransition(from, to models.MissionStatus) error {
	return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
}
