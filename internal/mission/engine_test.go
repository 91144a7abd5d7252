package mission

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"droneSurveyManagement/internal/logging"
	"droneSurveyManagement/internal/testutil"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, name string) (*Engine, *repository.Store, *clock) {
	t.Helper()
	store := testutil.NewStore(t, name)
	e := NewEngine(store, DefaultSettings(), logging.Discard())
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e.now = c.now
	return e, store, c
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.MissionStatus
		want     bool
	}{
		{models.MissionStatusPlanned, models.MissionStatusPending, true},
		{models.MissionStatusPending, models.MissionStatusInProgress, true},
		{models.MissionStatusInProgress, models.MissionStatusCompleted, true},
		{models.MissionStatusInProgress, models.MissionStatusAborted, true},
		{models.MissionStatusInProgress, models.MissionStatusPaused, true},
		{models.MissionStatusPaused, models.MissionStatusInProgress, true},
		{models.MissionStatusCompleted, models.MissionStatusInProgress, false},
		{models.MissionStatusAborted, models.MissionStatusPending, false},
		{models.MissionStatusPlanned, models.MissionStatusInProgress, false},
		{models.MissionStatusPaused, models.MissionStatusAborted, false},
		{models.MissionStatusPending, models.MissionStatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%q, %q)=%v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransition_StartThenComplete(t *testing.T) {
	e, store, c := newTestEngine(t, "engine_start_complete")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "S1", 90, models.DroneStatusAvailable)
	m := testutil.SeedMission(t, store, "survey", models.MissionStatusPending, 10, &d.ID)
	started := c.now()

	res, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Mission.Status != models.MissionStatusInProgress || res.Mission.StartedAt == nil || !res.Mission.StartedAt.Equal(started) {
		t.Fatalf("unexpected started mission: %+v", res.Mission)
	}
	if res.Drone == nil || res.Drone.Status != models.DroneStatusOnMission || res.Drone.LastMissionID == nil || *res.Drone.LastMissionID != m.ID {
		t.Fatalf("drone not on mission: %+v", res.Drone)
	}
	if len(res.Logs) != 1 || res.Logs[0].LogType != models.LogTypeStart {
		t.Fatalf("expected START log, got %+v", res.Logs)
	}
	if res.Mission.Duration != nil {
		t.Fatalf("duration set before terminal transition: %v", *res.Mission.Duration)
	}

	c.advance(2*time.Hour + 30*time.Second + 700*time.Millisecond)
	res, err = e.Transition(ctx, m.ID, models.MissionStatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Mission.Duration == nil || *res.Mission.Duration != 7230 {
		t.Fatalf("duration=%v want 7230", res.Mission.Duration)
	}
	if res.Mission.CompletedAt == nil || !res.Mission.CompletedAt.Equal(c.now()) {
		t.Fatalf("completedAt=%v", res.Mission.CompletedAt)
	}
	if res.Drone.Status != models.DroneStatusAvailable || math.Abs(res.Drone.FlightHours-7230.0/3600) > 1e-9 {
		t.Fatalf("drone not released: %+v", res.Drone)
	}
	if res.Drone.CurrentBatteryLevel != 90 {
		t.Fatalf("manual completion drained battery: %d", res.Drone.CurrentBatteryLevel)
	}
	if len(res.Logs) != 1 || res.Logs[0].LogType != models.LogTypeInfo || res.Logs[0].Message != "Mission completed" {
		t.Fatalf("expected completion log, got %+v", res.Logs)
	}

	c.advance(time.Hour)
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Completed -> In Progress err=%v", err)
	}
	got, _ := store.GetMission(ctx, m.ID)
	if *got.Duration != 7230 {
		t.Fatalf("duration changed after completion: %d", *got.Duration)
	}
}

func TestTransition_AbortLogsWarn(t *testing.T) {
	e, store, _ := newTestEngine(t, "engine_abort")
	ctx := context.Background()
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPending, 3, nil)
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := e.Transition(ctx, m.ID, models.MissionStatusAborted)
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if res.Drone != nil || res.Completed {
		t.Fatalf("unexpected abort result: %+v", res)
	}
	if len(res.Logs) != 1 || res.Logs[0].LogType != models.LogTypeWarn {
		t.Fatalf("expected WARN log, got %+v", res.Logs)
	}
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Aborted -> Pending err=%v", err)
	}
}

func TestTransition_PauseResumeKeepsStartedAt(t *testing.T) {
	e, store, c := newTestEngine(t, "engine_pause")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "P1", 80, models.DroneStatusAvailable)
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPending, 3, &d.ID)
	first, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	c.advance(time.Minute)
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	c.advance(time.Minute)
	res, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !res.Mission.StartedAt.Equal(*first.Mission.StartedAt) {
		t.Fatalf("startedAt moved on resume: %v vs %v", res.Mission.StartedAt, first.Mission.StartedAt)
	}
	if res.Drone.Status != models.DroneStatusOnMission {
		t.Fatalf("drone status=%s", res.Drone.Status)
	}
}

func TestTransition_Errors(t *testing.T) {
	e, store, _ := newTestEngine(t, "engine_errors")
	ctx := context.Background()

	if _, err := e.Transition(ctx, 777, models.MissionStatusPending); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing mission err=%v", err)
	}
	var verr *ValidationError
	if _, err := e.Transition(ctx, 1, models.MissionStatus("Flying")); !errors.As(err, &verr) {
		t.Fatalf("unknown status err=%v", err)
	}

	d := testutil.SeedDrone(t, store, "M1", 90, models.DroneStatusMaintenance)
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPending, 3, &d.ID)
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress); !errors.Is(err, ErrDroneUnavailable) {
		t.Fatalf("maintenance drone err=%v", err)
	}
	got, _ := store.GetMission(ctx, m.ID)
	if got.Status != models.MissionStatusPending {
		t.Fatalf("mission changed despite unavailable drone: %s", got.Status)
	}
}

func TestTransition_ConcurrentCompletionAppliesOnce(t *testing.T) {
	e, store, c := newTestEngine(t, "engine_concurrent")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "C1", 90, models.DroneStatusAvailable)
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPending, 3, &d.ID)
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.advance(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Transition(ctx, m.ID, models.MissionStatusCompleted)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("succeeded=%d want 1", succeeded)
	}
	got, _ := store.GetDrone(ctx, d.ID)
	if math.Abs(got.FlightHours-1) > 1e-9 {
		t.Fatalf("flight hours=%v want 1", got.FlightHours)
	}
	if e.missions.Len() != 0 {
		t.Fatalf("lock table leaked %d entries", e.missions.Len())
	}
}

func TestStart_AssignsDroneAndLogs(t *testing.T) {
	e, store, _ := newTestEngine(t, "engine_dispatch_start")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "D1", 90, models.DroneStatusAvailable)
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPending, 3, nil)

	res, err := e.Start(ctx, m.ID, d.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Mission.DroneID == nil || *res.Mission.DroneID != d.ID || res.Mission.Status != models.MissionStatusInProgress {
		t.Fatalf("mission not started with drone: %+v", res.Mission)
	}
	if len(res.Logs) != 2 || res.Logs[1].Message != "Mission started with drone "+d.Name {
		t.Fatalf("unexpected logs: %+v", res.Logs)
	}
	if _, err := e.Start(ctx, m.ID, d.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second start err=%v", err)
	}
}

func TestDrainBattery_NeverBelowFloor(t *testing.T) {
	e, store, _ := newTestEngine(t, "engine_drain")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "B1", 15, models.DroneStatusAvailable)
	for i := 0; i < 20; i++ {
		if _, err := e.DrainBattery(ctx, d.ID, 0.45); err != nil {
			t.Fatalf("drain: %v", err)
		}
		got, _ := store.GetDrone(ctx, d.ID)
		if got.CurrentBatteryLevel < 10 {
			t.Fatalf("battery=%d below floor", got.CurrentBatteryLevel)
		}
	}
	got, _ := store.GetDrone(ctx, d.ID)
	if got.CurrentBatteryLevel != 10 {
		t.Fatalf("battery=%d want 10", got.CurrentBatteryLevel)
	}

	busy := testutil.SeedDrone(t, store, "B2", 60, models.DroneStatusCharging)
	changed, err := e.DrainBattery(ctx, busy.ID, 0.45)
	if err != nil || changed != nil {
		t.Fatalf("charging drone drained: %+v %v", changed, err)
	}
}

func TestDrainedLevel(t *testing.T) {
	cases := []struct {
		level  int
		amount float64
		want   int
	}{
		{80, 20, 60},
		{25, 20, 10},
		{10, 20, 10},
		{5, 20, 5},
		{50, 0.4, 49},
	}
	for _, tc := range cases {
		if got := drainedLevel(tc.level, tc.amount, 10); got != tc.want {
			t.Errorf("drainedLevel(%d, %v)=%d want %d", tc.level, tc.amount, got, tc.want)
		}
	}
}

func TestAppendLog_Validates(t *testing.T) {
	e, store, _ := newTestEngine(t, "engine_logs")
	ctx := context.Background()
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPlanned, 2, nil)

	var verr *ValidationError
	if _, err := e.AppendLog(ctx, m.ID, "DEBUG", ""); !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("err=%v", err)
	}
	if _, err := e.AppendLog(ctx, 999, models.LogTypeInfo, "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing mission err=%v", err)
	}
	l, err := e.AppendLog(ctx, m.ID, models.LogTypeWarn, "wind gusts")
	if err != nil || l.ID == 0 {
		t.Fatalf("append: %+v %v", l, err)
	}
}

// flakyDrones fails drone writes while failing is set.
type flakyDrones struct {
	repository.Repository
	failing *bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyDrones) UpdateDrone(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error) {
	if *f.failing {
		return nil, errDiskFull
	}
	return f.Repository.UpdateDrone(ctx, id, u)
}

func (f *flakyDrones) WithTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	return f.Repository.WithTx(ctx, func(tx repository.Repository) error {
		return fn(&flakyDrones{Repository: tx, failing: f.failing})
	})
}

func TestTransition_FailedDroneWriteLeavesNothingHalfApplied(t *testing.T) {
	_, store, _ := newTestEngine(t, "engine_drone_write_fails")
	failing := false
	e := NewEngine(&flakyDrones{Repository: store, failing: &failing}, DefaultSettings(), logging.Discard())
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "FD1", 90, models.DroneStatusAvailable)
	m := testutil.SeedMission(t, store, "survey", models.MissionStatusPending, 10, &d.ID)

	failing = true
	var se *StorageError
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress); !errors.As(err, &se) {
		t.Fatalf("start err=%v want StorageError", err)
	}
	got, _ := store.GetMission(ctx, m.ID)
	if got.Status != models.MissionStatusPending || got.StartedAt != nil {
		t.Fatalf("mission moved without its drone: %+v", got)
	}
	if logs, _ := store.Logs.ListByMission(ctx, m.ID); len(logs) != 0 {
		t.Fatalf("log written for rolled back start: %+v", logs)
	}

	failing = false
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusInProgress); err != nil {
		t.Fatalf("start retry: %v", err)
	}

	failing = true
	if _, err := e.Transition(ctx, m.ID, models.MissionStatusCompleted); !errors.As(err, &se) {
		t.Fatalf("complete err=%v want StorageError", err)
	}
	got, _ = store.GetMission(ctx, m.ID)
	if got.Status != models.MissionStatusInProgress || got.CompletedAt != nil || got.Duration != nil {
		t.Fatalf("mission completed without releasing its drone: %+v", got)
	}

	failing = false
	res, err := e.Transition(ctx, m.ID, models.MissionStatusCompleted)
	if err != nil {
		t.Fatalf("complete retry: %v", err)
	}
	if res.Mission.Status != models.MissionStatusCompleted || res.Drone == nil || res.Drone.Status != models.DroneStatusAvailable {
		t.Fatalf("retry result: %+v %+v", res.Mission, res.Drone)
	}
	drone, _ := store.GetDrone(ctx, d.ID)
	if drone.Status != models.DroneStatusAvailable {
		t.Fatalf("drone status=%s want Available", drone.Status)
	}
}

func TestUpdateDrone_GuardsMissionOwnedStatus(t *testing.T) {
	e, store, _ := newTestEngine(t, "engine_update_drone")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "UD1", 70, models.DroneStatusAvailable)

	loc, health := "Hangar C", "needs props"
	got, err := e.UpdateDrone(ctx, d.ID, models.DroneUpdate{Location: &loc, HealthStatus: &health})
	if err != nil || got.Location != loc || got.HealthStatus != health {
		t.Fatalf("UpdateDrone: %+v %v", got, err)
	}

	onMission := models.DroneStatusOnMission
	var verr *ValidationError
	if _, err := e.UpdateDrone(ctx, d.ID, models.DroneUpdate{Status: &onMission}); !errors.As(err, &verr) {
		t.Fatalf("set On Mission err=%v want ValidationError", err)
	}
	tooHigh := 120
	if _, err := e.UpdateDrone(ctx, d.ID, models.DroneUpdate{CurrentBatteryLevel: &tooHigh}); !errors.As(err, &verr) {
		t.Fatalf("battery 120 err=%v want ValidationError", err)
	}
	if _, err := e.UpdateDrone(ctx, 9999, models.DroneUpdate{Location: &loc}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing drone err=%v", err)
	}

	m := testutil.SeedMission(t, store, "flying", models.MissionStatusPending, 4, &d.ID)
	if _, err := e.Start(ctx, m.ID, d.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	charging := models.DroneStatusCharging
	if _, err := e.UpdateDrone(ctx, d.ID, models.DroneUpdate{Status: &charging}); !errors.Is(err, ErrDroneInUse) {
		t.Fatalf("status change while flying err=%v want ErrDroneInUse", err)
	}
	if err := e.DeleteDrone(ctx, d.ID); !errors.Is(err, ErrDroneInUse) {
		t.Fatalf("delete while flying err=%v want ErrDroneInUse", err)
	}

	if _, err := e.Transition(ctx, m.ID, models.MissionStatusAborted); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if err := e.DeleteDrone(ctx, d.ID); err != nil {
		t.Fatalf("delete after abort: %v", err)
	}
	if _, err := store.GetDrone(ctx, d.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("drone still present: %v", err)
	}
}
