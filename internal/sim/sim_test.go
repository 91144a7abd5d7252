package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"droneSurveyManagement/internal/logging"
	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/internal/testutil"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// seqRand replays fixed draws.
type seqRand struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (s *seqRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return 0
	}
	f := s.floats[0]
	s.floats = s.floats[1:]
	return f
}

func (s *seqRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		return 0
	}
	i := s.ints[0] % n
	s.ints = s.ints[1:]
	return i
}

type recorder struct {
	mu      sync.Mutex
	results []*mission.Result
	drones  []models.Drone
	started []int64
}

func (r *recorder) PublishResult(_ context.Context, res *mission.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) BroadcastDrone(d *models.Drone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drones = append(r.drones, *d)
}

func (r *recorder) BroadcastMissionStarted(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func setup(t *testing.T, name string) (*mission.Engine, *repository.Store, *recorder) {
	t.Helper()
	store := testutil.NewStore(t, name)
	return mission.NewEngine(store, mission.DefaultSettings(), logging.Discard()), store, &recorder{}
}

func TestSimulatedAdvancer_TenPointsAtSeventyPercent(t *testing.T) {
	path := testutil.LinePath(10, 37.0, -122.0)
	alt := 60.0
	m := &models.Mission{ID: 5, Status: models.MissionStatusInProgress, FlightPath: path, Progress: 70, Altitude: &alt}
	adv := NewSimulatedAdvancer(0.5, &seqRand{floats: []float64{0.5}})

	step, ok := adv.Advance(m)
	if !ok {
		t.Fatalf("advance declined")
	}
	if step.Progress != 70.5 {
		t.Fatalf("progress=%v want 70.5", step.Progress)
	}
	if step.Telemetry.Latitude != path.Points[8].Lat || step.Telemetry.Longitude != path.Points[8].Lng {
		t.Fatalf("telemetry at %v,%v want path index 8", step.Telemetry.Latitude, step.Telemetry.Longitude)
	}
	if step.ActualPath.Len() != 9 {
		t.Fatalf("actual path len=%d want 9", step.ActualPath.Len())
	}
	if *step.Telemetry.Altitude != 60 || *step.Telemetry.Speed != 5 {
		t.Fatalf("altitude/speed=%v/%v", *step.Telemetry.Altitude, *step.Telemetry.Speed)
	}
	if *step.Telemetry.BatteryLevel != 30 || *step.Telemetry.SignalStrength != 90 {
		t.Fatalf("battery/signal=%d/%d", *step.Telemetry.BatteryLevel, *step.Telemetry.SignalStrength)
	}
	if *step.Telemetry.DistanceTraveled <= 0 {
		t.Fatalf("distance not computed")
	}
	if len(step.Logs) != 0 {
		t.Fatalf("unexpected section log: %+v", step.Logs)
	}
}

func TestSimulatedAdvancer_SectionLogsAndEdges(t *testing.T) {
	adv := NewSimulatedAdvancer(0.5, &seqRand{})
	m := &models.Mission{FlightPath: testutil.LinePath(4, 1, 1), Progress: 49.5}
	step, ok := adv.Advance(m)
	if !ok || len(step.Logs) != 1 || step.Logs[0].Message != "Completed survey section 2/4" {
		t.Fatalf("section log missing: %+v", step.Logs)
	}

	if _, ok := adv.Advance(&models.Mission{}); ok {
		t.Fatalf("empty path advanced")
	}

	one := &models.Mission{FlightPath: testutil.LinePath(1, 1, 1), Progress: 90}
	step, ok = adv.Advance(one)
	if !ok || step.ActualPath.Len() != 1 || *step.Telemetry.BatteryLevel != 25 {
		t.Fatalf("single point path: ok=%v %+v", ok, step)
	}
}

func TestProgress_TickAdvancesAndPublishes(t *testing.T) {
	engine, store, rec := setup(t, "sim_progress")
	ctx := context.Background()
	a := testutil.SeedMission(t, store, "a", models.MissionStatusPending, 10, nil)
	b := testutil.SeedMission(t, store, "b", models.MissionStatusPending, 10, nil)
	idle := testutil.SeedMission(t, store, "idle", models.MissionStatusPending, 10, nil)
	for _, id := range []int64{a.ID, b.ID} {
		if _, err := engine.Transition(ctx, id, models.MissionStatusInProgress); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	p := NewProgress(engine, store, NewSimulatedAdvancer(0.5, NewRand(1)), rec, logging.Discard())
	if err := p.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.results) != 2 {
		t.Fatalf("published %d results want 2", len(rec.results))
	}
	for _, id := range []int64{a.ID, b.ID} {
		got, _ := store.GetMission(ctx, id)
		if got.Progress != 0.5 || got.ActualPath == nil || got.ActualPath.Len() != 2 {
			t.Fatalf("mission %d progress=%v actual=%+v", id, got.Progress, got.ActualPath)
		}
		samples, _ := store.Telemetry.ListByMission(ctx, id, 10)
		if len(samples) != 1 {
			t.Fatalf("mission %d samples=%d", id, len(samples))
		}
	}
	got, _ := store.GetMission(ctx, idle.ID)
	if got.Progress != 0 {
		t.Fatalf("pending mission progressed")
	}
}

func TestProgress_NonDecreasingUntilCompleted(t *testing.T) {
	engine, store, rec := setup(t, "sim_progress_run")
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "R1", 90, models.DroneStatusAvailable)
	m := testutil.SeedMission(t, store, "m", models.MissionStatusPending, 6, &d.ID)
	if _, err := engine.Transition(ctx, m.ID, models.MissionStatusInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	p := NewProgress(engine, store, NewSimulatedAdvancer(12.5, NewRand(7)), rec, logging.Discard())
	last := 0.0
	for i := 0; i < 10; i++ {
		if err := p.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
		got, _ := store.GetMission(ctx, m.ID)
		if got.Progress < last {
			t.Fatalf("progress went from %v to %v", last, got.Progress)
		}
		if got.ActualPath != nil && got.ActualPath.Len() > got.FlightPath.Len() {
			t.Fatalf("actual path longer than plan")
		}
		last = got.Progress
	}
	got, _ := store.GetMission(ctx, m.ID)
	if got.Status != models.MissionStatusCompleted || got.Progress != 100 {
		t.Fatalf("status=%s progress=%v", got.Status, got.Progress)
	}
	dr, _ := store.GetDrone(ctx, d.ID)
	if dr.Status != models.DroneStatusAvailable || dr.CurrentBatteryLevel != 70 {
		t.Fatalf("drone=%+v", dr)
	}
}

func TestDrift_ThresholdAndFloor(t *testing.T) {
	engine, store, rec := setup(t, "sim_drift")
	ctx := context.Background()
	low := testutil.SeedDrone(t, store, "L1", 15, models.DroneStatusAvailable)
	busy := testutil.SeedDrone(t, store, "L2", 80, models.DroneStatusOnMission)

	// 0.9*0.5=0.45 drains; 0.2*0.5=0.1 does not.
	draws := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		draws = append(draws, 0.9, 0.2)
	}
	drift := NewDrift(engine, store, rec, &seqRand{floats: draws}, 0.5, 0.3, logging.Discard())
	for i := 0; i < 40; i++ {
		if err := drift.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
		got, _ := store.GetDrone(ctx, low.ID)
		if got.CurrentBatteryLevel < 10 {
			t.Fatalf("battery=%d below floor", got.CurrentBatteryLevel)
		}
	}
	got, _ := store.GetDrone(ctx, low.ID)
	if got.CurrentBatteryLevel != 10 {
		t.Fatalf("battery=%d want 10", got.CurrentBatteryLevel)
	}
	if len(rec.drones) != 5 {
		t.Fatalf("drone events=%d want 5", len(rec.drones))
	}
	b, _ := store.GetDrone(ctx, busy.ID)
	if b.CurrentBatteryLevel != 80 {
		t.Fatalf("drone on mission drained: %d", b.CurrentBatteryLevel)
	}
}

// brokenRows fails reads of one mission and writes of one drone.
type brokenRows struct {
	repository.Repository
	missionID, droneID int64
}

var errBadSector = errors.New("bad sector")

func (b *brokenRows) GetMission(ctx context.Context, id int64) (*models.Mission, error) {
	if id == b.missionID {
		return nil, errBadSector
	}
	return b.Repository.GetMission(ctx, id)
}

func (b *brokenRows) UpdateDrone(ctx context.Context, id int64, u models.DroneUpdate) (*models.Drone, error) {
	if id == b.droneID {
		return nil, errBadSector
	}
	return b.Repository.UpdateDrone(ctx, id, u)
}

func TestProgress_OneFailingMissionDoesNotStopTheTick(t *testing.T) {
	_, store, rec := setup(t, "sim_progress_isolation")
	ctx := context.Background()
	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		m := testutil.SeedMission(t, store, name, models.MissionStatusInProgress, 10, nil)
		ids = append(ids, m.ID)
	}
	repo := &brokenRows{Repository: store, missionID: ids[1]}
	engine := mission.NewEngine(repo, mission.DefaultSettings(), logging.Discard())

	p := NewProgress(engine, repo, NewSimulatedAdvancer(0.5, NewRand(3)), rec, logging.Discard())
	if err := p.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.results) != 2 {
		t.Fatalf("published %d results want 2", len(rec.results))
	}
	for i, id := range ids {
		got, _ := store.GetMission(ctx, id)
		want := 0.5
		if i == 1 {
			want = 0
		}
		if got.Progress != want {
			t.Fatalf("mission %d progress=%v want %v", id, got.Progress, want)
		}
	}
}

func TestDrift_OneFailingDroneDoesNotStopTheTick(t *testing.T) {
	_, store, rec := setup(t, "sim_drift_isolation")
	ctx := context.Background()
	var ids []int64
	for _, serial := range []string{"I1", "I2", "I3"} {
		ids = append(ids, testutil.SeedDrone(t, store, serial, 80, models.DroneStatusAvailable).ID)
	}
	repo := &brokenRows{Repository: store, droneID: ids[0]}
	engine := mission.NewEngine(repo, mission.DefaultSettings(), logging.Discard())

	drift := NewDrift(engine, repo, rec, &seqRand{floats: []float64{0.9, 0.9, 0.9}}, 0.5, 0.3, logging.Discard())
	if err := drift.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for i, id := range ids {
		got, _ := store.GetDrone(ctx, id)
		want := 79
		if i == 0 {
			want = 80
		}
		if got.CurrentBatteryLevel != want {
			t.Fatalf("drone %d battery=%d want %d", id, got.CurrentBatteryLevel, want)
		}
	}
	if len(rec.drones) != 2 {
		t.Fatalf("drone events=%d want 2", len(rec.drones))
	}
}

func TestDispatcher_NoActionWhileMissionsFly(t *testing.T) {
	engine, store, rec := setup(t, "sim_dispatch_busy")
	ctx := context.Background()
	testutil.SeedDrone(t, store, "D1", 90, models.DroneStatusAvailable)
	for _, name := range []string{"a", "b"} {
		m := testutil.SeedMission(t, store, name, models.MissionStatusPending, 3, nil)
		if _, err := engine.Transition(ctx, m.ID, models.MissionStatusInProgress); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	d := NewDispatcher(engine, store, rec, FIFOPolicy{}, 50, logging.Discard())
	if err := d.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.results) != 0 || len(rec.started) != 0 {
		t.Fatalf("dispatcher acted: %+v", rec)
	}
}

func TestDispatcher_StartsWithQualifyingDrone(t *testing.T) {
	engine, store, rec := setup(t, "sim_dispatch_start")
	ctx := context.Background()
	testutil.SeedDrone(t, store, "weak", 40, models.DroneStatusAvailable)
	testutil.SeedDrone(t, store, "busy", 100, models.DroneStatusMaintenance)
	good := testutil.SeedDrone(t, store, "good", 75, models.DroneStatusAvailable)
	first := testutil.SeedMission(t, store, "first", models.MissionStatusPending, 3, nil)
	testutil.SeedMission(t, store, "second", models.MissionStatusPending, 3, nil)

	d := NewDispatcher(engine, store, rec, FIFOPolicy{}, 50, logging.Discard())
	if err := d.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.started) != 1 || rec.started[0] != first.ID {
		t.Fatalf("started=%v want [%d]", rec.started, first.ID)
	}
	got, _ := store.GetMission(ctx, first.ID)
	if got.Status != models.MissionStatusInProgress || *got.DroneID != good.ID {
		t.Fatalf("mission=%+v", got)
	}
	dr, _ := store.GetDrone(ctx, good.ID)
	if dr.Status != models.DroneStatusOnMission {
		t.Fatalf("drone status=%s", dr.Status)
	}

	// Something is flying now, so the next tick waits.
	if err := d.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.started) != 1 {
		t.Fatalf("second dispatch while busy")
	}
}

func TestDispatcher_NoQualifyingDrone(t *testing.T) {
	engine, store, rec := setup(t, "sim_dispatch_none")
	ctx := context.Background()
	testutil.SeedDrone(t, store, "fifty", 50, models.DroneStatusAvailable)
	testutil.SeedMission(t, store, "m", models.MissionStatusPending, 3, nil)
	d := NewDispatcher(engine, store, rec, RandomPolicy{Rand: NewRand(3)}, 50, logging.Discard())
	if err := d.Tick(ctx); err != nil || len(rec.started) != 0 {
		t.Fatalf("dispatched with battery at threshold: err=%v started=%v", err, rec.started)
	}
}

type countTask struct {
	mu sync.Mutex
	n  int
}

func (c *countTask) Name() string { return "count" }

func (c *countTask) Tick(context.Context) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &countTask{}
	done := make(chan error, 1)
	go func() { done <- Run(ctx, 5*time.Millisecond, task, logging.Discard()) }()
	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.n == 0 {
		t.Fatalf("task never ticked")
	}
}

func TestPolicyByName(t *testing.T) {
	if _, ok := PolicyByName("fifo", nil).(FIFOPolicy); !ok {
		t.Fatalf("fifo policy not selected")
	}
	if _, ok := PolicyByName("random", NewRand(1)).(RandomPolicy); !ok {
		t.Fatalf("random policy not selected")
	}
}
