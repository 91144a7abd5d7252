package sim

import (
	"context"
	"log/slog"
	"sort"

	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Policy picks which pending mission to fly with which qualifying drone.
// Both slices are non-empty.
type Policy interface {
	Pick(pending []models.Mission, drones []models.Drone) (missionIdx, droneIdx int)
}

// RandomPolicy picks uniformly at random.
type RandomPolicy struct {
	Rand Rand
}

func (p RandomPolicy) Pick(pending []models.Mission, drones []models.Drone) (int, int) {
	return p.Rand.Intn(len(pending)), p.Rand.Intn(len(drones))
}

// FIFOPolicy flies the oldest pending mission with the best charged drone.
type FIFOPolicy struct{}

func (FIFOPolicy) Pick(pending []models.Mission, drones []models.Drone) (int, int) {
	mi := 0
	for i := range pending {
		if pending[i].CreatedAt.Before(pending[mi].CreatedAt) ||
			(pending[i].CreatedAt.Equal(pending[mi].CreatedAt) && pending[i].ID < pending[mi].ID) {
			mi = i
		}
	}
	di := 0
	for i := range drones {
		if drones[i].CurrentBatteryLevel > drones[di].CurrentBatteryLevel {
			di = i
		}
	}
	return mi, di
}

// PolicyByName returns the named policy; unknown names fall back to random.
func PolicyByName(name string, r Rand) Policy {
	if name == "fifo" {
		return FIFOPolicy{}
	}
	return RandomPolicy{Rand: r}
}

// Dispatcher starts a pending mission whenever nothing is flying and a
// drone with enough charge is available.
type Dispatcher struct {
	engine     *mission.Engine
	repo       repository.Repository
	pub        Publisher
	policy     Policy
	minBattery int
	logger     *slog.Logger
}

func NewDispatcher(engine *mission.Engine, repo repository.Repository, pub Publisher, policy Policy, minBattery int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, repo: repo, pub: pub, policy: policy, minBattery: minBattery, logger: logger}
}

func (d *Dispatcher) Name() string { return "dispatch" }

// Tick starts at most one mission.
func (d *Dispatcher) Tick(ctx context.Context) error {
	active, err := d.repo.ListMissionsByStatus(ctx, models.MissionStatusInProgress)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}
	pending, err := d.repo.ListMissionsByStatus(ctx, models.MissionStatusPending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	all, err := d.repo.ListDrones(ctx)
	if err != nil {
		return err
	}
	var drones []models.Drone
	for _, dr := range all {
		if dr.Status == models.DroneStatusAvailable && dr.CurrentBatteryLevel > d.minBattery {
			drones = append(drones, dr)
		}
	}
	if len(drones) == 0 {
		return nil
	}
	sort.Slice(drones, func(i, j int) bool { return drones[i].ID < drones[j].ID })

	mi, di := d.policy.Pick(pending, drones)
	m, dr := pending[mi], drones[di]
	res, err := d.engine.Start(ctx, m.ID, dr.ID)
	if err != nil {
		return err
	}
	d.logger.Info("mission dispatched", slog.Int64("mission", m.ID), slog.Int64("drone", dr.ID))
	d.pub.PublishResult(ctx, res)
	d.pub.BroadcastMissionStarted(m.ID)
	return nil
}
