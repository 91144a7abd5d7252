package sim

import (
	"context"
	"log/slog"

	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Drift slowly drains the batteries of idle drones.
type Drift struct {
	engine    *mission.Engine
	repo      repository.Repository
	pub       Publisher
	rand      Rand
	maxDrain  float64
	threshold float64
	logger    *slog.Logger
}

func NewDrift(engine *mission.Engine, repo repository.Repository, pub Publisher, r Rand, maxDrain, threshold float64, logger *slog.Logger) *Drift {
	return &Drift{engine: engine, repo: repo, pub: pub, rand: r, maxDrain: maxDrain, threshold: threshold, logger: logger}
}

func (d *Drift) Name() string { return "drift" }

// Tick draws a drain in [0, maxDrain) per available drone and applies it
// only when it exceeds the threshold.
func (d *Drift) Tick(ctx context.Context) error {
	drones, err := d.repo.ListDrones(ctx)
	if err != nil {
		return err
	}
	for _, dr := range drones {
		if dr.Status != models.DroneStatusAvailable || dr.CurrentBatteryLevel <= 0 {
			continue
		}
		drain := d.rand.Float64() * d.maxDrain
		if drain <= d.threshold {
			continue
		}
		updated, err := d.engine.DrainBattery(ctx, dr.ID, drain)
		if err != nil {
			d.logger.Warn("battery drift failed", slog.Int64("drone", dr.ID), slog.Any("error", err))
			continue
		}
		if updated != nil {
			d.pub.BroadcastDrone(updated)
		}
	}
	return nil
}
