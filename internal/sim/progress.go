package sim

import (
	"context"
	"log/slog"
	"sync"

	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Progress advances every InProgress mission once per tick.
type Progress struct {
	engine   *mission.Engine
	repo     repository.Repository
	advancer mission.Advancer
	pub      Publisher
	logger   *slog.Logger
}

func NewProgress(engine *mission.Engine, repo repository.Repository, adv mission.Advancer, pub Publisher, logger *slog.Logger) *Progress {
	return &Progress{engine: engine, repo: repo, advancer: adv, pub: pub, logger: logger}
}

func (p *Progress) Name() string { return "progress" }

// Tick advances missions independently; one failing mission does not stop
// the others.
func (p *Progress) Tick(ctx context.Context) error {
	missions, err := p.repo.ListMissionsByStatus(ctx, models.MissionStatusInProgress)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, m := range missions {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			res, err := p.engine.Advance(ctx, id, p.advancer)
			if err != nil {
				p.logger.Warn("advance mission failed", slog.Int64("mission", id), slog.Any("error", err))
				return
			}
			if res == nil {
				return
			}
			if res.Completed {
				p.logger.Info("mission completed", slog.Int64("mission", id))
			}
			p.pub.PublishResult(ctx, res)
		}(m.ID)
	}
	wg.Wait()
	return nil
}
