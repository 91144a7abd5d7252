// Package sim runs the periodic simulators: mission progress, idle battery
// drift and the mission dispatcher.
package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
)

// Rand is the randomness the simulators draw from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a Rand safe for concurrent use.
func NewRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// Publisher receives the changes the simulators make.
type Publisher interface {
	PublishResult(ctx context.Context, r *mission.Result)
	BroadcastDrone(d *models.Drone)
	BroadcastMissionStarted(missionID int64)
}

// Task is one periodic unit of work.
type Task interface {
	Name() string
	Tick(ctx context.Context) error
}

// Run calls task.Tick every interval until ctx is done. A failed tick is
// logged and retried on the next interval.
func Run(ctx context.Context, interval time.Duration, task Task, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("simulator started", slog.String("task", task.Name()), slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("simulator stopped", slog.String("task", task.Name()))
			return nil
		case <-ticker.C:
			if err := task.Tick(ctx); err != nil {
				logger.Warn("simulator tick failed", slog.String("task", task.Name()), slog.Any("error", err))
			}
		}
	}
}
