// Package broadcast tracks which observers watch which missions and fans
// state changes out to them.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/models"
	"droneSurveyManagement/repository"
)

// Sink is one observer. Send must not block; a sink that cannot keep up
// returns an error and is expected to close itself.
type Sink interface {
	ID() string
	Send(ev Event) error
}

// Mirror receives a copy of every broadcast event.
type Mirror interface {
	Mirror(ctx context.Context, ev Event)
}

// Registry holds connected sinks and their mission subscriptions. Mission
// snapshots are read and queued under a per-mission publish lock, so a
// watcher never receives an older snapshot after a newer one.
type Registry struct {
	repo       repository.Repository
	logger     *slog.Logger
	publishing *mission.LockTable

	mu       sync.RWMutex
	sinks    map[string]Sink
	subs     map[string]map[int64]struct{} // sink id -> missions
	watchers map[int64]map[string]struct{} // mission -> sink ids
	mirrors  []Mirror
}

func NewRegistry(repo repository.Repository, logger *slog.Logger) *Registry {
	return &Registry{
		repo:       repo,
		logger:     logger,
		publishing: mission.NewLockTable(),
		sinks:      make(map[string]Sink),
		subs:       make(map[string]map[int64]struct{}),
		watchers:   make(map[int64]map[string]struct{}),
	}
}

// AddMirror attaches m to every later broadcast.
func (r *Registry) AddMirror(m Mirror) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrors = append(r.mirrors, m)
}

// Register adds a sink. Registering an id twice replaces the sink.
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[s.ID()] = s
	if _, ok := r.subs[s.ID()]; !ok {
		r.subs[s.ID()] = make(map[int64]struct{})
	}
}

// Unregister removes a sink and all of its subscriptions.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for missionID := range r.subs[id] {
		r.removeWatcher(missionID, id)
	}
	delete(r.subs, id)
	delete(r.sinks, id)
}

func (r *Registry) removeWatcher(missionID int64, sinkID string) {
	w := r.watchers[missionID]
	delete(w, sinkID)
	if len(w) == 0 {
		delete(r.watchers, missionID)
	}
}

// Subscribe records that sink id watches missionID and immediately pushes
// the mission's current state to that sink only.
func (r *Registry) Subscribe(ctx context.Context, id string, missionID int64) error {
	unlock := r.publishing.Lock(missionID)
	defer unlock()

	r.mu.Lock()
	s, ok := r.sinks[id]
	if !ok {
		r.mu.Unlock()
		return errors.New("broadcast: unknown sink " + id)
	}
	r.subs[id][missionID] = struct{}{}
	w, ok := r.watchers[missionID]
	if !ok {
		w = make(map[string]struct{})
		r.watchers[missionID] = w
	}
	w[id] = struct{}{}
	r.mu.Unlock()

	m, err := r.repo.GetMission(ctx, missionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	r.deliver(s, MissionUpdate(m))
	return nil
}

// Unsubscribe removes the subscription if present.
func (r *Registry) Unsubscribe(id string, missionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.subs[id]; ok {
		delete(subs, missionID)
	}
	r.removeWatcher(missionID, id)
}

// Subscriptions returns the missions sink id watches.
func (r *Registry) Subscriptions(id string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.subs[id]))
	for m := range r.subs[id] {
		out = append(out, m)
	}
	return out
}

// Len returns the number of registered sinks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

func (r *Registry) watching(missionID int64) ([]Sink, []Mirror) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sink, 0, len(r.watchers[missionID]))
	for id := range r.watchers[missionID] {
		out = append(out, r.sinks[id])
	}
	return out, r.mirrors
}

func (r *Registry) all() ([]Sink, []Mirror) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		out = append(out, s)
	}
	return out, r.mirrors
}

func (r *Registry) deliver(s Sink, ev Event) {
	if err := s.Send(ev); err != nil {
		r.logger.Warn("event dropped", slog.String("sink", s.ID()), slog.String("type", ev.Kind()), slog.Any("error", err))
	}
}

func (r *Registry) fanOut(ctx context.Context, sinks []Sink, mirrors []Mirror, ev Event) {
	for _, s := range sinks {
		r.deliver(s, ev)
	}
	for _, m := range mirrors {
		m.Mirror(ctx, ev)
	}
}

// BroadcastMissionUpdate sends the current state of missionID to its
// watchers. A mission that no longer exists is skipped.
func (r *Registry) BroadcastMissionUpdate(ctx context.Context, missionID int64) error {
	unlock := r.publishing.Lock(missionID)
	defer unlock()

	m, err := r.repo.GetMission(ctx, missionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sinks, mirrors := r.watching(missionID)
	r.fanOut(ctx, sinks, mirrors, MissionUpdate(m))
	return nil
}

// BroadcastMissionLog sends l to the watchers of its mission.
func (r *Registry) BroadcastMissionLog(ctx context.Context, l *models.MissionLog) {
	sinks, mirrors := r.watching(l.MissionID)
	r.fanOut(ctx, sinks, mirrors, MissionLog(l))
}

// BroadcastFleetEvent sends ev to every registered sink.
func (r *Registry) BroadcastFleetEvent(ctx context.Context, ev Event) {
	sinks, mirrors := r.all()
	r.fanOut(ctx, sinks, mirrors, ev)
}

func (r *Registry) BroadcastDrone(d *models.Drone) {
	r.BroadcastFleetEvent(context.Background(), DroneUpdate(d))
}

func (r *Registry) BroadcastMissionStarted(missionID int64) {
	r.BroadcastFleetEvent(context.Background(), MissionStarted(missionID))
}

// PublishResult broadcasts everything a mission mutation changed: one
// mission update carrying the final state, its new log entries and the
// affected drone.
func (r *Registry) PublishResult(ctx context.Context, res *mission.Result) {
	if res == nil {
		return
	}
	if res.Mission != nil {
		if err := r.BroadcastMissionUpdate(ctx, res.Mission.ID); err != nil {
			r.logger.Warn("broadcast mission update failed", slog.Int64("mission", res.Mission.ID), slog.Any("error", err))
		}
	}
	for i := range res.Logs {
		r.BroadcastMissionLog(ctx, &res.Logs[i])
	}
	if res.Drone != nil {
		r.BroadcastFleetEvent(ctx, DroneUpdate(res.Drone))
	}
}
