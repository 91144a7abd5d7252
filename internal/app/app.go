// Package app assembles the survey server: one App owns the database, the
// mission engine, the broadcast registry, the observer endpoints and the
// periodic simulators, and runs them until its context ends.
package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v9"
	"golang.org/x/sync/errgroup"

	"droneSurveyManagement/internal/broadcast"
	"droneSurveyManagement/internal/config"
	"droneSurveyManagement/internal/db"
	grpcserver "droneSurveyManagement/internal/grpc"
	"droneSurveyManagement/internal/httpapi"
	"droneSurveyManagement/internal/mission"
	"droneSurveyManagement/internal/observer"
	"droneSurveyManagement/internal/relay"
	"droneSurveyManagement/internal/sim"
	"droneSurveyManagement/repository"
)

const shutdownTimeout = 5 * time.Second

type scheduled struct {
	task     sim.Task
	interval time.Duration
}

// App is the server context. Every component receives what it needs from
// here; nothing is reached through package state.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	Store    *repository.Store
	Engine   *mission.Engine
	Registry *broadcast.Registry
	Feed     *observer.FleetFeed
	WS       *observer.WSServer
	API      *httpapi.Server
	Control  *grpcserver.MissionControl

	relay *relay.Relay
	tasks []scheduled
}

// New opens the database and wires every component from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, db: d, Store: repository.NewStore(d)}

	a.Engine = mission.NewEngine(a.Store, mission.Settings{
		ProgressIncrement:   cfg.Progress.Increment,
		CompletionThreshold: cfg.Progress.CompletionThreshold,
		CompletionDrain:     cfg.Progress.CompletionBatteryUse,
		BatteryFloor:        cfg.Drift.Floor,
	}, logger.With(slog.String("component", "engine")))

	a.Registry = broadcast.NewRegistry(a.Store, logger.With(slog.String("component", "broadcast")))
	a.Feed = observer.NewFleetFeed()
	a.Registry.Register(a.Feed)
	if cfg.Redis.Addr != "" {
		opt, err := redisOptions(cfg.Redis.Addr)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		a.relay = relay.New(opt, cfg.Redis.Channel, relay.Format(cfg.Redis.Format), cfg.Observer.SendBuffer*4, logger.With(slog.String("component", "relay")))
		a.Registry.AddMirror(a.relay)
	}

	obsLogger := logger.With(slog.String("component", "observer"))
	protocol := observer.NewProtocol(a.Registry, a.Engine, obsLogger)
	a.WS = observer.NewWSServer(a.Registry, protocol, a.Store, cfg.Observer.PingInterval, cfg.Observer.SendBuffer, obsLogger)

	rnd := sim.NewRand(time.Now().UnixNano())
	a.API = httpapi.NewServer(a.Store, a.Engine, a.Registry, rnd, logger.With(slog.String("component", "http")))
	a.API.Mount("/ws", a.WS)
	a.API.Mount("/events", a.Feed)

	a.Control = &grpcserver.MissionControl{Repo: a.Store, Engine: a.Engine, Registry: a.Registry, SendBuffer: cfg.Observer.SendBuffer}

	simLogger := logger.With(slog.String("component", "sim"))
	a.tasks = []scheduled{
		{sim.NewProgress(a.Engine, a.Store, sim.NewSimulatedAdvancer(cfg.Progress.Increment, rnd), a.Registry, simLogger), cfg.Progress.Interval},
		{sim.NewDrift(a.Engine, a.Store, a.Registry, rnd, cfg.Drift.MaxDrain, cfg.Drift.Threshold, simLogger), cfg.Drift.Interval},
		{sim.NewDispatcher(a.Engine, a.Store, a.Registry, sim.PolicyByName(cfg.Dispatch.Policy, rnd), cfg.Dispatch.MinBattery, simLogger), cfg.Dispatch.Interval},
	}
	return a, nil
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

// Handler returns the HTTP surface: REST API, /ws and /events.
func (a *App) Handler() http.Handler {
	return a.API.Router()
}

// Run serves HTTP and gRPC and runs the simulators until ctx is done or one
// of them fails, then shuts everything down and closes the database.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close db", slog.Any("error", err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	lis, err := net.Listen("tcp", a.cfg.HTTP.Address)
	if err != nil {
		return err
	}
	a.Control.Done = gctx.Done()
	stopGRPC, err := grpcserver.StartGRPC(a.cfg.GRPC.Address, a.Control, a.logger.With(slog.String("component", "grpc")))
	if err != nil {
		_ = lis.Close()
		return err
	}
	a.logger.Info("gRPC server listening", slog.String("addr", a.cfg.GRPC.Address))

	// Streaming requests (SSE) only end when their context does.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	g.Go(func() error {
		a.logger.Info("HTTP server listening", slog.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	for _, s := range a.tasks {
		s := s
		g.Go(func() error { return sim.Run(gctx, s.interval, s.task, a.logger) })
	}
	if a.relay != nil {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, 2*time.Second)
			defer cancel()
			if err := a.relay.Ping(pctx); err != nil {
				a.logger.Warn("redis relay unreachable, events will be dropped until it recovers", slog.Any("error", err))
			}
			return a.relay.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		cancelRequests()
		a.WS.CloseAll()
		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
		if err := stopGRPC(sctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
