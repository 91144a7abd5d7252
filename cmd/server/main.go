package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droneSurveyManagement/internal/app"
	"droneSurveyManagement/internal/config"
	"droneSurveyManagement/internal/db"
	"droneSurveyManagement/internal/logging"
	"droneSurveyManagement/repository"
)

// flags override the environment when set.
type flags struct {
	db       string
	http     string
	grpc     string
	logLevel string
}

func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = f.db
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTP.Address = f.http
	}
	if cmd.Flags().Changed("grpc") {
		cfg.GRPC.Address = f.grpc
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg.Validate()
}

func main() {
	var f flags
	rootCmd := &cobra.Command{
		Use:   "survey-server",
		Short: "Drone survey mission server",
		Long: `Runs the survey mission lifecycle: REST and WebSocket observers, the gRPC
control plane and the progress, battery drift and dispatch simulators,
all over one SQLite database.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&f.db, "db", "survey.db", "Path to SQLite database (overrides DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd(&f), migrateCmd(&f), seedCmd(&f))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Dir), nil
}

func serveCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, WebSocket and gRPC servers and the simulators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			logger.Info("configuration loaded", slog.String("config", cfg.String()))

			a, err := app.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil {
				logger.Error("server stopped", slog.Any("error", err))
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&f.http, "http", ":5000", "HTTP listen address (overrides HTTP_ADDRESS)")
	cmd.Flags().StringVar(&f.grpc, "grpc", ":50051", "gRPC listen address (overrides GRPC_ADDRESS)")
	return cmd
}

func migrateCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			// Open applies pending migrations.
			d, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer d.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", cfg.Database.Path)
			return nil
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			d, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer d.Close()
			v, err := db.RollbackLast(d)
			if err != nil {
				return err
			}
			if v == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to roll back")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %04d\n", v)
			return nil
		},
	}
	cmd.AddCommand(up, down)
	return cmd
}

func seedCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a sample fleet and missions into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			d, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer d.Close()

			drones, missions, err := app.Seed(cmd.Context(), repository.NewStore(d))
			if err != nil {
				return err
			}
			if drones == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Fleet already present, nothing seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d drones and %d missions\n", drones, missions)
			return nil
		},
	}
}
