package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Log      LogConfig
	Redis    RedisConfig
	Progress ProgressConfig
	Drift    DriftConfig
	Dispatch DispatchConfig
	Observer ObserverConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// HTTPConfig contains the REST/WebSocket listener settings.
type HTTPConfig struct {
	Address string
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// LogConfig selects the slog level and, optionally, a rotating log directory.
type LogConfig struct {
	Level string
	Dir   string // empty logs to stderr
}

// RedisConfig enables the event relay when Addr is set.
type RedisConfig struct {
	Addr    string
	Channel string
	Format  string // json | msgpack
}

// ProgressConfig tunes the progress simulator.
type ProgressConfig struct {
	Interval             time.Duration
	Increment            float64
	CompletionThreshold  float64
	CompletionBatteryUse int
}

// DriftConfig tunes idle battery drift.
type DriftConfig struct {
	Interval  time.Duration
	MaxDrain  float64
	Threshold float64
	Floor     int
}

// DispatchConfig tunes the mission dispatcher.
type DispatchConfig struct {
	Interval   time.Duration
	MinBattery int
	Policy     string // random | fifo
}

// ObserverConfig tunes observer channels.
type ObserverConfig struct {
	PingInterval time.Duration
	SendBuffer   int
}

// Defaults returns the configuration used when no environment is set.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "survey.db"},
		HTTP:     HTTPConfig{Address: ":5000"},
		GRPC:     GRPCConfig{Address: ":50051"},
		Log:      LogConfig{Level: "info"},
		Redis:    RedisConfig{Channel: "survey:events", Format: "json"},
		Progress: ProgressConfig{
			Interval:             3 * time.Second,
			Increment:            0.5,
			CompletionThreshold:  99.5,
			CompletionBatteryUse: 20,
		},
		Drift: DriftConfig{
			Interval:  15 * time.Second,
			MaxDrain:  0.5,
			Threshold: 0.3,
			Floor:     10,
		},
		Dispatch: DispatchConfig{
			Interval:   20 * time.Second,
			MinBattery: 50,
			Policy:     "random",
		},
		Observer: ObserverConfig{
			PingInterval: 30 * time.Second,
			SendBuffer:   64,
		},
	}
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := Defaults()
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
	cfg.HTTP.Address = getEnv("HTTP_ADDRESS", cfg.HTTP.Address)
	cfg.GRPC.Address = getEnv("GRPC_ADDRESS", cfg.GRPC.Address)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Dir = getEnv("LOG_DIR", cfg.Log.Dir)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = getEnv("REDIS_CHANNEL", cfg.Redis.Channel)
	cfg.Redis.Format = getEnv("REDIS_FORMAT", cfg.Redis.Format)
	cfg.Dispatch.Policy = getEnv("DISPATCH_POLICY", cfg.Dispatch.Policy)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	cfg.Progress.Interval, err = getEnvDuration("PROGRESS_INTERVAL", cfg.Progress.Interval)
	collect(err)
	cfg.Progress.Increment, err = getEnvFloat("PROGRESS_INCREMENT", cfg.Progress.Increment)
	collect(err)
	cfg.Progress.CompletionThreshold, err = getEnvFloat("COMPLETION_THRESHOLD", cfg.Progress.CompletionThreshold)
	collect(err)
	cfg.Progress.CompletionBatteryUse, err = getEnvInt("COMPLETION_BATTERY_DRAIN", cfg.Progress.CompletionBatteryUse)
	collect(err)
	cfg.Drift.Interval, err = getEnvDuration("DRIFT_INTERVAL", cfg.Drift.Interval)
	collect(err)
	cfg.Drift.MaxDrain, err = getEnvFloat("DRIFT_MAX_DRAIN", cfg.Drift.MaxDrain)
	collect(err)
	cfg.Drift.Threshold, err = getEnvFloat("DRIFT_THRESHOLD", cfg.Drift.Threshold)
	collect(err)
	cfg.Drift.Floor, err = getEnvInt("DRIFT_FLOOR", cfg.Drift.Floor)
	collect(err)
	cfg.Dispatch.Interval, err = getEnvDuration("DISPATCH_INTERVAL", cfg.Dispatch.Interval)
	collect(err)
	cfg.Dispatch.MinBattery, err = getEnvInt("DISPATCH_MIN_BATTERY", cfg.Dispatch.MinBattery)
	collect(err)
	cfg.Observer.PingInterval, err = getEnvDuration("PING_INTERVAL", cfg.Observer.PingInterval)
	collect(err)
	cfg.Observer.SendBuffer, err = getEnvInt("SEND_BUFFER", cfg.Observer.SendBuffer)
	collect(err)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the simulators and servers cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"PROGRESS_INTERVAL": c.Progress.Interval,
		"DRIFT_INTERVAL":    c.Drift.Interval,
		"DISPATCH_INTERVAL": c.Dispatch.Interval,
		"PING_INTERVAL":     c.Observer.PingInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Progress.Increment <= 0 || c.Progress.Increment > 100 {
		errs = append(errs, fmt.Errorf("PROGRESS_INCREMENT must be in (0,100], got %v", c.Progress.Increment))
	}
	if c.Progress.CompletionThreshold <= 0 || c.Progress.CompletionThreshold > 100 {
		errs = append(errs, fmt.Errorf("COMPLETION_THRESHOLD must be in (0,100], got %v", c.Progress.CompletionThreshold))
	}
	if c.Progress.CompletionBatteryUse < 0 || c.Progress.CompletionBatteryUse > 100 {
		errs = append(errs, fmt.Errorf("COMPLETION_BATTERY_DRAIN must be in [0,100], got %d", c.Progress.CompletionBatteryUse))
	}
	if c.Drift.MaxDrain <= 0 || c.Drift.Threshold < 0 || c.Drift.Threshold >= c.Drift.MaxDrain {
		errs = append(errs, fmt.Errorf("drift requires 0 <= DRIFT_THRESHOLD < DRIFT_MAX_DRAIN, got %v and %v", c.Drift.Threshold, c.Drift.MaxDrain))
	}
	if c.Drift.Floor < 0 || c.Drift.Floor > 100 {
		errs = append(errs, fmt.Errorf("DRIFT_FLOOR must be in [0,100], got %d", c.Drift.Floor))
	}
	if c.Dispatch.MinBattery < 0 || c.Dispatch.MinBattery > 100 {
		errs = append(errs, fmt.Errorf("DISPATCH_MIN_BATTERY must be in [0,100], got %d", c.Dispatch.MinBattery))
	}
	switch c.Dispatch.Policy {
	case "random", "fifo":
	default:
		errs = append(errs, fmt.Errorf("DISPATCH_POLICY must be random or fifo, got %q", c.Dispatch.Policy))
	}
	switch c.Redis.Format {
	case "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("REDIS_FORMAT must be json or msgpack, got %q", c.Redis.Format))
	}
	if c.Observer.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.Observer.SendBuffer))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (the redis address is masked).
func (c *Config) String() string {
	redis := "disabled"
	if c.Redis.Addr != "" {
		redis = "*** (masked) ***"
	}
	return fmt.Sprintf("Config{DB: %s, HTTP: %s, gRPC: %s, Log: %s, Redis: %s, Dispatch: %s}",
		c.Database.Path, c.HTTP.Address, c.GRPC.Address, c.Log.Level, redis, c.Dispatch.Policy)
}
