// Package config loads the service configuration from YAML with sensible
// defaults, creating a starter file on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Route      RouteConfig      `yaml:"route"`
	Match      MatchConfig      `yaml:"match"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Event      EventConfig      `yaml:"event"`
	Kalman     KalmanConfig     `yaml:"kalman"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StoreConfig selects and tunes the real-time state backend.
type StoreConfig struct {
	Backend string   `yaml:"backend"` // "memory", "redis"
	Redis   string   `yaml:"redis"`   // redis://host:port/db
	Timeout Duration `yaml:"timeout"`
}

// DBConfig holds route archive settings.
type DBConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RouteConfig tunes course preparation.
type RouteConfig struct {
	Spacing   Distance `yaml:"spacing"`
	CPSpacing Distance `yaml:"cp_spacing"`
	TTL       Duration `yaml:"ttl"`
}

// MatchConfig tunes the map matcher.
type MatchConfig struct {
	Threshold     Distance `yaml:"threshold"`
	BearingWeight float64  `yaml:"bearing_weight"` // meters of penalty per degree
}

// CheckpointConfig tunes crossing detection.
type CheckpointConfig struct {
	Radius         Distance `yaml:"radius"`
	LeaderboardTTL Duration `yaml:"leaderboard_ttl"`
}

// EventConfig carries per-deployment event facts.
type EventConfig struct {
	// StartTime is the official event start, RFC 3339. Empty means
	// unknown; segment timing then anchors at a rolling fallback.
	StartTime string `yaml:"start_time"`
}

// KalmanConfig tunes the GPS filter.
type KalmanConfig struct {
	ProcessNoiseLatLng float64 `yaml:"process_noise_latlng"`
	ProcessNoiseAlt    float64 `yaml:"process_noise_alt"`
	MeasurementNoise   float64 `yaml:"measurement_noise"`
	InitialCovariance  float64 `yaml:"initial_covariance"`
}

// StartUnix parses the configured event start time. Zero when unset.
func (e EventConfig) StartUnix() (int64, error) {
	if e.StartTime == "" {
		return 0, nil
	}
	ts, err := time.Parse(time.RFC3339, e.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid event start_time %q: %w", e.StartTime, err)
	}
	return ts.Unix(), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:8090",
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis:   "redis://localhost:6379/0",
			Timeout: Duration(200 * time.Millisecond),
		},
		DB: DBConfig{
			Path:      "./data/racepulse.db",
			Retention: Duration(90 * Day),
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		Route: RouteConfig{
			Spacing:   Distance(100),
			CPSpacing: Distance(1000),
			TTL:       Duration(Day),
		},
		Match: MatchConfig{
			Threshold:     Distance(50),
			BearingWeight: 0.05,
		},
		Checkpoint: CheckpointConfig{
			Radius:         Distance(30),
			LeaderboardTTL: Duration(Week),
		},
		Kalman: KalmanConfig{
			ProcessNoiseLatLng: 1e-6,
			ProcessNoiseAlt:    0.1,
			MeasurementNoise:   5,
			InitialCovariance:  1,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		// Save runs before the env fallbacks so they never reach disk
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env fallbacks, never written back to disk
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Store.Redis = url
	}
	if start := os.Getenv("EVENT_START_TIME"); start != "" && cfg.Event.StartTime == "" {
		cfg.Event.StartTime = start
	}

	if _, err := cfg.Event.StartUnix(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# RacePulse Configuration
# -----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)

`)
	data = append(header, data...)

	// Inject comments for enum fields
	reBackend := regexp.MustCompile(`(?m)^(\s+)backend:`)
	data = reBackend.ReplaceAll(data, []byte("${1}# Options: memory, redis\n${1}backend:"))

	reStart := regexp.MustCompile(`(?m)^(\s+)start_time:`)
	data = reStart.ReplaceAll(data, []byte("${1}# Official event start, RFC 3339, e.g. 2026-04-12T09:00:00+09:00\n${1}start_time:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
