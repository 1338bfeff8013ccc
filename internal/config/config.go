// Package config loads runtime configuration from env vars with an
// optional yaml overlay.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"blinkwatch/internal/storage"
)

// DetectionConfig tunes the blink detector.
type DetectionConfig struct {
	Threshold    float64 `yaml:"threshold"`
	MinRunLength int     `yaml:"min_run_length"`
}

// AlertConfig tunes the no-blink alert.
type AlertConfig struct {
	Enabled    bool          `yaml:"enabled"`
	After      time.Duration `yaml:"after"`
	Repeat     time.Duration `yaml:"repeat"`
	SoundFile  string        `yaml:"sound_file"`
	WebhookURL string        `yaml:"webhook_url"`
}

// UnmarshalYAML accepts Go duration strings for after/repeat and leaves
// absent fields at their current values.
func (c *AlertConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled    *bool  `yaml:"enabled"`
		After      string `yaml:"after"`
		Repeat     string `yaml:"repeat"`
		SoundFile  string `yaml:"sound_file"`
		WebhookURL string `yaml:"webhook_url"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.After != "" {
		parsed, err := time.ParseDuration(raw.After)
		if err != nil {
			return err
		}
		c.After = parsed
	}
	if raw.Repeat != "" {
		parsed, err := time.ParseDuration(raw.Repeat)
		if err != nil {
			return err
		}
		c.Repeat = parsed
	}
	if raw.SoundFile != "" {
		c.SoundFile = raw.SoundFile
	}
	if raw.WebhookURL != "" {
		c.WebhookURL = raw.WebhookURL
	}
	return nil
}

// StorageConfig selects and parameterizes the persistence backend.
type StorageConfig struct {
	Backend     storage.Backend `yaml:"backend"`
	OutputDir   string          `yaml:"output_dir"`
	DatabaseURL string          `yaml:"database_url"`
}

// DatabasePath resolves the sqlite file path under the output dir.
func (c StorageConfig) DatabasePath() string {
	return filepath.Join(c.OutputDir, "blinks.db")
}

// CSVConfig tunes the per-window csv export.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// HTTPConfig tunes the query API server.
type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// ReplayConfig points the capture loop at a recorded sample file
// instead of a live camera feed.
type ReplayConfig struct {
	Path string `yaml:"path"`
}

// Config is the full runtime configuration.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Alerts    AlertConfig     `yaml:"alerts"`
	Storage   StorageConfig   `yaml:"storage"`
	CSV       CSVConfig       `yaml:"csv"`
	HTTP      HTTPConfig      `yaml:"http"`
	Replay    ReplayConfig    `yaml:"replay"`
}

// Load builds the configuration from defaults, then an optional yaml file
// named by BLINKWATCH_CONFIG, then env var overrides.
func Load() (Config, error) {
	cfg := Config{
		Detection: DetectionConfig{
			Threshold:    0.21,
			MinRunLength: 2,
		},
		Alerts: AlertConfig{
			Enabled: false,
			After:   30 * time.Second,
			Repeat:  30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   storage.BackendSQLite,
			OutputDir: "output",
		},
		CSV: CSVConfig{
			Enabled: false,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}

	if path := os.Getenv("BLINKWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.Detection.Threshold = getenvFloatDefault("BLINK_THRESHOLD", cfg.Detection.Threshold)
	cfg.Detection.MinRunLength = getenvIntDefault("BLINK_CONSEC_FRAMES", cfg.Detection.MinRunLength)

	cfg.Alerts.Enabled = getenvBoolDefault("ALERT_ENABLED", cfg.Alerts.Enabled)
	cfg.Alerts.After = getenvDuration("ALERT_AFTER", cfg.Alerts.After)
	cfg.Alerts.Repeat = getenvDuration("ALERT_REPEAT", cfg.Alerts.Repeat)
	cfg.Alerts.SoundFile = getenvDefault("ALERT_SOUND_FILE", cfg.Alerts.SoundFile)
	cfg.Alerts.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Alerts.WebhookURL)

	cfg.Storage.Backend = storage.Backend(getenvDefault("STORAGE_BACKEND", string(cfg.Storage.Backend)))
	cfg.Storage.OutputDir = getenvDefault("OUTPUT_DIR", cfg.Storage.OutputDir)
	cfg.Storage.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Storage.DatabaseURL))

	cfg.CSV.Enabled = getenvBoolDefault("CSV_EXPORT", cfg.CSV.Enabled)
	cfg.CSV.Dir = getenvDefault("CSV_DIR", cfg.CSV.Dir)
	if cfg.CSV.Dir == "" {
		cfg.CSV.Dir = cfg.Storage.OutputDir
	}

	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.HTTP.JWTSecret))

	cfg.Replay.Path = getenvDefault("REPLAY_PATH", cfg.Replay.Path)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Detection.Threshold <= 0 || c.Detection.Threshold >= 1 {
		return errors.New("config: threshold must be between 0 and 1")
	}
	if c.Detection.MinRunLength < 1 {
		return errors.New("config: min_run_length must be at least 1")
	}
	if !c.Storage.Backend.IsValid() {
		return errors.New("config: backend must be sqlite, postgres or memory")
	}
	if c.Storage.Backend == storage.BackendPostgres && c.Storage.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required for the postgres backend")
	}
	if c.Storage.Backend == storage.BackendSQLite && c.Storage.OutputDir == "" {
		return errors.New("config: output_dir is required for the sqlite backend")
	}
	if c.Alerts.Enabled && c.Alerts.After <= 0 {
		return errors.New("config: alert after must be positive")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
