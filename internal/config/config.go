// Package config loads the fleet engine's runtime configuration: vendor
// credentials, feature switches, persistence location, and polling
// cadence. Environment variables always win over an optional YAML file,
// matching how operators expect to override a single value without
// editing the file on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// VendorConfig holds the AutoXing dispatch API credentials and tuning.
type VendorConfig struct {
	BaseURL         string        `yaml:"base_url"`
	AppID           string        `yaml:"app_id"`
	AppSecret       string        `yaml:"app_secret"`
	AppCode         string        `yaml:"app_code"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
}

// Config is the complete fleet engine configuration.
type Config struct {
	Vendor VendorConfig `yaml:"vendor"`

	// AutoReassignOnOffline enables automatic task reassignment to READY
	// when a run's robot is detected offline during a tick pass.
	AutoReassignOnOffline bool `yaml:"auto_reassign_on_offline"`

	// SafeMode blocks creation of new vendor tasks with a hard Unavailable
	// error while allowing existing runs to continue ticking.
	SafeMode bool `yaml:"safe_mode"`

	// PollIntervalSeconds is the robot state poller's period. Floored to
	// 1 second.
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`

	// DataDir holds the SQLite database file and any on-disk state.
	DataDir string `yaml:"data_dir"`

	// RobotIDs is the fixed set of robots the state poller tracks.
	RobotIDs []string `yaml:"robot_ids"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// TickIntervalSeconds is how often the daemon runs the workflow
	// runner's tick pass.
	TickIntervalSeconds float64 `yaml:"tick_interval_seconds"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors the subset of internal/log.Config that belongs in the
// config file; environment variables read by internal/log.FromEnv still
// take precedence at process start.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults applied before env/file overrides.
func Default() *Config {
	return &Config{
		Vendor: VendorConfig{
			TokenTTL:        3000 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimitPerSec: 5,
		},
		PollIntervalSeconds: 5,
		TickIntervalSeconds: 2,
		DataDir:             "./data",
		MetricsAddr:         ":9090",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config by starting from Default, applying an optional YAML
// file at path (skipped if path is empty or the file does not exist), then
// applying environment variable overrides, and finally validating.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg fields from environment variables, matching the
// vendor's published variable names.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AUTOX_BASE_URL"); v != "" {
		cfg.Vendor.BaseURL = v
	}
	if v := os.Getenv("AUTOX_APP_ID"); v != "" {
		cfg.Vendor.AppID = v
	}
	if v := os.Getenv("AUTOX_APP_SECRET"); v != "" {
		cfg.Vendor.AppSecret = v
	}
	if v := os.Getenv("AUTOX_APP_CODE"); v != "" {
		cfg.Vendor.AppCode = v
	}
	if v := os.Getenv("AUTOX_TOKEN_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vendor.TokenTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("AUTO_REASSIGN_ON_OFFLINE"); v != "" {
		cfg.AutoReassignOnOffline = parseBool(v, cfg.AutoReassignOnOffline)
	}
	if v := os.Getenv("SAFE_MODE"); v != "" {
		cfg.SafeMode = parseBool(v, cfg.SafeMode)
	}
	if v := os.Getenv("FLEET_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLEET_POLL_INTERVAL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PollIntervalSeconds = f
		}
	}
	if v := os.Getenv("FLEET_TICK_INTERVAL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TickIntervalSeconds = f
		}
	}
	if v := os.Getenv("FLEET_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("FLEET_ROBOT_IDS"); v != "" {
		cfg.RobotIDs = splitNonEmpty(v, ",")
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// Validate checks that tuning values are sane: it floors
// PollIntervalSeconds at 1, defaults a non-positive TickIntervalSeconds to
// 2, and rejects a non-positive token TTL or rate limit and an empty
// DataDir. It does not check that vendor credentials are present, so a
// Config without them (e.g. for SafeMode or offline use) validates.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds < 1 {
		c.PollIntervalSeconds = 1
	}
	if c.TickIntervalSeconds <= 0 {
		c.TickIntervalSeconds = 2
	}
	if c.Vendor.TokenTTL <= 0 {
		return fmt.Errorf("%w: vendor token_ttl must be positive", ErrInvalidConfig)
	}
	if c.Vendor.RateLimitPerSec <= 0 {
		return fmt.Errorf("%w: vendor rate_limit_per_sec must be positive", ErrInvalidConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}
	return nil
}
