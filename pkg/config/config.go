// Package config loads the attachd server configuration from a YAML file.
// Command-line flag overrides are applied on top by cmd/attachd; no
// environment variables are read. Config is read once at startup; no
// background task may re-read it off disk.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/attachctl/attachctl/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration for the attachd server.
type Config struct {
	// ListenAddr is the address the HTTP/JSON API binds to.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir is the directory for the optional bbolt persistence layer.
	// Empty means run fully in-memory.
	DataDir string `yaml:"data_dir"`

	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`

	// DefaultPlacement is the placement policy applied to new tenant shards
	// that don't specify one explicitly.
	DefaultPlacement PlacementConfig `yaml:"default_placement"`

	// ScheduleInterval must be positive to pass Validate, but no component
	// reads it: there is no periodic scheduler loop, and shards are scheduled
	// only when a tenant is created or a referenced node is reconfigured.
	ScheduleInterval time.Duration `yaml:"schedule_interval"`

	// ReconcileRetryInterval is not read by any component: a failed
	// reconcile is logged and not retried until the next intent change
	// spawns a new reconciler for the shard.
	ReconcileRetryInterval time.Duration `yaml:"reconcile_retry_interval"`

	// PageServerTimeout bounds every outbound call to a page server.
	PageServerTimeout time.Duration `yaml:"page_server_timeout"`

	// StaleModeTimeout is not read by the reconciler, which bounds the
	// AttachedStale PUT to a live-migration origin with a fixed 10s timeout.
	StaleModeTimeout time.Duration `yaml:"stale_mode_timeout"`

	// LSNPollInterval is not read by the reconciler, which waits a fixed
	// 500ms between LSN catch-up polls during a live migration.
	LSNPollInterval time.Duration `yaml:"lsn_poll_interval"`
}

// PlacementConfig is the YAML-friendly mirror of types.PlacementPolicy.
type PlacementConfig struct {
	Mode        string `yaml:"mode"` // "single" or "double"
	Secondaries int    `yaml:"secondaries"`
}

// ToPolicy converts the YAML config into a types.PlacementPolicy.
func (p PlacementConfig) ToPolicy() (types.PlacementPolicy, error) {
	switch types.PlacementMode(p.Mode) {
	case types.PlacementModeSingle, "":
		return types.SinglePolicy(), nil
	case types.PlacementModeDouble:
		return types.DoublePolicy(p.Secondaries), nil
	default:
		return types.PlacementPolicy{}, fmt.Errorf("unknown placement mode %q", p.Mode)
	}
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddr:             ":6440",
		LogLevel:               "info",
		LogJSON:                true,
		DefaultPlacement:       PlacementConfig{Mode: "double", Secondaries: 1},
		ScheduleInterval:       5 * time.Second,
		ReconcileRetryInterval: 10 * time.Second,
		PageServerTimeout:      10 * time.Second,
		StaleModeTimeout:       10 * time.Second,
		LSNPollInterval:        500 * time.Millisecond,
	}
}

// Load reads a YAML config file at path and overlays it onto Default. An
// empty path returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for obviously invalid values.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if _, err := c.DefaultPlacement.ToPolicy(); err != nil {
		return fmt.Errorf("default_placement: %w", err)
	}
	if c.ScheduleInterval <= 0 {
		return fmt.Errorf("schedule_interval must be positive")
	}
	if c.PageServerTimeout <= 0 {
		return fmt.Errorf("page_server_timeout must be positive")
	}
	return nil
}
