// Package config loads the RepID daemon configuration from TOML.
// The file lives at ~/.repid/config.toml by default; every field has a
// working default so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/hyperdag-network/repid/internal/infra/reputation"
)

// Config is the full daemon configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Engine  EngineConfig  `toml:"engine"`
	Storage StorageConfig `toml:"storage"`
	Ingest  IngestConfig  `toml:"ingest"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// EngineConfig mirrors reputation.Policy in TOML form. Zero values fall back
// to the policy defaults, so operators only override what they tune.
type EngineConfig struct {
	DecayRate     float64 `toml:"decay_rate"`
	RecoveryBonus float64 `toml:"recovery_bonus"`
	BaseReward    float64 `toml:"base_reward"`
	BasePenalty   float64 `toml:"base_penalty"`
	MinRepID      float64 `toml:"min_repid"`
	MaxRepID      float64 `toml:"max_repid"`
	DefaultRepID  float64 `toml:"default_repid"`

	BlendNewWeight          float64 `toml:"blend_new_weight"`
	ConfidentMissThreshold  float64 `toml:"confident_miss_threshold"`
	ConfidentMissMultiplier float64 `toml:"confident_miss_multiplier"`
	EdgeCaseMultiplier      float64 `toml:"edge_case_multiplier"`
	RecoveryWindow          int     `toml:"recovery_window"`
	RecoveryThreshold       float64 `toml:"recovery_threshold"`
	TrendWindow             int     `toml:"trend_window"`
	TrendThreshold          float64 `toml:"trend_threshold"`
	ValidationHistoryCap    int     `toml:"validation_history_cap"`
	UpdateHistoryCap        int     `toml:"update_history_cap"`
}

// StorageConfig configures the SQLite snapshot store.
type StorageConfig struct {
	Path             string `toml:"path"`              // empty disables persistence
	SnapshotInterval string `toml:"snapshot_interval"` // Go duration, e.g. "30s"
}

// IngestConfig configures the optional NATS validation-event subscriber.
type IngestConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
	Token   string `toml:"token"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	p := reputation.DefaultPolicy()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           7432,
			MetricsEnabled: true,
		},
		Engine: EngineConfig{
			DecayRate:               p.DecayRate,
			RecoveryBonus:           p.RecoveryBonus,
			BaseReward:              p.BaseReward,
			BasePenalty:             p.BasePenalty,
			MinRepID:                p.MinRepID,
			MaxRepID:                p.MaxRepID,
			DefaultRepID:            p.DefaultRepID,
			BlendNewWeight:          p.BlendNewWeight,
			ConfidentMissThreshold:  p.ConfidentMissThreshold,
			ConfidentMissMultiplier: p.ConfidentMissMultiplier,
			EdgeCaseMultiplier:      p.EdgeCaseMultiplier,
			RecoveryWindow:          p.RecoveryWindow,
			RecoveryThreshold:       p.RecoveryThreshold,
			TrendWindow:             p.TrendWindow,
			TrendThreshold:          p.TrendThreshold,
			ValidationHistoryCap:    p.ValidationHistoryCap,
			UpdateHistoryCap:        p.UpdateHistoryCap,
		},
		Storage: StorageConfig{
			Path:             filepath.Join(homeDir(), "repid.db"),
			SnapshotInterval: "30s",
		},
		Ingest: IngestConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "repid.validations",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields DefaultConfig.
func Load(path string) (Config, error) {
	if path == "" {
		path = filepath.Join(homeDir(), "config.toml")
	}

	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Policy converts the engine section into a reputation.Policy, filling any
// zero-valued tunable with its default. Validation happens in NewEngine.
func (c Config) Policy() reputation.Policy {
	p := reputation.DefaultPolicy()
	e := c.Engine

	if e.DecayRate != 0 {
		p.DecayRate = e.DecayRate
	}
	if e.RecoveryBonus != 0 {
		p.RecoveryBonus = e.RecoveryBonus
	}
	if e.BaseReward != 0 {
		p.BaseReward = e.BaseReward
	}
	if e.BasePenalty != 0 {
		p.BasePenalty = e.BasePenalty
	}
	if e.MinRepID != 0 {
		p.MinRepID = e.MinRepID
	}
	if e.MaxRepID != 0 {
		p.MaxRepID = e.MaxRepID
	}
	if e.DefaultRepID != 0 {
		p.DefaultRepID = e.DefaultRepID
	}
	if e.BlendNewWeight != 0 {
		p.BlendNewWeight = e.BlendNewWeight
	}
	if e.ConfidentMissThreshold != 0 {
		p.ConfidentMissThreshold = e.ConfidentMissThreshold
	}
	if e.ConfidentMissMultiplier != 0 {
		p.ConfidentMissMultiplier = e.ConfidentMissMultiplier
	}
	if e.EdgeCaseMultiplier != 0 {
		p.EdgeCaseMultiplier = e.EdgeCaseMultiplier
	}
	if e.RecoveryWindow != 0 {
		p.RecoveryWindow = e.RecoveryWindow
	}
	if e.RecoveryThreshold != 0 {
		p.RecoveryThreshold = e.RecoveryThreshold
	}
	if e.TrendWindow != 0 {
		p.TrendWindow = e.TrendWindow
	}
	if e.TrendThreshold != 0 {
		p.TrendThreshold = e.TrendThreshold
	}
	if e.ValidationHistoryCap != 0 {
		p.ValidationHistoryCap = e.ValidationHistoryCap
	}
	if e.UpdateHistoryCap != 0 {
		p.UpdateHistoryCap = e.UpdateHistoryCap
	}
	return p
}

// homeDir returns the repid home directory, honoring REPID_HOME.
func homeDir() string {
	if env := os.Getenv("REPID_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".repid")
}
