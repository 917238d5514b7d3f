// Package config loads Arcadia Forge's layered configuration: a project
// file (or, when there is none, a user file), environment variables, and
// built-in defaults, using Viper the same way the rest of this module's
// lineage does. CLI flags are not a layer of this package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// ProjectDirName is the per-project state directory created under the
// project root.
const ProjectDirName = ".arcadia"

// Config is the fully resolved configuration for one supervisor run.
type Config struct {
	ProjectDir string

	// Autonomy
	AutonomyInitialLevel     int
	AutonomyMinLevel         int
	AutonomyMaxLevel         int
	AutonomySuccessPromoteAt int
	AutonomyErrorDemoteAt    int
	AutonomyConfidenceFloor  float64

	// Budget
	BudgetCapUSD        float64
	BudgetInputPer1K    float64
	BudgetOutputPer1K   float64

	// Stall / cyclic detection
	StallTimeout      time.Duration
	CyclicWindow      int
	CyclicThreshold   int

	// Memory
	WarmSummaryCapacity int

	// Human channel
	DefaultInjectionTimeout time.Duration
	InterventionMinApplied  int
	InterventionSuccessRate float64

	// Checkpointing
	GitAuthorName  string
	GitAuthorEmail string

	// Logging
	LogPath     string
	LogMaxSizeMB int
	LogMaxBackups int
}

var v *viper.Viper

// Load resolves configuration for projectDir with environment > config
// file > default precedence. The config file is the project's
// .arcadia/config.yaml if it exists, otherwise the user-level
// config.yaml; the two files are never merged.
func Load(projectDir string) (*Config, error) {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	projectConfigPath := filepath.Join(projectDir, ProjectDirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		v.SetConfigFile(projectConfigPath)
		configFileSet = true
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			userConfigPath := filepath.Join(configDir, "arcadia-forge", "config.yaml")
			if _, err := os.Stat(userConfigPath); err == nil {
				v.SetConfigFile(userConfigPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("ARCADIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	stall, err := time.ParseDuration(v.GetString("stall.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid stall.timeout: %w", err)
	}
	injectTimeout, err := time.ParseDuration(v.GetString("human.default_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid human.default_timeout: %w", err)
	}

	cfg := &Config{
		ProjectDir: projectDir,

		AutonomyInitialLevel:     v.GetInt("autonomy.initial_level"),
		AutonomyMinLevel:         v.GetInt("autonomy.min_level"),
		AutonomyMaxLevel:         v.GetInt("autonomy.max_level"),
		AutonomySuccessPromoteAt: v.GetInt("autonomy.success_promote_at"),
		AutonomyErrorDemoteAt:    v.GetInt("autonomy.error_demote_at"),
		AutonomyConfidenceFloor:  v.GetFloat64("autonomy.confidence_floor"),

		BudgetCapUSD:      v.GetFloat64("budget.cap_usd"),
		BudgetInputPer1K:  v.GetFloat64("budget.input_per_1k_usd"),
		BudgetOutputPer1K: v.GetFloat64("budget.output_per_1k_usd"),

		StallTimeout:    stall,
		CyclicWindow:    v.GetInt("cyclic.window"),
		CyclicThreshold: v.GetInt("cyclic.threshold"),

		WarmSummaryCapacity: v.GetInt("memory.warm_capacity"),

		DefaultInjectionTimeout: injectTimeout,
		InterventionMinApplied:  v.GetInt("human.intervention_min_applied"),
		InterventionSuccessRate: v.GetFloat64("human.intervention_success_rate"),

		GitAuthorName:  v.GetString("git.author_name"),
		GitAuthorEmail: v.GetString("git.author_email"),

		LogPath:       v.GetString("log.path"),
		LogMaxSizeMB:  v.GetInt("log.max_size_mb"),
		LogMaxBackups: v.GetInt("log.max_backups"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("autonomy.initial_level", 3) // EXECUTE_SAFE
	v.SetDefault("autonomy.min_level", 1)
	v.SetDefault("autonomy.max_level", 4)
	v.SetDefault("autonomy.success_promote_at", 10)
	v.SetDefault("autonomy.error_demote_at", 3)
	v.SetDefault("autonomy.confidence_floor", 0.5)

	v.SetDefault("budget.cap_usd", 10.0)
	v.SetDefault("budget.input_per_1k_usd", 0.003)
	v.SetDefault("budget.output_per_1k_usd", 0.015)

	v.SetDefault("stall.timeout", "300s")
	v.SetDefault("cyclic.window", 10)
	v.SetDefault("cyclic.threshold", 3)

	v.SetDefault("memory.warm_capacity", 5)

	v.SetDefault("human.default_timeout", "600s")
	v.SetDefault("human.intervention_min_applied", 3)
	v.SetDefault("human.intervention_success_rate", 0.75)

	v.SetDefault("git.author_name", "Arcadia Forge")
	v.SetDefault("git.author_email", "forge@arcadia.local")

	v.SetDefault("log.path", filepath.Join(ProjectDirName, "forge.log"))
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 5)
}

func (c *Config) validate() error {
	if c.AutonomyMinLevel < 1 || c.AutonomyMaxLevel > 5 || c.AutonomyMinLevel > c.AutonomyMaxLevel {
		return fmt.Errorf("invalid autonomy level bounds: min=%d max=%d", c.AutonomyMinLevel, c.AutonomyMaxLevel)
	}
	if c.AutonomyInitialLevel < c.AutonomyMinLevel || c.AutonomyInitialLevel > c.AutonomyMaxLevel {
		return fmt.Errorf("autonomy.initial_level %d outside [%d,%d]", c.AutonomyInitialLevel, c.AutonomyMinLevel, c.AutonomyMaxLevel)
	}
	if c.BudgetCapUSD <= 0 {
		return fmt.Errorf("budget.cap_usd must be positive")
	}
	return nil
}

// StatePath returns the path to the embedded relational store file.
func (c *Config) StatePath() string {
	return filepath.Join(c.ProjectDir, ProjectDirName, "project.db")
}

// EventLogPath returns the path to the append-only event log.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.ProjectDir, ".events.jsonl")
}

// PausedSessionPath returns the path to the paused-session marker file.
func (c *Config) PausedSessionPath() string {
	return filepath.Join(c.ProjectDir, ".paused_session.json")
}

// VerificationDir returns the directory evidence artifacts are written to.
func (c *Config) VerificationDir() string {
	return filepath.Join(c.ProjectDir, "verification")
}

// LockPath returns the path to the single-writer advisory lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.ProjectDir, ProjectDirName, "forge.lock")
}

// ManifestPath returns the path to the human-diffable exported config
// snapshot written by WriteManifest on init.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.ProjectDir, ProjectDirName, "manifest.toml")
}

// manifestSnapshot is the subset of Config worth recording for a human
// to diff across runs — derived paths are recomputed, not snapshotted.
type manifestSnapshot struct {
	AutonomyInitialLevel     int     `toml:"autonomy_initial_level"`
	AutonomyMinLevel         int     `toml:"autonomy_min_level"`
	AutonomyMaxLevel         int     `toml:"autonomy_max_level"`
	AutonomySuccessPromoteAt int     `toml:"autonomy_success_promote_at"`
	AutonomyErrorDemoteAt    int     `toml:"autonomy_error_demote_at"`
	AutonomyConfidenceFloor  float64 `toml:"autonomy_confidence_floor"`
	BudgetCapUSD             float64 `toml:"budget_cap_usd"`
	BudgetInputPer1K         float64 `toml:"budget_input_per_1k_usd"`
	BudgetOutputPer1K        float64 `toml:"budget_output_per_1k_usd"`
	StallTimeout             string  `toml:"stall_timeout"`
	CyclicWindow             int     `toml:"cyclic_window"`
	CyclicThreshold          int     `toml:"cyclic_threshold"`
	WarmSummaryCapacity      int     `toml:"warm_summary_capacity"`
	DefaultInjectionTimeout  string  `toml:"default_injection_timeout"`
	GitAuthorName            string  `toml:"git_author_name"`
	GitAuthorEmail           string  `toml:"git_author_email"`
}

// WriteManifest exports the resolved configuration to path as TOML —
// a snapshot a human can diff across `forge init` runs without parsing
// YAML defaults against environment overrides in their head.
func (c *Config) WriteManifest(path string) error {
	snap := manifestSnapshot{
		AutonomyInitialLevel:     c.AutonomyInitialLevel,
		AutonomyMinLevel:         c.AutonomyMinLevel,
		AutonomyMaxLevel:         c.AutonomyMaxLevel,
		AutonomySuccessPromoteAt: c.AutonomySuccessPromoteAt,
		AutonomyErrorDemoteAt:    c.AutonomyErrorDemoteAt,
		AutonomyConfidenceFloor:  c.AutonomyConfidenceFloor,
		BudgetCapUSD:             c.BudgetCapUSD,
		BudgetInputPer1K:         c.BudgetInputPer1K,
		BudgetOutputPer1K:        c.BudgetOutputPer1K,
		StallTimeout:             c.StallTimeout.String(),
		CyclicWindow:             c.CyclicWindow,
		CyclicThreshold:          c.CyclicThreshold,
		WarmSummaryCapacity:      c.WarmSummaryCapacity,
		DefaultInjectionTimeout:  c.DefaultInjectionTimeout.String(),
		GitAuthorName:            c.GitAuthorName,
		GitAuthorEmail:           c.GitAuthorEmail,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}
