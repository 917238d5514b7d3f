package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Manifest is a sectioned, human-diffable snapshot of part of the
// resolved configuration, written by writeSectionedManifest. `forge init`
// writes .arcadia/manifest.toml through WriteManifest (config.go) instead,
// and nothing rewrites the manifest when config is reloaded. It is
// distinct from config.yaml (the editable source).
type Manifest struct {
	GeneratedAt time.Time `toml:"generated_at"`
	ProjectDir  string    `toml:"project_dir"`

	Autonomy struct {
		InitialLevel int `toml:"initial_level"`
		MinLevel     int `toml:"min_level"`
		MaxLevel     int `toml:"max_level"`
	} `toml:"autonomy"`

	Budget struct {
		CapUSD      float64 `toml:"cap_usd"`
		InputPer1K  float64 `toml:"input_per_1k_usd"`
		OutputPer1K float64 `toml:"output_per_1k_usd"`
	} `toml:"budget"`

	Stall struct {
		TimeoutSeconds float64 `toml:"timeout_seconds"`
	} `toml:"stall"`
}

func (c *Config) manifestFromConfig() *Manifest {
	m := &Manifest{
		GeneratedAt: time.Now().UTC(),
		ProjectDir:  c.ProjectDir,
	}
	m.Autonomy.InitialLevel = c.AutonomyInitialLevel
	m.Autonomy.MinLevel = c.AutonomyMinLevel
	m.Autonomy.MaxLevel = c.AutonomyMaxLevel
	m.Budget.CapUSD = c.BudgetCapUSD
	m.Budget.InputPer1K = c.BudgetInputPer1K
	m.Budget.OutputPer1K = c.BudgetOutputPer1K
	m.Stall.TimeoutSeconds = c.StallTimeout.Seconds()
	return m
}

// writeSectionedManifest serializes a Manifest of the resolved
// configuration to .arcadia/manifest.toml.
func (c *Config) writeSectionedManifest() error {
	path := filepath.Join(c.ProjectDir, ProjectDirName, "manifest.toml")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(c.manifestFromConfig())
}
