package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/webrlabs/arcadiaforge/internal/config"
	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/obslog"
	"github.com/webrlabs/arcadiaforge/internal/store/sqlite"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

var (
	initQuiet bool
	initAdd   []string
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "session",
	Short:   "Initialize Arcadia Forge in the current directory",
	Long: `Initialize creates the .arcadia/ project directory, its SQLite state
store, and exports a human-diffable manifest.toml snapshot of the resolved
configuration. Optionally seeds the Feature Registry interactively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func init() {
	initCmd.Flags().BoolVar(&initQuiet, "quiet", false, "skip the interactive feature-seeding form")
	initCmd.Flags().StringSliceVar(&initAdd, "feature", nil, "seed a feature description (repeatable); skips the interactive form")
	rootCmd.AddCommand(initCmd)
}

func runInit() error {
	dir := filepath.Join(projectDir, config.ProjectDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	features, err := feature.Load(store)
	if err != nil {
		return fmt.Errorf("load feature registry: %w", err)
	}

	descriptions := initAdd
	if len(descriptions) == 0 && !initQuiet {
		descriptions, err = promptInitialFeatures()
		if err != nil {
			return fmt.Errorf("feature form: %w", err)
		}
	}
	for _, desc := range descriptions {
		if _, err := features.Add(types.CategoryFunctional, desc, nil); err != nil {
			return fmt.Errorf("add feature %q: %w", desc, err)
		}
	}

	if err := cfg.WriteManifest(cfg.ManifestPath()); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	fmt.Println(renderInitSummary(cfg, len(descriptions)))
	return nil
}

func promptInitialFeatures() ([]string, error) {
	if !obslog.ColorEnabled() {
		return nil, nil
	}

	var raw string
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Seed the Feature Registry now?").
				Description("You can always add features later via the feature_add tool.").
				Value(&confirmed),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Feature descriptions").
				Description("One per line.").
				Value(&raw),
		).WithHideFunc(func() bool { return !confirmed }),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, nil
	}

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func renderInitSummary(cfg *config.Config, seeded int) string {
	return fmt.Sprintf(
		"Arcadia Forge initialized in %s\n  state store: %s\n  manifest:    %s\n  features seeded: %d\n\nRun `forge run` to start a session.",
		cfg.ProjectDir, cfg.StatePath(), cfg.ManifestPath(), seeded,
	)
}
