package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/webrlabs/arcadiaforge/internal/config"
	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/obslog"
	"github.com/webrlabs/arcadiaforge/internal/store/sqlite"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show the Feature Registry and latest session summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print machine-readable JSON instead of a rendered report")
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
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
	stats := features.Stats()

	session, hasSession, err := store.LatestSession()
	if err != nil {
		return fmt.Errorf("load latest session: %w", err)
	}

	if statusJSON {
		out := map[string]any{
			"features_total":   stats.Total,
			"features_passing": stats.Passing,
			"progress_percent": stats.ProgressPercent(),
		}
		if hasSession {
			out["last_session"] = map[string]any{"id": session.ID, "status": session.Status}
		}
		buf, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		fmt.Println(string(buf))
		return nil
	}

	if !obslog.ColorEnabled() {
		fmt.Printf("features: %d/%d passing (%.0f%%)\n", stats.Passing, stats.Total, stats.ProgressPercent())
		if hasSession {
			fmt.Printf("last session: #%d status=%s\n", session.ID, session.Status)
		} else {
			fmt.Println("no sessions recorded yet")
		}
		return nil
	}

	fmt.Println(renderStatusReport(stats, session, hasSession))
	return nil
}

func renderStatusReport(stats feature.Stats, session types.Session, hasSession bool) string {
	header := lipgloss.NewStyle().Bold(true).Render("Arcadia Forge — status")
	bar := lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).
		Render(fmt.Sprintf("%d/%d features passing (%.0f%%)", stats.Passing, stats.Total, stats.ProgressPercent()))

	lines := []string{header, "", bar}
	if hasSession {
		lines = append(lines, fmt.Sprintf("last session #%d: %s", session.ID, session.Status))
		if session.Summary != "" {
			lines = append(lines, lipgloss.NewStyle().Faint(true).Render(session.Summary))
		}
	} else {
		lines = append(lines, lipgloss.NewStyle().Faint(true).Render("no sessions recorded yet"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
