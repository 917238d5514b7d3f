package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/webrlabs/arcadiaforge/internal/config"
	"github.com/webrlabs/arcadiaforge/internal/human"
	"github.com/webrlabs/arcadiaforge/internal/obslog"
	"github.com/webrlabs/arcadiaforge/internal/store/sqlite"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

var respondPointID int64

var respondCmd = &cobra.Command{
	Use:     "respond",
	GroupID: "human",
	Short:   "Answer a pending Human Channel injection point",
	Long: `Respond lists every pending injection point — a question, approval
request, or checkpoint the running session is blocked on — and lets an
operator answer one from the terminal. With --point, it answers that
point directly instead of prompting for a selection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRespond()
	},
}

func init() {
	respondCmd.Flags().Int64Var(&respondPointID, "point", 0, "injection point id to answer directly (skips the picker)")
	rootCmd.AddCommand(respondCmd)
}

func runRespond() error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	pending, err := store.ListPendingInjectionPoints()
	if err != nil {
		return fmt.Errorf("list pending injection points: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("no pending injection points")
		return nil
	}

	point, err := pickInjectionPoint(pending, respondPointID)
	if err != nil {
		return err
	}

	channel := human.New(store, point.SessionID, 0, nil)

	response, cancel, err := promptResponse(point)
	if err != nil {
		return fmt.Errorf("response form: %w", err)
	}
	if cancel {
		ok, err := channel.Cancel(point.ID)
		if err != nil {
			return fmt.Errorf("cancel point %d: %w", point.ID, err)
		}
		if !ok {
			fmt.Printf("point %d was already resolved\n", point.ID)
			return nil
		}
		fmt.Printf("point %d cancelled\n", point.ID)
		return nil
	}

	ok, err := channel.Respond(point.ID, response)
	if err != nil {
		return fmt.Errorf("respond to point %d: %w", point.ID, err)
	}
	if !ok {
		fmt.Printf("point %d was already resolved\n", point.ID)
		return nil
	}
	fmt.Printf("point %d answered\n", point.ID)
	return nil
}

func pickInjectionPoint(pending []types.InjectionPoint, pointID int64) (types.InjectionPoint, error) {
	if pointID != 0 {
		for _, p := range pending {
			if p.ID == pointID {
				return p, nil
			}
		}
		return types.InjectionPoint{}, fmt.Errorf("point %d is not pending", pointID)
	}
	if len(pending) == 1 || !obslog.ColorEnabled() {
		return pending[0], nil
	}

	options := make([]huh.Option[int64], len(pending))
	for i, p := range pending {
		options[i] = huh.NewOption(fmt.Sprintf("#%d [%s] %s", p.ID, p.Type, truncate(p.Context, 60)), p.ID)
	}
	var chosen int64
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int64]().
			Title("Pending injection points").
			Options(options...).
			Value(&chosen),
	))
	if err := form.Run(); err != nil {
		return types.InjectionPoint{}, err
	}
	for _, p := range pending {
		if p.ID == chosen {
			return p, nil
		}
	}
	return types.InjectionPoint{}, fmt.Errorf("selection %d not found", chosen)
}

func promptResponse(point types.InjectionPoint) (response string, cancel bool, err error) {
	fmt.Println(renderInjectionPoint(point))

	if !obslog.ColorEnabled() {
		return point.DefaultOnTimeout, false, nil
	}

	if len(point.Options) > 0 {
		opts := make([]huh.Option[string], 0, len(point.Options)+1)
		for _, o := range point.Options {
			opts = append(opts, huh.NewOption(o, o))
		}
		opts = append(opts, huh.NewOption("(cancel this point)", ""))
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Your answer").
				Options(opts...).
				Value(&response),
		))
		if err := form.Run(); err != nil {
			return "", false, err
		}
		return response, response == "", nil
	}

	var doCancel bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Cancel this point instead of answering?").
				Value(&doCancel),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Your answer").
				Value(&response),
		).WithHideFunc(func() bool { return doCancel }),
	)
	if err := form.Run(); err != nil {
		return "", false, err
	}
	return response, doCancel, nil
}

func renderInjectionPoint(point types.InjectionPoint) string {
	header := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("#%d %s", point.ID, point.Type))
	body := lipgloss.NewStyle().Faint(true).Render(point.Context)
	lines := []string{header, body}
	if point.Recommendation != "" {
		lines = append(lines, fmt.Sprintf("recommendation: %s", point.Recommendation))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
