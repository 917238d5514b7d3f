// Command forge is Arcadia Forge's entrypoint: it wires the fully
// assembled internal/supervisor.Deps from on-disk configuration and
// drives the session loop, the same way the teacher's cmd/bd wires a
// single rootCmd from many independent subcommand files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Arcadia Forge — an autonomous LLM coding-agent session orchestrator",
	Long: `Arcadia Forge drives bounded LLM coding sessions against a project:
it enforces a risk-gated autonomy ladder over tool calls, checkpoints the
working tree at every meaningful boundary, tracks a tiered memory of what
happened across sessions, and hands control back to a human the moment a
decision crosses its confidence floor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var projectDir string

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "project root directory")
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
		&cobra.Group{ID: "human", Title: "Human channel:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
