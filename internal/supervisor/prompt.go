package supervisor

import (
	"fmt"
	"strings"

	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// promptInput carries everything the PREP step gathered before RUN:
// what the last pause left unfinished, what recent sessions
// accomplished, which features are worth working on next, and what the
// agent is capable of doing about it.
type promptInput struct {
	ResumePrompt    string
	WarmSummaries   []types.WarmSummary
	Candidates      []feature.Scored
	CapabilityNames []string
}

const rolePrompt = `You are an autonomous coding agent working through a catalogue of ` +
	`features for one project, one bounded session at a time. Pick the ` +
	`highest-priority incomplete feature, implement it, verify it, and ` +
	`mark it passing before moving on. Work in small, checkpointed steps.`

// composePrompt builds the system and user prompt for one session from
// the PREP step's gathered context: role prompt, recent Warm summaries,
// salience-ranked candidate features, and the capabilities snapshot.
func composePrompt(in promptInput) (systemPrompt, userPrompt string) {
	var b strings.Builder

	b.WriteString(rolePrompt)
	b.WriteString("\n\nAvailable tools: ")
	b.WriteString(strings.Join(in.CapabilityNames, ", "))
	b.WriteString("\n")

	var u strings.Builder

	if in.ResumePrompt != "" {
		fmt.Fprintf(&u, "Resuming a paused session:\n%s\n\n", in.ResumePrompt)
	}

	if len(in.WarmSummaries) > 0 {
		u.WriteString("Recent session history (most recent first):\n")
		for _, w := range in.WarmSummaries {
			fmt.Fprintf(&u, "- session %d (%s): %s\n", w.SessionID, w.StatusString, strings.Join(w.Accomplished, "; "))
			if len(w.IssuesFound) > 0 {
				fmt.Fprintf(&u, "  open issues: %s\n", strings.Join(w.IssuesFound, "; "))
			}
			if len(w.NextSteps) > 0 {
				fmt.Fprintf(&u, "  suggested next steps: %s\n", strings.Join(w.NextSteps, "; "))
			}
		}
		u.WriteString("\n")
	}

	if len(in.Candidates) > 0 {
		u.WriteString("Candidate features, ranked by salience:\n")
		for _, c := range in.Candidates {
			fmt.Fprintf(&u, "- #%d [%s] (salience %.2f): %s\n", c.Feature.Index, c.Feature.Category, c.Salience, c.Feature.Description)
		}
		u.WriteString("\n")
	} else {
		u.WriteString("No incomplete features remain unblocked.\n\n")
	}

	u.WriteString("Begin working on the highest-salience feature above. Use feature_mark once it passes verification.\n")

	return b.String(), u.String()
}
