package main

import (
	"fmt"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/human"
	"github.com/webrlabs/arcadiaforge/internal/memory"
	"github.com/webrlabs/arcadiaforge/internal/toolreg"
)

// processSessionID is the session id session-scoped tool families
// (Process, Evidence, Decision) are stamped with. The Tool Registry is
// a process-lifetime collaborator (built once, shared across every
// RunSession call), while those three families take a sessionID at
// construction — so unlike every other collaborator, they cannot float
// to whichever session the supervisor is currently driving without a
// registry rebuild per session. Single-session-per-process deployments
// (the common case: `forge run --max-sessions 1`, or a process
// restarted between sessions by an outer supervisor) are unaffected;
// a long-running multi-session process will see every row these three
// families write stamped with session 1 regardless of which session is
// actually active.
const processSessionID = 1

// buildToolRegistry assembles every Tool Registry family the spec
// defines and registers them into one Registry shared for the life of
// the process, the same way the teacher wires its RPC method table
// once at daemon startup.
func buildToolRegistry(
	features *feature.Registry,
	memoryMgr *memory.Manager,
	decisionStore interface {
		toolreg.DecisionStore
		toolreg.HypothesisStore
	},
	artifactStore toolreg.ArtifactStore,
	learner *human.Learner,
	projectRoot string,
) (*toolreg.Registry, error) {
	r := toolreg.New()

	families := []interface{ RegisterAll(*toolreg.Registry) error }{
		toolreg.NewFeatureTools(features, artifactStore, projectRoot, time.Now),
		toolreg.NewFileTools(projectRoot),
		toolreg.NewShellTools(projectRoot, 2*time.Minute),
		toolreg.NewProcessTools(projectRoot, processSessionID),
		toolreg.NewMemoryTools(memoryMgr),
		toolreg.NewDecisionTools(decisionStore, decisionStore, learner, processSessionID),
		toolreg.NewEvidenceTools(artifactStore, projectRoot, processSessionID),
		toolreg.NewBrowserTools(nil), // no browser automation backend configured by default
	}

	for _, f := range families {
		if err := f.RegisterAll(r); err != nil {
			return nil, fmt.Errorf("register tool family: %w", err)
		}
	}

	return r, nil
}
