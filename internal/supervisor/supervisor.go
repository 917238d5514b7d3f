// Package supervisor implements the Session Supervisor (spec.md §4.11):
// the state machine that drives one bounded LLM session at a time
// (INIT → RESUMING? → PREP → RUN → SETTLE → END) and the outer loop
// that chains sessions together until a terminal condition is reached.
//
// Each session gets fresh session-scoped collaborators (risk
// classifier, autonomy manager, human channel, hook pipeline) the same
// way the teacher rebuilds its client per iteration; everything else
// (event log, checkpoint manager, feature registry, memory manager,
// tool registry) lives for the whole process.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/agent"
	"github.com/webrlabs/arcadiaforge/internal/autonomy"
	"github.com/webrlabs/arcadiaforge/internal/budget"
	"github.com/webrlabs/arcadiaforge/internal/checkpoint"
	"github.com/webrlabs/arcadiaforge/internal/config"
	"github.com/webrlabs/arcadiaforge/internal/eventlog"
	"github.com/webrlabs/arcadiaforge/internal/failure"
	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/hooks"
	"github.com/webrlabs/arcadiaforge/internal/human"
	"github.com/webrlabs/arcadiaforge/internal/memory"
	"github.com/webrlabs/arcadiaforge/internal/obslog"
	"github.com/webrlabs/arcadiaforge/internal/risk"
	"github.com/webrlabs/arcadiaforge/internal/security"
	"github.com/webrlabs/arcadiaforge/internal/toolreg"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// autoContinueDelay is how long the supervisor pauses between two
// sessions that both ended normally — long enough for a human watching
// the terminal to read the previous session's summary.
const autoContinueDelay = 3 * time.Second

// watchdogPollInterval is how often the concurrent watchdog re-checks
// stall/cyclic/budget while a session's RUN step is in flight.
const watchdogPollInterval = 5 * time.Second

// SessionStore is the persistence surface for Session rows.
type SessionStore interface {
	CreateSession(types.Session) (int64, error)
	UpdateSession(types.Session) error
	LatestSession() (types.Session, bool, error)
}

// EventCache is the State Store's relational mirror of the Event Log,
// written through on the same logical step as the append-only file so
// the store can answer event queries without replaying it. Optional:
// a nil Deps.EventCache just means the session runs on the log alone.
type EventCache interface {
	SaveEvent(types.Event) error
}

// Deps bundles every long-lived collaborator the Supervisor needs.
// Session-scoped collaborators (risk, autonomy, human channel, hook
// pipeline) are built fresh inside RunSession from the Store fields
// here.
type Deps struct {
	Config     *config.Config
	EventLog   *eventlog.Log
	Sessions   SessionStore
	Checkpoint *checkpoint.Manager
	Features   *feature.Registry
	Memory     *memory.Manager
	Tools      *toolreg.Registry
	Runtime    agent.Runtime
	Failure    *failure.Analyzer

	RiskStore     risk.Store
	AutonomyStore autonomy.Store
	HumanStore    human.Store
	Learner       *human.Learner

	EventCache EventCache

	// Metrics is optional: a nil value just means nothing is exported
	// to Prometheus for this run.
	Metrics *obslog.Metrics

	Platform security.Platform
}

// Supervisor runs the session state machine in a loop for one project.
type Supervisor struct {
	deps Deps

	pauseRequested atomic.Bool
	forceExit      atomic.Bool

	mu             sync.Mutex
	currentFeature *int
}

// New constructs a Supervisor. deps.Platform defaults to the host
// platform when left zero.
func New(deps Deps) *Supervisor {
	if deps.Platform == "" {
		deps.Platform = security.CurrentPlatform()
	}
	return &Supervisor{deps: deps}
}

// Run drives sessions one after another until maxSessions is reached
// (0 means unbounded), a pause is requested via signal, or a session
// ends in a terminal status (cyclic, no_progress, budget_exceeded). A
// session that ends normally is followed by the next one after
// autoContinueDelay. It installs SIGINT/SIGTERM handlers the way the teacher's
// daemon event loop does, pausing cleanly on the first signal and
// exiting immediately on a second.
func (s *Supervisor) Run(ctx context.Context, maxSessions int) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for range sigChan {
			if s.pauseRequested.Load() {
				s.forceExit.Store(true)
				cancel()
				return
			}
			s.pauseRequested.Store(true)
		}
	}()

	if err := s.recoverCrash(ctx); err != nil {
		return fmt.Errorf("crash recovery: %w", err)
	}

	for iteration := int64(1); maxSessions == 0 || iteration <= int64(maxSessions); iteration++ {
		if s.forceExit.Load() {
			return nil
		}
		if s.pauseRequested.Load() {
			return s.pause(ctx, iteration)
		}

		outcome, err := s.RunSession(ctx, iteration)
		if err != nil {
			return fmt.Errorf("run session %d: %w", iteration, err)
		}

		if outcome.Terminal {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(autoContinueDelay):
		}
	}
	return nil
}

// Outcome summarizes one finished session for the outer loop.
type Outcome struct {
	Status   types.SessionStatus
	Terminal bool
	Reason   string
}

// RunSession drives one session through INIT → RESUMING? → PREP → RUN
// → SETTLE → END.
func (s *Supervisor) RunSession(ctx context.Context, sessionID int64) (Outcome, error) {
	// INIT
	session := types.Session{ID: sessionID, StartTime: time.Now().UTC(), Status: types.SessionRunning}
	if _, err := s.deps.Sessions.CreateSession(session); err != nil {
		return Outcome{}, fmt.Errorf("create session row: %w", err)
	}
	s.emit(types.Event{SessionID: sessionID, Type: types.EventSessionStart, Payload: map[string]any{}})
	if _, err := s.deps.Checkpoint.Create(ctx, sessionID, types.TriggerSessionStart, nil, "session start"); err != nil {
		return Outcome{}, fmt.Errorf("session start checkpoint: %w", err)
	}

	// RESUMING?
	resumePrompt := ""
	if paused, ok, err := loadPausedSession(s.deps.Config.PausedSessionPath()); err != nil {
		return Outcome{}, fmt.Errorf("load paused session: %w", err)
	} else if ok {
		resumePrompt = paused.ResumePrompt
		if paused.CurrentFeature != 0 {
			feat := paused.CurrentFeature
			s.mu.Lock()
			s.currentFeature = &feat
			s.mu.Unlock()
		}
		if err := clearPausedSession(s.deps.Config.PausedSessionPath()); err != nil {
			return Outcome{}, fmt.Errorf("clear paused session marker: %w", err)
		}
	}

	// PREP
	riskClassifier, err := risk.New(s.deps.RiskStore, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("build risk classifier: %w", err)
	}
	autonomyMgr, err := autonomy.New(s.deps.AutonomyStore, sessionID, types.AutonomyLevel(s.deps.Config.AutonomyInitialLevel))
	if err != nil {
		return Outcome{}, fmt.Errorf("build autonomy manager: %w", err)
	}
	humanChannel := human.New(s.deps.HumanStore, sessionID, 0, s.deps.Learner)
	s.deps.Metrics.SetAutonomyLevel(int(autonomyMgr.CurrentLevel()))

	hotState := memory.NewHotState(sessionID, time.Now().UTC())
	featCtx := feature.Context{}
	if s.currentFeatureIndex() != nil {
		featCtx.RelatedFeatures = []int{*s.currentFeatureIndex()}
	}
	next, hasNext := s.deps.Features.NextBySalience(featCtx, "", true, time.Now().UTC())
	if hasNext {
		idx := next.Index
		s.mu.Lock()
		s.currentFeature = &idx
		s.mu.Unlock()
		hotState.SetFocus(&idx, next.Description, nil)
	}

	warmSummaries, err := s.deps.Memory.RecentWarmSummaries()
	if err != nil {
		return Outcome{}, fmt.Errorf("load warm summaries: %w", err)
	}
	ranked := s.deps.Features.RankedBySalience(featCtx, 5, false, time.Now().UTC())
	catalog := buildToolCatalog(s.deps.Tools)

	systemPrompt, userPrompt := composePrompt(promptInput{
		ResumePrompt:    resumePrompt,
		WarmSummaries:   warmSummaries,
		Candidates:      ranked,
		CapabilityNames: toolNames(catalog),
	})

	// RUN
	observer := &sessionObserver{sup: s, hot: hotState}
	pipeline := hooks.New(riskClassifier, autonomyMgr, s.deps.Checkpoint, s.deps.Tools, observer, humanChannel, s.deps.Platform)

	wd := budget.New(
		budget.NewTracker(budget.RateTable{InputPer1K: s.deps.Config.BudgetInputPer1K, OutputPer1K: s.deps.Config.BudgetOutputPer1K}, s.deps.Config.BudgetCapUSD),
		budget.NewStallWatcher(s.deps.Config.StallTimeout),
		budget.NewCyclicDetector(s.deps.Config.CyclicWindow, s.deps.Config.CyclicThreshold),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	var watchdogReason atomic.Value
	watchdogReason.Store(budget.ReasonNone)

	var inputTotal, outputTotal atomic.Int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(watchdogPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				reason := wd.Poll(time.Now(), inputTotal.Load(), outputTotal.Load())
				if reason != budget.ReasonNone {
					watchdogReason.Store(reason)
					cancelRun()
					return
				}
			}
		}
	}()

	executor, stamper := s.buildExecutor(pipeline, sessionID, wd)
	callbacks := agent.Callbacks{
		OnUsage: func(u agent.Usage) {
			inputTotal.Add(u.InputTokens)
			outputTotal.Add(u.OutputTokens)
			stamper.set(u)
		},
	}

	result, runErr := s.deps.Runtime.Run(runCtx, systemPrompt, catalog, userPrompt, executor, callbacks)
	cancelRun()
	wg.Wait()

	reason, _ := watchdogReason.Load().(budget.Reason)
	if runErr != nil && reason == budget.ReasonNone {
		return Outcome{}, fmt.Errorf("run agent: %w", runErr)
	}

	if result.FinalText != "" {
		hotState.AddAction(time.Now().UTC(), "final message", result.FinalText, "")
	}

	// SETTLE
	statusString := "completed"
	status := types.SessionSuccess
	terminal := false
	switch reason {
	case budget.ReasonStall:
		statusString, status, terminal = "no_progress", types.SessionNoProgress, true
	case budget.ReasonCyclic:
		statusString, status, terminal = "cyclic", types.SessionCyclic, true
	case budget.ReasonBudgetExceeded:
		statusString, status, terminal = "budget_exceeded", types.SessionBudgetExceeded, true
	}

	rates := budget.RateTable{InputPer1K: s.deps.Config.BudgetInputPer1K, OutputPer1K: s.deps.Config.BudgetOutputPer1K}
	s.deps.Metrics.RecordBudgetSpend(rates.Cost(inputTotal.Load(), outputTotal.Load()), s.deps.Config.BudgetCapUSD)
	s.deps.Metrics.RecordSessionOutcome(statusString)

	summary, err := s.deps.Memory.PromoteSessionEnd(*hotState, statusString, time.Now().UTC())
	if err != nil {
		return Outcome{}, fmt.Errorf("promote session end: %w", err)
	}

	if reason != budget.ReasonNone && s.deps.Failure != nil {
		if _, err := s.deps.Failure.AnalyzeSession(sessionID); err != nil {
			return Outcome{}, fmt.Errorf("analyze failure: %w", err)
		}
	}

	if _, err := s.deps.Checkpoint.Create(ctx, sessionID, types.TriggerSessionEnd, nil, statusString); err != nil {
		return Outcome{}, fmt.Errorf("session end checkpoint: %w", err)
	}

	// END
	endTime := time.Now().UTC()
	session.EndTime = &endTime
	session.Status = status
	session.Summary = strings.Join(summary.Accomplished, "; ")
	if err := s.deps.Sessions.UpdateSession(session); err != nil {
		return Outcome{}, fmt.Errorf("update session row: %w", err)
	}
	s.emit(types.Event{SessionID: sessionID, Type: types.EventSessionEnd, Payload: map[string]any{"status": string(status), "tool_calls": result.ToolCallCount}})

	return Outcome{Status: status, Terminal: terminal, Reason: string(reason)}, nil
}

func (s *Supervisor) currentFeatureIndex() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFeature
}

func (s *Supervisor) emit(event types.Event) {
	appended, err := s.deps.EventLog.Append(event.SessionID, event.Type, event.Payload)
	if err != nil {
		// The event log is append-only local disk state; a write
		// failure here is surfaced the same way the teacher's
		// observability layer does, by logging rather than aborting
		// the session the event belongs to.
		fmt.Fprintf(os.Stderr, "event log append failed: %v\n", err)
		return
	}
	if s.deps.EventCache == nil {
		return
	}
	if err := s.deps.EventCache.SaveEvent(appended); err != nil {
		fmt.Fprintf(os.Stderr, "event cache write-through failed: %v\n", err)
	}
}

func (s *Supervisor) pause(ctx context.Context, sessionID int64) error {
	cp, err := s.deps.Checkpoint.Create(ctx, sessionID, types.TriggerPause, nil, "paused by signal")
	if err != nil {
		return fmt.Errorf("pause checkpoint: %w", err)
	}
	idx := 0
	if f := s.currentFeatureIndex(); f != nil {
		idx = *f
	}
	paused := types.PausedSession{
		SessionID:        sessionID,
		CurrentFeature:   idx,
		LastCheckpointID: cp.ID,
		ResumePrompt:     "Continue implementing features from where we left off.",
		PauseReason:      "signal received",
		PausedAt:         time.Now().UTC(),
	}
	return savePausedSession(s.deps.Config.PausedSessionPath(), paused)
}
