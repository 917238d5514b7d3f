package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/webrlabs/arcadiaforge/internal/agent"
	"github.com/webrlabs/arcadiaforge/internal/checkpoint"
	"github.com/webrlabs/arcadiaforge/internal/config"
	"github.com/webrlabs/arcadiaforge/internal/eventlog"
	"github.com/webrlabs/arcadiaforge/internal/failure"
	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/human"
	"github.com/webrlabs/arcadiaforge/internal/memory"
	"github.com/webrlabs/arcadiaforge/internal/obslog"
	"github.com/webrlabs/arcadiaforge/internal/store/sqlite"
	"github.com/webrlabs/arcadiaforge/internal/supervisor"
)

var (
	runMaxSessions int
	runModel       string
	runAPIKey      string
	runQuiet       bool
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "session",
	Short:   "Run bounded coding sessions against the project",
	Long: `Run drives the Session Supervisor: one bounded LLM session after another,
each gated by the autonomy ladder and checkpointed at every meaningful
boundary, until max-sessions is reached, a terminal status is hit, or a
SIGINT/SIGTERM pauses the run cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForge(cmd.Context())
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxSessions, "max-sessions", 0, "stop after this many sessions (0 = unbounded)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Anthropic model id (defaults to the runtime's built-in default)")
	runCmd.Flags().StringVar(&runAPIKey, "api-key", "", "Anthropic API key (ANTHROPIC_API_KEY env var takes precedence)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress the colorized stdout log mirror")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. :9090)")
	rootCmd.AddCommand(runCmd)
}

// runForge assembles every supervisor.Deps field from on-disk state and
// drives the session loop. It mirrors the teacher's daemon bring-up:
// acquire the project lock first, open persistence next, then wire
// everything that depends on it.
func runForge(ctx context.Context) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(projectDir, config.ProjectDirName), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire project lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another forge run is already active in %s", projectDir)
	}
	defer func() { _ = lock.Unlock() }()

	logger, logCloser, err := obslog.New(obslog.Options{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Level:      slog.LevelInfo,
		Quiet:      runQuiet,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logCloser.Close()

	runID := uuid.New().String()
	logger = logger.With("run_id", runID)
	slog.SetDefault(logger)

	metrics := obslog.NewMetrics()
	if runMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obslog.Handler())
		srv := &http.Server{Addr: runMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("metrics endpoint listening", "addr", runMetricsAddr)
	}

	store, err := sqlite.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	events, err := eventlog.Open(cfg.EventLogPath())
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	features, err := feature.Load(store)
	if err != nil {
		return fmt.Errorf("load feature registry: %w", err)
	}

	checkpointMgr := checkpoint.New(projectDir, store, features, cfg.GitAuthorName, cfg.GitAuthorEmail)
	memoryMgr := memory.New(store, store, store, cfg.WarmSummaryCapacity)

	analyzer := failure.New(events, store, func(query string) ([]failure.SearchResult, error) {
		hits, err := memoryMgr.SearchKnowledge(query)
		if err != nil {
			return nil, err
		}
		out := make([]failure.SearchResult, len(hits))
		for i, h := range hits {
			out[i] = failure.SearchResult{Record: h.Record, Score: h.Score}
		}
		return out, nil
	})

	runtime, err := agent.NewAnthropicRuntime(runAPIKey, runModel)
	if err != nil {
		return fmt.Errorf("build agent runtime: %w", err)
	}

	learner := human.NewLearner(store)
	tools, err := buildToolRegistry(features, memoryMgr, store, store, learner, projectDir)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	watchStop := watchPausedSession(cfg, logger)
	defer watchStop()

	sup := supervisor.New(supervisor.Deps{
		Config:        cfg,
		EventLog:      events,
		Sessions:      store,
		Checkpoint:    checkpointMgr,
		Features:      features,
		Memory:        memoryMgr,
		Tools:         tools,
		Runtime:       runtime,
		Failure:       analyzer,
		RiskStore:     store,
		AutonomyStore: store,
		HumanStore:    store,
		Learner:       learner,
		EventCache:    store,
		Metrics:       metrics,
	})

	logger.Info("forge run starting", "project", projectDir, "max_sessions", runMaxSessions)
	return sup.Run(ctx, runMaxSessions)
}

// watchPausedSession watches the project directory for changes to the
// paused-session marker, logging a diagnostic line the way an operator
// tailing the log would want to see when a resume becomes available.
// This is a best-effort diagnostic, not a correctness dependency — the
// supervisor itself reads the marker directly at session start.
func watchPausedSession(cfg *config.Config, logger *slog.Logger) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, paused-session changes won't be logged", "error", err)
		return func() {}
	}

	dir := filepath.Dir(cfg.PausedSessionPath())
	if err := watcher.Add(dir); err != nil {
		logger.Warn("fsnotify watch failed", "dir", dir, "error", err)
		watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		marker := cfg.PausedSessionPath()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != marker {
					continue
				}
				switch {
				case ev.Op&fsnotify.Create != 0:
					logger.Info("paused session marker created", "path", marker)
				case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
					logger.Info("paused session marker cleared", "path", marker)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("fsnotify error", "error", err)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}
}
