// Package checkpoint implements the Checkpoint Manager (spec.md §4.6): it
// pairs a durable VCS commit with a feature-status snapshot at semantic
// triggers, and can roll the working tree and feature status back to any
// prior checkpoint.
//
// Commit creation shells out to the system git binary the way the rest of
// this module's lineage drives external VCS state; commit-hash resolution
// and verification (Invariant C1) go through go-git so a checkpoint can be
// proven to reference a real, resolvable tree without depending on git
// being present at query time.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// FeatureSnapshot is the minimal feature-state surface the Checkpoint
// Manager needs; internal/feature.Registry implements it.
type FeatureSnapshot interface {
	StatusSnapshot() (status map[int]bool, passing, total int)
}

// Store is the persistence surface: checkpoints are append-only, looked
// up by id or by (session, trigger).
type Store interface {
	NextCheckpointSequence(sessionID int64) (int, error)
	SaveCheckpoint(types.Checkpoint) (int64, error)
	GetCheckpoint(id int64) (types.Checkpoint, bool, error)
	ListCheckpoints(sessionID int64, trigger types.CheckpointTrigger, limit int) ([]types.Checkpoint, error)
	FindCheckpoint(sessionID int64, trigger types.CheckpointTrigger, sequence int) (types.Checkpoint, bool, error)
	RestoreFeatureStatus(status map[int]bool) error
}

// Manager creates and restores checkpoints for one project.
type Manager struct {
	projectDir string
	store      Store
	features   FeatureSnapshot
	authorName string
	authorEmail string
}

// New constructs a Manager rooted at projectDir.
func New(projectDir string, store Store, features FeatureSnapshot, authorName, authorEmail string) *Manager {
	return &Manager{
		projectDir:  projectDir,
		store:       store,
		features:    features,
		authorName:  authorName,
		authorEmail: authorEmail,
	}
}

// Create takes a checkpoint: it commits the current working tree (if
// dirty), snapshots feature status, and persists the pairing. Every call
// allocates the next sequence number for the session and creates a new
// checkpoint; Create does not detect a repeated request, so a retry of
// the same logical step yields a second checkpoint unless the caller
// finds the first one with FindCheckpoint.
func (m *Manager) Create(ctx context.Context, sessionID int64, trigger types.CheckpointTrigger, pendingWork []string, notes string) (types.Checkpoint, error) {
	// NextCheckpointSequence is called once per logical checkpoint request;
	// a caller that retries the same logical step (same trigger within the
	// same store transaction) is expected to look up FindCheckpoint itself
	// before calling Create again, per the no-op-after-first idempotence
	// rule on (session, trigger, sequence).
	seq, err := m.store.NextCheckpointSequence(sessionID)
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("next checkpoint sequence: %w", err)
	}

	commitHash, err := m.commitWorkingTree(ctx, trigger, sessionID, seq)
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("commit working tree: %w", err)
	}

	var status map[int]bool
	if m.features != nil {
		status, _, _ = m.features.StatusSnapshot()
	}

	cp := types.Checkpoint{
		SessionID:             sessionID,
		Timestamp:             time.Now().UTC(),
		Trigger:               trigger,
		VCSCommitHash:         commitHash,
		FeatureStatusSnapshot: status,
		PendingWork:           pendingWork,
		Notes:                 notes,
		Sequence:              seq,
	}

	id, err := m.store.SaveCheckpoint(cp)
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("save checkpoint: %w", err)
	}
	cp.ID = id
	return cp, nil
}

// commitWorkingTree stages and commits everything under projectDir,
// returning the resulting HEAD hash. If the tree is already clean, it
// returns the current HEAD hash without creating an empty commit.
func (m *Manager) commitWorkingTree(ctx context.Context, trigger types.CheckpointTrigger, sessionID int64, seq int) (string, error) {
	status, err := m.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		head, err := m.runGit(ctx, "rev-parse", "HEAD")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(head), nil
	}

	if _, err := m.runGit(ctx, "add", "-A"); err != nil {
		return "", err
	}

	message := fmt.Sprintf("checkpoint: %s (session %d, seq %d)", trigger, sessionID, seq)
	commitArgs := []string{
		"-c", fmt.Sprintf("user.name=%s", m.authorName),
		"-c", fmt.Sprintf("user.email=%s", m.authorEmail),
		"commit", "-m", message,
	}
	if _, err := m.runGit(ctx, commitArgs...); err != nil {
		return "", err
	}

	head, err := m.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(head), nil
}

func (m *Manager) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.projectDir
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return out.String(), nil
}

// VerifyCommit resolves a checkpoint's commit hash against the repository
// using go-git, proving Invariant C1 (a checkpoint always references a
// real, resolvable commit) without shelling out.
func (m *Manager) VerifyCommit(hash string) (bool, error) {
	repo, err := git.PlainOpen(m.projectDir)
	if err != nil {
		return false, fmt.Errorf("open repository: %w", err)
	}
	_, err = repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		if err == plumbing.ErrObjectNotFound {
			return false, nil
		}
		return false, fmt.Errorf("resolve commit %s: %w", hash, err)
	}
	return true, nil
}

// Get returns a checkpoint by id.
func (m *Manager) Get(id int64) (types.Checkpoint, bool, error) {
	return m.store.GetCheckpoint(id)
}

// List returns checkpoints, optionally filtered by session and trigger.
func (m *Manager) List(sessionID int64, trigger types.CheckpointTrigger, limit int) ([]types.Checkpoint, error) {
	return m.store.ListCheckpoints(sessionID, trigger, limit)
}

// RollbackResult reports what a rollback actually did.
type RollbackResult struct {
	Success           bool
	CheckpointID      int64
	Message           string
	GitReset          bool
	FeaturesRestored  bool
}

// RollbackTo restores the working tree to the checkpoint's commit and
// writes back its feature-status snapshot. Per spec, the rollback itself
// is recorded as a new checkpoint event and does not delete intervening
// history.
func (m *Manager) RollbackTo(ctx context.Context, checkpointID int64, sessionID int64) (RollbackResult, error) {
	cp, found, err := m.store.GetCheckpoint(checkpointID)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		return RollbackResult{Success: false, CheckpointID: checkpointID, Message: "checkpoint not found"}, nil
	}

	ok, err := m.VerifyCommit(cp.VCSCommitHash)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("verify checkpoint commit: %w", err)
	}
	if !ok {
		return RollbackResult{Success: false, CheckpointID: checkpointID, Message: "checkpoint commit hash does not resolve"}, nil
	}

	if _, err := m.runGit(ctx, "reset", "--hard", cp.VCSCommitHash); err != nil {
		return RollbackResult{}, fmt.Errorf("git reset --hard: %w", err)
	}

	if err := m.store.RestoreFeatureStatus(cp.FeatureStatusSnapshot); err != nil {
		return RollbackResult{}, fmt.Errorf("restore feature status: %w", err)
	}

	if _, err := m.Create(ctx, sessionID, types.TriggerHumanRequest, nil, fmt.Sprintf("rollback to checkpoint %d", checkpointID)); err != nil {
		return RollbackResult{}, fmt.Errorf("record rollback checkpoint: %w", err)
	}

	return RollbackResult{
		Success:          true,
		CheckpointID:     checkpointID,
		Message:          fmt.Sprintf("rolled back to checkpoint %d (%s)", checkpointID, cp.VCSCommitHash),
		GitReset:         true,
		FeaturesRestored: true,
	}, nil
}
