// Package elevator implements the Merge Elevator: a strictly
// serial queue that rebases, tests, and merges branches produced by
// parallel Task Workers into an integration branch, with cascading
// conflict-resolution strategies and exponential-backoff retry.
package elevator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/undercity/undercity/pkg/gitexec"
	"github.com/undercity/undercity/pkg/models"
	"github.com/undercity/undercity/pkg/verify"
)

// Config parameterises one elevator instance.
type Config struct {
	IntegrationBranch string
	RemoteName        string // default "origin"
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	DefaultMaxRetries int
	Verification      models.VerificationOptions
}

func (c Config) withDefaults() Config {
	if c.RemoteName == "" {
		c.RemoteName = "origin"
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Minute
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	return c
}

// Elevator is the serial merge processor. The zero
// value of processing gates processNext so at most one item advances at
// any moment; all other methods read a snapshot under mu.
type Elevator struct {
	cfg     Config
	repo    *gitexec.Repo
	harness *verify.Harness
	logger  *slog.Logger

	mu         sync.Mutex
	queue      []*models.ElevatorItem
	processing bool
}

func New(workingDir string, cfg Config, harness *verify.Harness, logger *slog.Logger) *Elevator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elevator{
		cfg:     cfg.withDefaults(),
		repo:    gitexec.New(workingDir),
		harness: harness,
		logger:  logger,
	}
}

// Enqueue adds a new item to the queue.
func (e *Elevator) Enqueue(branch, taskID, agentID string, modifiedFiles []string) *models.ElevatorItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	item := &models.ElevatorItem{
		Branch:        branch,
		TaskID:        taskID,
		AgentID:       agentID,
		Status:        models.ElevatorPending,
		QueuedAt:      time.Now(),
		MaxRetries:    e.cfg.DefaultMaxRetries,
		ModifiedFiles: modifiedFiles,
	}
	e.queue = append(e.queue, item)
	return item
}

// Snapshot returns a read-only copy of the queue.
func (e *Elevator) Snapshot() []models.ElevatorItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ElevatorItem, len(e.queue))
	for i, item := range e.queue {
		out[i] = *item
	}
	return out
}

// ConflictHints returns pairs of pending items whose modified-file sets
// intersect, as an optional pre-merge conflict hint.
func (e *Elevator) ConflictHints() []models.ConflictHint {
	items := e.Snapshot()
	var hints []models.ConflictHint
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			shared := intersect(items[i].ModifiedFiles, items[j].ModifiedFiles)
			if len(shared) == 0 {
				continue
			}
			hints = append(hints, models.ConflictHint{
				BranchA:     items[i].Branch,
				BranchB:     items[j].Branch,
				SharedFiles: shared,
				Severity:    len(shared),
			})
		}
	}
	return hints
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	var out []string
	for _, f := range b {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

// ProcessAll drains the queue, processing one pending item at a time
// until none remain eligible. Suspension points (rebase, test, merge,
// push subprocesses) are cooperative yields; ProcessAll busy-waits only
// via short sleeps between scans, never inside a single item's pipeline.
func (e *Elevator) ProcessAll(ctx context.Context) error {
	for {
		item := e.nextPending()
		if item == nil {
			return nil
		}
		if err := e.processNext(ctx, item); err != nil {
			e.logger.Error("elevator: item processing failed", "branch", item.Branch, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (e *Elevator) nextPending() *models.ElevatorItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, item := range e.queue {
		if item.Status == models.ElevatorPending {
			return item
		}
	}
	return nil
}

// processNext runs one item through rebase -> test -> merge -> push ->
// cleanup, gated by the processing flag.
func (e *Elevator) processNext(ctx context.Context, item *models.ElevatorItem) error {
	e.mu.Lock()
	if e.processing {
		e.mu.Unlock()
		return fmt.Errorf("elevator: processNext called while already processing")
	}
	e.processing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.processing = false
		e.mu.Unlock()
	}()

	originalBranch, err := e.repo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("elevator: recording original branch: %w", err)
	}
	defer e.restoreBranch(ctx, originalBranch)

	e.logger.Info("elevator: processing item", "branch", item.Branch, "task", item.TaskID, "retry", item.IsRetry)

	if err := e.repo.Checkout(ctx, item.Branch); err != nil {
		item.Status = models.ElevatorConflict
		item.Error = err.Error()
		return nil
	}

	item.Status = models.ElevatorRebasing
	if ok := e.rebase(ctx, item); !ok {
		return nil
	}

	item.Status = models.ElevatorTesting
	if ok := e.test(ctx, item); !ok {
		return nil
	}

	if err := e.repo.Checkout(ctx, e.cfg.IntegrationBranch); err != nil {
		item.Status = models.ElevatorConflict
		item.Error = err.Error()
		return nil
	}

	item.Status = models.ElevatorMerging
	if ok := e.merge(ctx, item); !ok {
		return nil
	}

	item.Status = models.ElevatorPushing
	e.push(ctx, item)

	e.cleanup(ctx, item)

	now := time.Now()
	item.Status = models.ElevatorComplete
	item.CompletedAt = &now
	e.logger.Info("elevator: item complete", "branch", item.Branch, "task", item.TaskID)

	e.retryEligible(ctx)
	return nil
}

func (e *Elevator) restoreBranch(ctx context.Context, branch string) {
	if branch == "" {
		return
	}
	if err := e.repo.Checkout(ctx, branch); err != nil {
		e.logger.Warn("elevator: could not restore original branch", "branch", branch, "error", err)
	}
}

// rebase aborts any stale rebase first, then rebases onto the
// integration branch. A conflict marks the item and preserves the
// branch for manual recovery.
func (e *Elevator) rebase(ctx context.Context, item *models.ElevatorItem) bool {
	_ = e.repo.RebaseAbort(ctx)

	res, err := e.repo.Rebase(ctx, e.cfg.IntegrationBranch)
	if err == nil {
		return true
	}
	_ = e.repo.RebaseAbort(ctx)
	e.markFailed(item, models.ElevatorConflict, res.Output)
	return false
}

func (e *Elevator) test(ctx context.Context, item *models.ElevatorItem) bool {
	if e.harness == nil {
		return true
	}
	opts := e.cfg.Verification
	opts.WorkingDirectory = e.repo.Dir
	verdict, err := e.harness.Run(ctx, opts)
	if err != nil {
		e.markFailed(item, models.ElevatorTestFailed, err.Error())
		return false
	}
	if !verdict.Passed {
		e.markFailed(item, models.ElevatorTestFailed, verdict.Feedback)
		return false
	}
	return true
}

// merge tries a plain merge first, then favor-integration on
// conflict, then gives up and records conflict files.
func (e *Elevator) merge(ctx context.Context, item *models.ElevatorItem) bool {
	msg := fmt.Sprintf("Merge %s (task %s)", item.Branch, item.TaskID)

	res, err := e.repo.Merge(ctx, item.Branch, gitexec.MergePlain, msg)
	if err == nil {
		item.StrategyUsed = models.StrategyPlain
		return true
	}
	_ = e.repo.MergeAbort(ctx)

	res2, err2 := e.repo.Merge(ctx, item.Branch, gitexec.MergeFavorOurs, msg)
	if err2 == nil {
		item.StrategyUsed = models.StrategyFavorTheirs
		return true
	}
	_ = e.repo.MergeAbort(ctx)

	conflictFiles, _ := e.repo.DiffNameOnly(ctx, "HEAD")
	item.ConflictFiles = conflictFiles
	e.markFailed(item, models.ElevatorConflict, res.Output+"\n"+res2.Output)
	return false
}

// push logs a failure rather than treating it as fatal: the local
// merge already stands.
func (e *Elevator) push(ctx context.Context, item *models.ElevatorItem) {
	if _, err := e.repo.Push(ctx, e.cfg.RemoteName, e.cfg.IntegrationBranch); err != nil {
		e.logger.Warn("elevator: push failed, local merge stands", "branch", e.cfg.IntegrationBranch, "error", err)
	}
}

// cleanup removes the worktree (if any) and deletes the merged branch.
func (e *Elevator) cleanup(ctx context.Context, item *models.ElevatorItem) {
	worktrees, err := e.repo.WorktreeList(ctx)
	if err == nil {
		for _, wt := range worktrees {
			if wt.Branch == item.Branch || wt.Branch == "refs/heads/"+item.Branch {
				if err := e.repo.WorktreeRemoveForce(ctx, wt.Path); err != nil {
					e.logger.Warn("elevator: worktree removal failed", "path", wt.Path, "error", err)
				}
			}
		}
	}
	if err := e.repo.DeleteBranch(ctx, item.Branch, true); err != nil {
		e.logger.Warn("elevator: branch deletion failed", "branch", item.Branch, "error", err)
	}
}

// markFailed records a conflict/test_failed outcome and computes the
// exponential backoff window for the NEXT retry attempt, so eligibility is
// correct starting from the scan right after this failure, not from
// whenever the next scan happens to run.
func (e *Elevator) markFailed(item *models.ElevatorItem, status models.ElevatorStatus, output string) {
	now := time.Now()
	item.Status = status
	item.Error = output
	if item.OriginalError == "" {
		item.OriginalError = output
	}
	item.LastFailedAt = &now

	delay := e.cfg.BaseDelay * time.Duration(1<<uint(item.RetryCount))
	if delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	next := now.Add(delay)
	item.NextRetryAfter = &next
}

// retryEligible re-scans, after every successful merge, for
// conflict/test_failed items whose backoff window has elapsed, and
// requeues them as pending retries.
func (e *Elevator) retryEligible(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, item := range e.queue {
		if !item.EligibleForRetry(now) {
			continue
		}
		e.logger.Info("elevator: retrying item", "branch", item.Branch, "attempt", item.RetryCount+1)
		item.RetryCount++
		item.IsRetry = true
		item.Status = models.ElevatorPending
		item.NextRetryAfter = nil
	}
}
