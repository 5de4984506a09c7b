// Package worker implements the Task Worker: the per-task
// state machine that drives an LLM through plan -> execute -> verify ->
// (review) -> commit, with escalation, retries, and crash-recoverable
// checkpoints. This is the largest component of the system.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/undercity/undercity/pkg/gitexec"
	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/llmclient"
	"github.com/undercity/undercity/pkg/masking"
	"github.com/undercity/undercity/pkg/models"
	"github.com/undercity/undercity/pkg/verify"
)

// Stores bundles the learning-store handles the worker reads and writes
//. Any field may be nil, in which case the
// corresponding read/write is skipped.
type Stores struct {
	Ledger    *learning.Ledger
	Profile   *learning.Profile
	Errors    *learning.ErrorStore
	CoMod     *learning.CoModIndex
	Knowledge *learning.KnowledgeStore
}

// Limits carries the tunable attempt/retry/review budgets. Zero values are replaced with baseline
// defaults by WithDefaults.
type Limits struct {
	MaxAttempts            int
	MaxRetriesPerTier      int
	MaxStrongRetries       int
	MaxReviewPassesPerTier int
	MaxStrongReviewPasses  int
	MaxWritesPerFile       int
	EnablePlanning         bool
	EnableReview           bool
	Annealing              bool
	MaxReviewTier          models.Tier
	MaxTier                models.Tier
	AutoCommit             bool
}

func (l Limits) WithDefaults() Limits {
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = 7
	}
	if l.MaxRetriesPerTier <= 0 {
		l.MaxRetriesPerTier = 3
	}
	if l.MaxStrongRetries <= 0 {
		l.MaxStrongRetries = 7
	}
	if l.MaxReviewPassesPerTier <= 0 {
		l.MaxReviewPassesPerTier = 2
	}
	if l.MaxStrongReviewPasses <= 0 {
		l.MaxStrongReviewPasses = 6
	}
	if l.MaxWritesPerFile <= 0 {
		l.MaxWritesPerFile = 6
	}
	return l
}

// Task is one unit of work handed to the worker.
type Task struct {
	ID               string
	Objective        string
	WorkingDirectory string
	StartingTier     models.Tier
	TargetFiles      []string
	Metrics          *models.FileMetrics
	HandoffContext   string
}

// Kind classifies the objective's leading tag.
type Kind int

const (
	KindImplementation Kind = iota
	KindResearch
	KindMeta
)

// Worker drives one task through the state machine. It is not safe for
// concurrent use by more than one goroutine on the same task: the
// system runs one worker per task, each owning its own working directory.
type Worker struct {
	LLM             llmclient.Client
	Harness         *verify.Harness
	Stores          Stores
	Limits          Limits
	CheckpointWrite func(models.Checkpoint) error
	Logger          *slog.Logger
	Masker          *masking.Service

	repo *gitexec.Repo
}

func New(llm llmclient.Client, harness *verify.Harness, stores Stores, limits Limits, checkpoint func(models.Checkpoint) error, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if checkpoint == nil {
		checkpoint = func(models.Checkpoint) error { return nil }
	}
	return &Worker{
		LLM:             llm,
		Harness:         harness,
		Stores:          stores,
		Limits:          limits.WithDefaults(),
		CheckpointWrite: checkpoint,
		Logger:          logger,
		Masker:          masking.New(false, logger),
	}
}

// state is the worker's in-flight scratch space for one task run. It is
// distinct from the persisted Checkpoint: state carries everything
// needed to finish the run in memory, checkpoint carries only what's
// needed to resume after a crash.
type state struct {
	task Task
	kind Kind

	tier            models.Tier
	attempts        int
	sameTierRetries int
	tokenUsage      models.TokenUsage
	attemptRecords  []models.TaskAttemptRecord

	conversationID   string
	postMortem       string
	noOpEditCount    int
	zeroWriteStreak  int // consecutive attempts with no successful tool write (stop hook)
	zeroChangeStreak int // consecutive attempts that left FilesChanged at 0 (escalation rule 1)
	writesPerFile    map[string]int
	autoRemediated   bool
	pendingSignature string
	lastVerdict      *models.Verdict
	filesBefore      []string

	briefing      briefing
	plan          *ExecutionPlan
	injectedIDs   []string
	startTime     time.Time
}

// Run executes the full state machine for task and returns its terminal
// result.
func (w *Worker) Run(ctx context.Context, task Task) *models.TaskResult {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	w.repo = gitexec.New(task.WorkingDirectory)

	st := &state{
		task:          task,
		kind:          classifyKind(task.Objective),
		tier:          task.StartingTier,
		writesPerFile: map[string]int{},
		startTime:     time.Now(),
	}

	w.checkpoint(st, models.PhaseStarting, nil)

	st.briefing = w.prepareContext(ctx, st)
	w.checkpoint(st, models.PhaseContext, nil)

	if result := w.preflightValidate(st); result != nil {
		return w.finish(ctx, st, result)
	}

	if result := w.tryFastPath(ctx, st); result != nil {
		return w.finish(ctx, st, result)
	}

	if w.Limits.EnablePlanning {
		plan, result := w.plan(ctx, st)
		if result != nil {
			return w.finish(ctx, st, result)
		}
		st.plan = plan
	}

	result := w.executorLoop(ctx, st)
	return w.finish(ctx, st, result)
}

func classifyKind(objective string) Kind {
	trimmed := strings.TrimSpace(objective)
	switch {
	case strings.HasPrefix(trimmed, "[research]"):
		return KindResearch
	case strings.HasPrefix(trimmed, "[meta:") || strings.HasPrefix(trimmed, "[meta]"):
		return KindMeta
	default:
		return KindImplementation
	}
}

func (w *Worker) checkpoint(st *state, phase models.Phase, lastVerification *models.LastVerification) {
	cp := models.Checkpoint{
		TaskID:           st.task.ID,
		Phase:            phase,
		Model:            st.tier,
		Attempts:         st.attempts,
		SavedAt:          time.Now(),
		LastVerification: lastVerification,
	}
	if err := w.CheckpointWrite(cp); err != nil {
		w.Logger.Warn("worker: checkpoint write failed, continuing", "task", st.task.ID, "phase", phase, "error", err)
	}
}

// finish builds the final TaskResult from whatever the state machine
// produced, folding in duration and token accounting common to every
// terminal path.
func (w *Worker) finish(ctx context.Context, st *state, result *models.TaskResult) *models.TaskResult {
	result.DurationMs = time.Since(st.startTime).Milliseconds()
	result.TokenUsage = st.tokenUsage
	result.Attempts = st.attemptRecords
	result.Model = st.tier

	w.recordCompletion(ctx, st, result)
	return result
}

func complete(verdict *models.Verdict, commitSha string) *models.TaskResult {
	return &models.TaskResult{
		Status:        models.StatusComplete,
		Verification:  verdict,
		CommitSha:     commitSha,
	}
}

func alreadyComplete(verdict *models.Verdict) *models.TaskResult {
	return &models.TaskResult{
		Status:              models.StatusComplete,
		Verification:        verdict,
		TaskAlreadyComplete: true,
	}
}

func failed(tag, message string) *models.TaskResult {
	return &models.TaskResult{
		Status: models.StatusFailed,
		Error:  fmt.Sprintf("%s: %s", tag, message),
	}
}

func needsDecomposition(reason string, subtasks []string) *models.TaskResult {
	return &models.TaskResult{
		Status: models.StatusFailed,
		Error:  fmt.Sprintf("%s: %s", models.ErrTagNeedsDecomposition, reason),
		NeedsDecomposition: &models.Decomposition{
			Needed:            true,
			SuggestedSubtasks: subtasks,
		},
	}
}
