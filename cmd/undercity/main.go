// Undercity orchestrator CLI - drives one task through the worker state
// machine and optionally serves the terminal-dashboard HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/undercity/undercity/pkg/api"
	"github.com/undercity/undercity/pkg/cleanup"
	"github.com/undercity/undercity/pkg/config"
	"github.com/undercity/undercity/pkg/elevator"
	"github.com/undercity/undercity/pkg/events"
	"github.com/undercity/undercity/pkg/learning"
	"github.com/undercity/undercity/pkg/llmclient"
	"github.com/undercity/undercity/pkg/masking"
	"github.com/undercity/undercity/pkg/metrics"
	"github.com/undercity/undercity/pkg/models"
	"github.com/undercity/undercity/pkg/notify"
	"github.com/undercity/undercity/pkg/playbook"
	"github.com/undercity/undercity/pkg/router"
	"github.com/undercity/undercity/pkg/taskboard"
	"github.com/undercity/undercity/pkg/verify"
	"github.com/undercity/undercity/pkg/version"
	"github.com/undercity/undercity/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	objective := flag.String("objective", "", "the task objective (required)")
	workingDirectory := flag.String("working-directory", ".", "repository working directory")
	configDir := flag.String("config-dir", getEnv("UNDERCITY_CONFIG_DIR", "."), "directory containing undercity.yaml and .env")
	maxAttempts := flag.Int("max-attempts", 0, "override max attempts (0 = use config default)")
	startingModel := flag.String("starting-model", "", "override starting tier: cheap, mid, strong")
	autoCommit := flag.Bool("auto-commit", true, "commit on a passing verification")
	stream := flag.Bool("stream", false, "stream assistant text to stdout as it arrives")
	branch := flag.String("branch", "", "branch name to work on (default: derived from task id)")
	runTypecheck := flag.Bool("run-typecheck", true, "run the typecheck verification tool")
	runTests := flag.Bool("run-tests", true, "run the test verification tool")
	reviewPasses := flag.Bool("review-passes", true, "enable advisory review passes")
	maxReviewPassesPerTier := flag.Int("max-review-passes-per-tier", 0, "override review passes per tier")
	maxOpusReviewPasses := flag.Int("max-opus-review-passes", 0, "override review passes at the strong tier")
	annealingAtOpus := flag.Bool("annealing-at-opus", true, "enable multi-angle annealing review at the strong tier")
	maxRetriesPerTier := flag.Int("max-retries-per-tier", 0, "override retries per tier")
	maxOpusRetries := flag.Int("max-opus-retries", 0, "override retries at the strong tier")
	enablePlanning := flag.Bool("enable-planning", true, "enable the planning phase before execution")
	skipOptionalVerification := flag.Bool("skip-optional-verification", false, "skip lint/spell/security checks")
	maxTier := flag.String("max-tier", "", "override the ceiling tier: cheap, mid, strong")
	serve := flag.Bool("serve", false, "also serve the dashboard HTTP API while the task runs")
	listenAddr := flag.String("listen-addr", "", "override the dashboard listen address")
	flag.Parse()

	logger := slog.Default()
	logger.Info("undercity: starting", "version", version.Full())

	if *objective == "" {
		fmt.Fprintln(os.Stderr, "undercity: -objective is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("undercity: failed to load config: %v", err)
	}

	opts := config.CLIOptions{
		Objective:                *objective,
		WorkingDirectory:         *workingDirectory,
		MaxAttempts:              *maxAttempts,
		StartingModel:            parseTierFlag(*startingModel),
		AutoCommit:               *autoCommit,
		Stream:                   *stream,
		Branch:                   *branch,
		RunTypecheck:             *runTypecheck,
		RunTests:                 *runTests,
		ReviewPasses:             *reviewPasses,
		MaxReviewPassesPerTier:   *maxReviewPassesPerTier,
		MaxOpusReviewPasses:      *maxOpusReviewPasses,
		AnnealingAtOpus:          *annealingAtOpus,
		MaxRetriesPerTier:        *maxRetriesPerTier,
		MaxOpusRetries:           *maxOpusRetries,
		EnablePlanning:           *enablePlanning,
		SkipOptionalVerification: *skipOptionalVerification,
		MaxTier:                  parseTierFlag(*maxTier),
	}
	opts.ApplyOverrides(cfg)

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	stateDir := cfg.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Fatalf("undercity: failed to create state directory %s: %v", stateDir, err)
	}

	stores, err := loadStores(stateDir)
	if err != nil {
		log.Fatalf("undercity: failed to load learning stores: %v", err)
	}

	harness := verify.New(cfg.Verify, logger)

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := resolveModelName(cfg.StartTier)
	llm := llmclient.NewAnthropicClient(apiKey, model, logger)
	defer llm.Close()

	masker := masking.New(cfg.Masking.Enabled, logger)

	hub := events.NewHub()
	eventsPath := filepath.Join(stateDir, "grind-events.jsonl")
	publisher, err := events.NewPublisher(eventsPath, hub, logger)
	if err != nil {
		log.Fatalf("undercity: failed to open event log: %v", err)
	}
	defer publisher.Close()

	board := taskboard.Load(filepath.Join(stateDir, "tasks.json"), logger)
	collector := metrics.New()

	notifier := notify.NewService(notify.ServiceConfig{
		Token:        os.Getenv(cfg.Notify.TokenEnv),
		Channel:      cfg.Notify.Channel,
		DashboardURL: cfg.ListenAddr,
		Cooldown:     cfg.Notify.Cooldown,
	})
	if !cfg.Notify.Enabled {
		notifier = nil
	}

	playbookSvc := playbook.NewService(playbook.Config{
		AllowedDomains: cfg.Playbook.AllowedDomains,
		CacheTTL:       cfg.Playbook.CacheTTL,
	})

	cleanupSvc := cleanup.NewService(stateDir, cfg.Retention, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	if *serve {
		srv := api.NewServer(board, collector, hub, eventsPath, filepath.Join(stateDir, "live-metrics.json"))
		addr := cfg.ListenAddr
		if addr == "" {
			addr = ":8080"
		}
		go func() {
			logger.Info("undercity: dashboard listening", "addr", addr)
			if err := srv.Router().Run(addr); err != nil {
				logger.Error("undercity: dashboard server stopped", "error", err)
			}
		}()
	}

	taskID := uuid.NewString()
	board.Enqueue(taskID, opts.Objective)
	board.Update(taskID, func(e *taskboard.Entry) { e.Status = taskboard.StatusRunning })
	publisher.Publish(events.KindTaskStarted, taskID, map[string]any{"objective": opts.Objective})

	checkpointPath := filepath.Join(stateDir, taskID, "checkpoint.json")
	checkpointFn := func(cp models.Checkpoint) error {
		return writeCheckpoint(checkpointPath, cp)
	}

	workerLimits := cfg.Limits.ToWorkerLimits()

	rt := router.New(stores.Ledger, stores.Profile, logger)
	decision := rt.Route(opts.Objective, nil, workerLimits.MaxTier)
	startingTier := decision.StartingTier
	if *startingModel != "" {
		startingTier = models.ParseTier(*startingModel)
	}

	w := worker.New(llm, harness, stores, workerLimits, checkpointFn, logger)
	w.Masker = masker

	task := worker.Task{
		ID:               taskID,
		Objective:        opts.Objective,
		WorkingDirectory: opts.WorkingDirectory,
		StartingTier:     startingTier,
		HandoffContext:   resolvePlaybookContext(ctx, playbookSvc, opts.Objective, logger),
	}

	start := time.Now()
	result := w.Run(ctx, task)
	duration := time.Since(start)

	recordOutcome(stores, opts.Objective, result)
	collector.RecordAttempt(result.Model.String(), string(result.Status))
	collector.ObserveTaskDuration(string(result.Status), duration)
	if err := collector.WriteSnapshot(filepath.Join(stateDir, "live-metrics.json")); err != nil {
		logger.Warn("undercity: failed to write metrics snapshot", "error", err)
	}

	switch result.Status {
	case models.StatusComplete:
		board.Update(taskID, func(e *taskboard.Entry) {
			e.Status = taskboard.StatusComplete
			e.CommitSha = result.CommitSha
		})
		publisher.Publish(events.KindTaskCompleted, taskID, map[string]any{"commitSha": result.CommitSha})

		if opts.AutoCommit && result.CommitSha != "" {
			elev := elevator.New(opts.WorkingDirectory, elevator.Config{}, harness, logger)
			elev.Enqueue(opts.Branch, taskID, "undercity", nil)
			if err := elev.ProcessAll(ctx); err != nil {
				logger.Warn("undercity: merge elevator pass failed", "error", err)
				notifier.NotifyConflict(ctx, taskID, opts.Objective, err.Error())
			}
		}
	case models.StatusEscalated:
		board.Update(taskID, func(e *taskboard.Entry) { e.Status = taskboard.StatusRunning })
		notifier.NotifyEscalation(ctx, taskID, opts.Objective, startingTier.String(), result.Model.String())
	default:
		board.Update(taskID, func(e *taskboard.Entry) {
			e.Status = taskboard.StatusFailed
			e.Error = result.Error
		})
		publisher.Publish(events.KindTaskFailed, taskID, map[string]any{"error": result.Error})
		notifier.NotifyFailure(ctx, taskID, opts.Objective, result.Error)
		writeFailedTaskSnapshot(stateDir, taskID, result)
	}

	if err := board.Flush(); err != nil {
		logger.Warn("undercity: failed to persist task board", "error", err)
	}

	if result.Status != models.StatusComplete {
		os.Exit(1)
	}
}

var playbookURLPattern = regexp.MustCompile(`https?://\S+`)

// resolvePlaybookContext fetches an objective-named doc URL (a design
// doc or CONTRIBUTING guide) and returns it as supplementary briefing
// text. This is additive only: a missing URL
// or a fetch failure both degrade to no extra context, never a task
// failure.
func resolvePlaybookContext(ctx context.Context, svc *playbook.Service, objective string, logger *slog.Logger) string {
	url := playbookURLPattern.FindString(objective)
	if url == "" {
		return ""
	}
	content, err := svc.Resolve(ctx, url)
	if err != nil {
		logger.Warn("undercity: playbook fetch failed, continuing without it", "url", url, "error", err)
		return ""
	}
	return content
}

// parseTierFlag converts a tier-name flag to a models.Tier, leaving an
// unset (empty) flag as the zero value so CLIOptions.ApplyOverrides'
// "was this explicitly passed" checks see no override.
func parseTierFlag(s string) models.Tier {
	if s == "" {
		return 0
	}
	return models.ParseTier(s)
}

func resolveModelName(tier models.Tier) string {
	switch tier {
	case models.TierCheap:
		return "claude-haiku-4-5"
	case models.TierMid:
		return "claude-sonnet-4-5"
	default:
		return "claude-opus-4-1"
	}
}

// recordOutcome feeds a completed task's result back into the ledger and
// profile so future routing decisions benefit from it.
func recordOutcome(stores worker.Stores, objective string, result *models.TaskResult) {
	if stores.Ledger == nil {
		return
	}
	escalated := result.Status == models.StatusEscalated
	success := result.Status == models.StatusComplete
	var durationMs int64
	for _, a := range result.Attempts {
		durationMs += a.DurationMs
	}
	stores.Ledger.RecordOutcome(objective, result.Model, success, escalated, result.TokenUsage.Total, durationMs, len(result.Attempts))
	if err := stores.Ledger.Save(); err != nil {
		slog.Default().Warn("undercity: failed to persist capability ledger", "error", err)
	}
	if stores.Profile != nil {
		if err := stores.Profile.Save(); err != nil {
			slog.Default().Warn("undercity: failed to persist routing profile", "error", err)
		}
	}
}

// writeCheckpoint atomically persists a worker checkpoint.
func writeCheckpoint(path string, cp models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// writeFailedTaskSnapshot dumps debug info for a permanently failed
// task: last model, attempts, token usage, inferred reason.
func writeFailedTaskSnapshot(stateDir, taskID string, result *models.TaskResult) {
	dir := filepath.Join(stateDir, "failed-tasks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	if len(data) > 5000 {
		data = data[len(data)-5000:]
	}
	_ = os.WriteFile(filepath.Join(dir, taskID+".json"), data, 0o644)
}

func loadStores(stateDir string) (worker.Stores, error) {
	ledger, err := learning.LoadLedger(filepath.Join(stateDir, "capability-ledger.json"))
	if err != nil {
		return worker.Stores{}, err
	}
	profile, err := learning.LoadProfile(filepath.Join(stateDir, "routing-profile.json"))
	if err != nil {
		return worker.Stores{}, err
	}
	errStore, err := learning.LoadErrorStore(filepath.Join(stateDir, "error-patterns.json"))
	if err != nil {
		return worker.Stores{}, err
	}
	coMod, err := learning.LoadCoModIndex(filepath.Join(stateDir, "task-file-patterns.json"))
	if err != nil {
		return worker.Stores{}, err
	}
	knowledge, err := learning.LoadKnowledgeStore(filepath.Join(stateDir, "knowledge", "storage.json"))
	if err != nil {
		return worker.Stores{}, err
	}
	return worker.Stores{
		Ledger:    ledger,
		Profile:   profile,
		Errors:    errStore,
		CoMod:     coMod,
		Knowledge: knowledge,
	}, nil
}
