// Package cleanup periodically prunes stale state under the state
// directory: old failed-task snapshots, stale per-task checkpoints, and
// aged research notes, swept by a ticker-driven loop with the usual
// Start/Stop lifecycle. The targets are files under failed-tasks/,
// <taskId>/checkpoint.json, and research/*.md.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/undercity/undercity/pkg/config"
)

// Service runs the retention loop described by config.RetentionConfig.
// All operations are idempotent: re-running after a crash mid-sweep is
// safe, it simply re-scans and deletes whatever is still stale.
type Service struct {
	stateDir string
	cfg      config.RetentionConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(stateDir string, cfg config.RetentionConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stateDir: stateDir, cfg: cfg, logger: logger}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("cleanup: service started",
		"failed_task_age", s.cfg.FailedTaskAge,
		"checkpoint_age", s.cfg.CheckpointAge,
		"research_age", s.cfg.ResearchAge,
		"interval", s.cfg.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup: service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce()

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep, exported so the CLI/API can also
// trigger it on demand (e.g. a "/cleanup" debug endpoint) rather than
// only on the ticker.
func (s *Service) RunOnce() {
	s.pruneOldFiles(filepath.Join(s.stateDir, "failed-tasks"), s.cfg.FailedTaskAge, isJSONFile)
	s.pruneStaleCheckpoints()
	s.pruneOldFiles(filepath.Join(s.stateDir, "research"), s.cfg.ResearchAge, isMarkdownFile)
}

func isJSONFile(name string) bool     { return filepath.Ext(name) == ".json" }
func isMarkdownFile(name string) bool { return filepath.Ext(name) == ".md" }

// pruneOldFiles removes every file directly under dir older than maxAge
// whose name satisfies keep. A non-existent dir or non-positive maxAge is
// a no-op (retention disabled for that target).
func (s *Service) pruneOldFiles(dir string, maxAge time.Duration, match func(string) bool) {
	if maxAge <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cleanup: failed to list directory", "dir", dir, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("cleanup: failed to remove stale file", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("cleanup: pruned stale files", "dir", dir, "removed", removed)
	}
}

// pruneStaleCheckpoints removes <taskId>/checkpoint.json for tasks whose
// checkpoint hasn't been touched in cfg.CheckpointAge: an abandoned or
// crashed task that was never cleaned up by a later completion.
func (s *Service) pruneStaleCheckpoints() {
	if s.cfg.CheckpointAge <= 0 {
		return
	}
	entries, err := os.ReadDir(s.stateDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-s.cfg.CheckpointAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cp := filepath.Join(s.stateDir, entry.Name(), "checkpoint.json")
		info, err := os.Stat(cp)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.stateDir, entry.Name())); err != nil {
			s.logger.Warn("cleanup: failed to remove stale checkpoint dir", "taskId", entry.Name(), "error", err)
			continue
		}
		s.logger.Info("cleanup: removed stale checkpoint", "taskId", entry.Name())
	}
}
