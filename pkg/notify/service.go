package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
	Cooldown     time.Duration
}

// Service handles Slack notification delivery with signature-based
// deduplication. Nil-safe: all methods are no-ops when the service is
// nil, so callers can construct one unconditionally from config and
// skip the "is notify configured" branch at every call site.
type Service struct {
	client       *Client
	dashboardURL string
	cooldown     time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewService creates a new Slack notification service. Returns nil if
// Token or Channel is empty, so an unconfigured deployment simply has
// notifications off rather than needing a configured-or-not branch at
// every call site.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		cooldown:     cooldown,
		logger:       slog.Default().With("component", "notify-service"),
		sent:         make(map[string]time.Time),
	}
}

// NewServiceWithClient builds a Service backed by a pre-built Client,
// for tests against a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string, cooldown time.Duration) *Service {
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		cooldown:     cooldown,
		logger:       slog.Default().With("component", "notify-service"),
		sent:         make(map[string]time.Time),
	}
}

// NotifyEscalation alerts that a task escalated to a stronger tier.
// Fail-open: delivery errors are logged, never returned.
func (s *Service) NotifyEscalation(ctx context.Context, taskID, objective, fromTier, toTier string) {
	if s == nil {
		return
	}
	sig := signature("escalation", taskID, fromTier, toTier)
	if !s.shouldSend(sig) {
		return
	}
	blocks := BuildEscalationMessage(taskID, objective, fromTier, toTier, s.dashboardURL)
	s.post(ctx, taskID, blocks)
}

// NotifyConflict alerts on a merge elevator conflict.
func (s *Service) NotifyConflict(ctx context.Context, taskID, objective, detail string) {
	if s == nil {
		return
	}
	sig := signature("conflict", taskID, detail)
	if !s.shouldSend(sig) {
		return
	}
	blocks := BuildConflictMessage(taskID, objective, detail, s.dashboardURL)
	s.post(ctx, taskID, blocks)
}

// NotifyFailure alerts on a permanent task failure.
func (s *Service) NotifyFailure(ctx context.Context, taskID, objective, reason string) {
	if s == nil {
		return
	}
	sig := signature("failure", taskID, reason)
	if !s.shouldSend(sig) {
		return
	}
	blocks := BuildFailureMessage(taskID, objective, reason, s.dashboardURL)
	s.post(ctx, taskID, blocks)
}

func (s *Service) post(ctx context.Context, taskID string, blocks []goslack.Block) {
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("failed to send Slack notification", "task_id", taskID, "error", err)
	}
}

// shouldSend reports whether sig hasn't fired within the cooldown
// window, and if so records it as sent now.
func (s *Service) shouldSend(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.sent[sig]; ok && time.Since(last) < s.cooldown {
		return false
	}
	s.sent[sig] = time.Now()
	return true
}

func signature(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
