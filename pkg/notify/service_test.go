package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	assert.NotPanics(t, func() {
		s.NotifyEscalation(context.Background(), "t1", "fix bug", "fast", "strong")
		s.NotifyConflict(context.Background(), "t1", "fix bug", "diverged")
		s.NotifyFailure(context.Background(), "t1", "fix bug", "exhausted retries")
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "", Channel: "C123"}))
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		assert.Nil(t, NewService(ServiceConfig{Token: "xoxb-test", Channel: ""}))
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: "C123", DashboardURL: "https://example.com"})
		assert.NotNil(t, svc)
	})
}

func TestShouldSendDedupsWithinCooldown(t *testing.T) {
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"123.456"}`))
	}))
	defer server.Close()

	client := NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	svc := NewServiceWithClient(client, "https://example.com", time.Hour)

	svc.NotifyEscalation(context.Background(), "t1", "fix bug", "fast", "strong")
	svc.NotifyEscalation(context.Background(), "t1", "fix bug", "fast", "strong")

	assert.Equal(t, 1, posts, "second identical escalation within the cooldown should be suppressed")
}

func TestShouldSendAllowsDistinctSignatures(t *testing.T) {
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"123.456"}`))
	}))
	defer server.Close()

	client := NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	svc := NewServiceWithClient(client, "https://example.com", time.Hour)

	svc.NotifyEscalation(context.Background(), "t1", "fix bug", "fast", "strong")
	svc.NotifyFailure(context.Background(), "t1", "fix bug", "exhausted retries")

	assert.Equal(t, 2, posts)
}

func TestShouldSendAllowsResendAfterCooldownExpires(t *testing.T) {
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"123.456"}`))
	}))
	defer server.Close()

	client := NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	svc := NewServiceWithClient(client, "https://example.com", time.Millisecond)

	svc.NotifyFailure(context.Background(), "t1", "fix bug", "exhausted retries")
	time.Sleep(5 * time.Millisecond)
	svc.NotifyFailure(context.Background(), "t1", "fix bug", "exhausted retries")

	assert.Equal(t, 2, posts)
}
