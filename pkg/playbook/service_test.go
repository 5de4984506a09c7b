package playbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceResolve(t *testing.T) {
	t.Run("empty URL resolves to empty content", func(t *testing.T) {
		svc := NewService(Config{})
		content, err := svc.Resolve(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, content)
	})

	t.Run("URL provided fetches content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# Design Doc"))
		}))
		defer server.Close()

		svc := NewService(Config{})
		content, err := svc.Resolve(context.Background(), server.URL+"/doc.md")
		require.NoError(t, err)
		assert.Equal(t, "# Design Doc", content)
	})

	t.Run("fetch error is returned for caller to treat as additive-only", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := NewService(Config{})
		_, err := svc.Resolve(context.Background(), server.URL+"/doc.md")
		require.Error(t, err)
	})

	t.Run("disallowed domain returns error", func(t *testing.T) {
		svc := NewService(Config{AllowedDomains: []string{"allowed.example.com"}})
		_, err := svc.Resolve(context.Background(), "https://evil.example.com/doc.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in allowed list")
	})

	t.Run("caches fetched content", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			_, _ = w.Write([]byte("# Cached"))
		}))
		defer server.Close()

		svc := NewService(Config{})
		_, err := svc.Resolve(context.Background(), server.URL+"/doc.md")
		require.NoError(t, err)
		_, err = svc.Resolve(context.Background(), server.URL+"/doc.md")
		require.NoError(t, err)

		assert.Equal(t, 1, calls)
	})
}
