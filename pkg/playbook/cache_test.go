package playbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetAndGet(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("https://example.com/doc.md", "# Doc Content")

	content, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "# Doc Content", content)
}

func TestCacheMiss(t *testing.T) {
	cache := NewCache(time.Minute)
	content, ok := cache.Get("https://example.com/missing.md")
	assert.False(t, ok)
	assert.Empty(t, content)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)
	cache.Set("https://example.com/doc.md", "content")

	content, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "content", content)

	time.Sleep(60 * time.Millisecond)

	content, ok = cache.Get("https://example.com/doc.md")
	assert.False(t, ok)
	assert.Empty(t, content)
}

func TestCacheOverwrite(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("https://example.com/doc.md", "first")
	cache.Set("https://example.com/doc.md", "second")

	content, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "second", content)
}
