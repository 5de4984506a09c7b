package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherAppendsAndBroadcasts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grind-events.jsonl")
	hub := NewHub()

	p, err := NewPublisher(path, hub, nil)
	require.NoError(t, err)
	defer p.Close()

	sub, unsub := hub.Subscribe()
	defer unsub()

	p.Publish(KindTaskStarted, "task-1", map[string]any{"objective": "fix bug"})

	select {
	case ev := <-sub:
		assert.Equal(t, KindTaskStarted, ev.Kind)
		assert.Equal(t, "task-1", ev.TaskID)
		assert.Equal(t, int64(1), ev.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"task.started"`)
}

func TestPublisherResumesSequenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grind-events.jsonl")

	p1, err := NewPublisher(path, nil, nil)
	require.NoError(t, err)
	p1.Publish(KindTaskStarted, "t1", nil)
	p1.Publish(KindTaskCompleted, "t1", nil)
	require.NoError(t, p1.Close())

	p2, err := NewPublisher(path, nil, nil)
	require.NoError(t, err)
	defer p2.Close()
	p2.Publish(KindTaskStarted, "t2", nil)

	events, err := Tail(path)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[2].Seq)
}

func TestTailCapsAtCatchupLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grind-events.jsonl")

	p, err := NewPublisher(path, nil, nil)
	require.NoError(t, err)
	for i := 0; i < catchupLimit+50; i++ {
		p.Publish(KindLedgerUpdated, "", nil)
	}
	require.NoError(t, p.Close())

	events, err := Tail(path)
	require.NoError(t, err)
	assert.Len(t, events, catchupLimit)
}

func TestTailOnMissingFileReturnsEmpty(t *testing.T) {
	events, err := Tail(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, events)
}
