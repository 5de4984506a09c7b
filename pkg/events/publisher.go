package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher appends events to grind-events.jsonl and fans each one out
// to every live Hub subscriber. One Publisher per process, created at
// startup against the state directory.
type Publisher struct {
	path   string
	hub    *Hub
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
	seq  atomic.Int64
}

// NewPublisher opens (creating if absent) <stateDir>/grind-events.jsonl
// for append and wires it to hub. Replays the file's line count into the
// sequence counter so restarts continue numbering rather than resetting.
func NewPublisher(path string, hub *Hub, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	existing, err := countLines(path)
	if err != nil {
		return nil, fmt.Errorf("events: reading existing log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: opening log: %w", err)
	}

	p := &Publisher{path: path, hub: hub, logger: logger, file: f}
	p.seq.Store(int64(existing))
	return p, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}

// Publish appends one event and broadcasts it to subscribers. Logging and
// the durable write happen regardless of whether anyone is listening;
// broadcast failures (a slow/gone subscriber) never block the caller.
func (p *Publisher) Publish(kind Kind, taskID string, payload map[string]any) {
	ev := Event{
		Seq:       p.seq.Add(1),
		Kind:      kind,
		TaskID:    taskID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	p.mu.Lock()
	line, err := json.Marshal(ev)
	if err == nil {
		line = append(line, '\n')
		_, err = p.file.Write(line)
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("events: failed to append event", "kind", kind, "task", taskID, "error", err)
	}

	if p.hub != nil {
		p.hub.Broadcast(ev)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}
