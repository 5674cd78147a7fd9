package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogBuffer is a goroutine-safe sink for JSON log output in tests. Executor
// goroutines and HTTP handlers may write to it while a test reads.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Entries decodes one JSON record per non-empty line.
func (b *LogBuffer) Entries() ([]map[string]any, error) {
	var entries []map[string]any
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Capture is a debug-level JSON logger writing to Buffer, already attached
// to Context.
type Capture struct {
	Context context.Context
	Logger  *slog.Logger
	Buffer  *LogBuffer
}

// NewCapture returns a Capture for one test.
func NewCapture(t *testing.T) *Capture {
	t.Helper()

	buf := &LogBuffer{}
	log := New(buf, slog.LevelDebug)
	return &Capture{
		Context: WithLogger(context.Background(), log),
		Logger:  log,
		Buffer:  buf,
	}
}
