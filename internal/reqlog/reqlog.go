// Package reqlog writes one JSON trace file per proxied request. Files are
// append-only and per-request, so no coordination across requests is needed.
package reqlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toolbridge-go/proxy-api/internal/logging"
)

// Logger creates request traces. A disabled Logger hands out nil traces,
// which every Trace method tolerates.
type Logger struct {
	enabled bool
	dir     string
}

// New prepares the log directory when tracing is enabled.
func New(enabled bool, dir string) (*Logger, error) {
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	return &Logger{enabled: enabled, dir: dir}, nil
}

// Begin starts a trace for one request. Returns nil when tracing is off.
func (l *Logger) Begin() *Trace {
	if l == nil || !l.enabled {
		return nil
	}
	return &Trace{
		requestID: uuid.NewString(),
		start:     time.Now(),
		dir:       l.dir,
	}
}

// Trace accumulates the phases of a single request.
type Trace struct {
	requestID string
	start     time.Time
	dir       string

	mu     sync.Mutex
	phases []phase
}

type phase struct {
	Phase   string `json:"phase"`
	TimeMS  int64  `json:"time_ms"`
	Content any    `json:"content"`
}

type record struct {
	RequestID string  `json:"requestId"`
	Timestamp string  `json:"timestamp"`
	Phases    []phase `json:"phases"`
}

// Phase records a named phase with its elapsed time and payload.
func (t *Trace) Phase(name string, content any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, phase{
		Phase:   name,
		TimeMS:  time.Since(t.start).Milliseconds(),
		Content: content,
	})
}

// Flush writes the trace to req_<ms>_<rand>.json. Failures are logged and
// otherwise ignored; tracing never fails a request.
func (t *Trace) Flush() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := record{
		RequestID: t.requestID,
		Timestamp: t.start.UTC().Format(time.RFC3339),
		Phases:    t.phases,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		logging.Error("marshal request trace", err, "requestId", t.requestID)
		return
	}

	name := fmt.Sprintf("req_%d_%s.json", t.start.UnixMilli(), t.requestID[:8])
	if err := os.WriteFile(filepath.Join(t.dir, name), data, 0o644); err != nil {
		logging.Error("write request trace", err, "requestId", t.requestID)
	}
}
