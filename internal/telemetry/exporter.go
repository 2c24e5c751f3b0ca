package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MetricsExporter receives metrics snapshots.
type MetricsExporter interface {
	Export(snapshot MetricsSnapshot) error
	Close() error
}

// MetricsSnapshot is a point-in-time metrics record.
type MetricsSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"` // command or operation that triggered the flush
	Metrics   map[string]interface{} `json:"metrics"`
	Labels    map[string]string      `json:"labels,omitempty"`
}

// JSONLExporter appends one JSON line per snapshot.
type JSONLExporter struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONLExporter writes snapshots to w. Close closes w if it is an io.Closer.
func NewJSONLExporter(w io.Writer) *JSONLExporter {
	return &JSONLExporter{w: w, enc: json.NewEncoder(w)}
}

// NewJSONFileExporter creates or appends to the file at path.
func NewJSONFileExporter(path string) (*JSONLExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics file: %w", err)
	}
	return NewJSONLExporter(f), nil
}

// Export writes snapshot as a single line.
func (e *JSONLExporter) Export(snapshot MetricsSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(snapshot)
}

// Close closes the underlying writer when it supports closing.
func (e *JSONLExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
