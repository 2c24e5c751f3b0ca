package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadre-oss/mosaic/internal/event"
)

// Metrics collects store activity counters.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	Inserts          int64
	Evictions        int64
	Removals         int64
	Clears           int64
	SnapshotsOut     int64
	SnapshotsIn      int64
	SnapshotFailures int64

	// Gauges
	Entries int64

	// Exporter (optional)
	exporter MetricsExporter
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe updates counters from a store event.
func (m *Metrics) Observe(ev event.Event) {
	switch ev.Type {
	case event.EntryInserted:
		atomic.AddInt64(&m.Inserts, 1)
		atomic.AddInt64(&m.Entries, 1)
	case event.EntryEvicted:
		atomic.AddInt64(&m.Evictions, 1)
		atomic.AddInt64(&m.Entries, -1)
	case event.EntryRemoved:
		atomic.AddInt64(&m.Removals, 1)
		atomic.AddInt64(&m.Entries, -1)
	case event.StoreCleared:
		atomic.AddInt64(&m.Clears, 1)
		atomic.StoreInt64(&m.Entries, 0)
	case event.SnapshotExported:
		atomic.AddInt64(&m.SnapshotsOut, 1)
	case event.SnapshotImported:
		atomic.AddInt64(&m.SnapshotsIn, 1)
		if n, ok := ev.Data["count"].(int); ok {
			atomic.StoreInt64(&m.Entries, int64(n))
		}
	case event.SnapshotFailed:
		atomic.AddInt64(&m.SnapshotFailures, 1)
	}
}

// Hook returns a blocking event hook that feeds m.
func (m *Metrics) Hook() event.Hook {
	return event.NewFuncHook("metrics", nil, true, func(ev event.Event) error {
		m.Observe(ev)
		return nil
	})
}

// GetSummary returns a summary of collected metrics.
func (m *Metrics) GetSummary() map[string]interface{} {
	return map[string]interface{}{
		"inserts":           atomic.LoadInt64(&m.Inserts),
		"evictions":         atomic.LoadInt64(&m.Evictions),
		"removals":          atomic.LoadInt64(&m.Removals),
		"clears":            atomic.LoadInt64(&m.Clears),
		"snapshots_out":     atomic.LoadInt64(&m.SnapshotsOut),
		"snapshots_in":      atomic.LoadInt64(&m.SnapshotsIn),
		"snapshot_failures": atomic.LoadInt64(&m.SnapshotFailures),
		"entries":           atomic.LoadInt64(&m.Entries),
	}
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	for _, c := range []*int64{
		&m.Inserts, &m.Evictions, &m.Removals, &m.Clears,
		&m.SnapshotsOut, &m.SnapshotsIn, &m.SnapshotFailures, &m.Entries,
	} {
		atomic.StoreInt64(c, 0)
	}
}

// SetExporter attaches a metrics exporter.
func (m *Metrics) SetExporter(e MetricsExporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporter = e
}

// Flush exports the current metrics snapshot with the given event label.
func (m *Metrics) Flush(label string, labels map[string]string) error {
	m.mu.RLock()
	exporter := m.exporter
	m.mu.RUnlock()

	if exporter == nil {
		return nil
	}

	return exporter.Export(MetricsSnapshot{
		Timestamp: time.Now(),
		Event:     label,
		Metrics:   m.GetSummary(),
		Labels:    labels,
	})
}
