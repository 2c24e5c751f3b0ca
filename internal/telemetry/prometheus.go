package telemetry

import (
	"io"
	"sort"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// PrometheusContentType is the content type of WritePrometheus output.
var PrometheusContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

type promMetric struct {
	name  string
	help  string
	kind  dto.MetricType
	value *int64
}

func (m *Metrics) promMetrics() []promMetric {
	return []promMetric{
		{"mosaic_inserts_total", "Entries inserted.", dto.MetricType_COUNTER, &m.Inserts},
		{"mosaic_evictions_total", "Entries evicted to make room or by import.", dto.MetricType_COUNTER, &m.Evictions},
		{"mosaic_removals_total", "Entries removed by matcher.", dto.MetricType_COUNTER, &m.Removals},
		{"mosaic_clears_total", "Store clears.", dto.MetricType_COUNTER, &m.Clears},
		{"mosaic_snapshots_exported_total", "Snapshots exported.", dto.MetricType_COUNTER, &m.SnapshotsOut},
		{"mosaic_snapshots_imported_total", "Snapshots imported.", dto.MetricType_COUNTER, &m.SnapshotsIn},
		{"mosaic_snapshot_failures_total", "Failed snapshot saves and loads.", dto.MetricType_COUNTER, &m.SnapshotFailures},
		{"mosaic_entries", "Entries currently stored.", dto.MetricType_GAUGE, &m.Entries},
	}
}

// Families returns the metrics as Prometheus metric families. labels are
// attached to every sample.
func (m *Metrics) Families(labels map[string]string) []*dto.MetricFamily {
	pairs := labelPairs(labels)

	var out []*dto.MetricFamily
	for _, pm := range m.promMetrics() {
		v := float64(atomic.LoadInt64(pm.value))
		metric := &dto.Metric{Label: pairs}
		if pm.kind == dto.MetricType_COUNTER {
			metric.Counter = &dto.Counter{Value: &v}
		} else {
			metric.Gauge = &dto.Gauge{Value: &v}
		}
		out = append(out, &dto.MetricFamily{
			Name:   ptr(pm.name),
			Help:   ptr(pm.help),
			Type:   pm.kind.Enum(),
			Metric: []*dto.Metric{metric},
		})
	}
	return out
}

// WritePrometheus writes the metrics in the Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer, labels map[string]string) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range m.Families(labels) {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func labelPairs(labels map[string]string) []*dto.LabelPair {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]*dto.LabelPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, &dto.LabelPair{Name: ptr(k), Value: ptr(labels[k])})
	}
	return pairs
}

func ptr[T any](v T) *T { return &v }
