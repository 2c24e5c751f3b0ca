package telemetry

import (
	"bytes"
	"testing"

	"github.com/prometheus/common/expfmt"

	"github.com/cadre-oss/mosaic/internal/event"
)

func TestWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.Observe(event.NewEvent(event.EntryInserted, nil))
	m.Observe(event.NewEvent(event.EntryInserted, nil))
	m.Observe(event.NewEvent(event.EntryEvicted, nil))

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf, map[string]string{"snapshot": "default"}); err != nil {
		t.Fatal(err)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("output is not valid exposition text: %v", err)
	}

	tests := []struct {
		name string
		want float64
	}{
		{"mosaic_inserts_total", 2},
		{"mosaic_evictions_total", 1},
		{"mosaic_entries", 1},
		{"mosaic_clears_total", 0},
	}
	for _, tt := range tests {
		mf, ok := families[tt.name]
		if !ok {
			t.Errorf("missing family %s", tt.name)
			continue
		}
		metric := mf.GetMetric()[0]
		var got float64
		if metric.Counter != nil {
			got = metric.Counter.GetValue()
		} else {
			got = metric.Gauge.GetValue()
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
		if labels := metric.GetLabel(); len(labels) != 1 || labels[0].GetValue() != "default" {
			t.Errorf("%s: unexpected labels %v", tt.name, labels)
		}
	}
}

func TestFamiliesWithoutLabels(t *testing.T) {
	m := NewMetrics()
	for _, mf := range m.Families(nil) {
		if len(mf.GetMetric()[0].GetLabel()) != 0 {
			t.Errorf("%s: expected no labels", mf.GetName())
		}
	}
}
