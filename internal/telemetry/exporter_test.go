package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJSONFileExporter_Export(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mosaic", "metrics.jsonl")

	exporter, err := NewJSONFileExporter(path)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Event:     "store",
		Metrics:   map[string]interface{}{"inserts": int64(6), "evictions": int64(1)},
		Labels:    map[string]string{"snapshot": "default"},
	}
	if err := exporter.Export(snapshot); err != nil {
		t.Fatal(err)
	}
	snapshot.Event = "clear"
	if err := exporter.Export(snapshot); err != nil {
		t.Fatal(err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var events []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var got MetricsSnapshot
		if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		events = append(events, got.Event)
		if got.Labels["snapshot"] != "default" {
			t.Errorf("labels = %v", got.Labels)
		}
	}
	if len(events) != 2 || events[0] != "store" || events[1] != "clear" {
		t.Errorf("events = %v, want [store clear]", events)
	}
}

func TestJSONLExporter_CloseNonCloser(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONLExporter(&buf)
	if err := e.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
