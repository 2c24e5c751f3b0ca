package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/persist"
	"github.com/cadre-oss/mosaic/internal/testutil"
)

type fixture struct {
	h       *testutil.TestHarness
	srv     *Server
	store   *memory.Store[string]
	handler http.Handler
}

func newFixture(t *testing.T, capacity int, opts ...testutil.HarnessOption) *fixture {
	t.Helper()
	h := testutil.NewTestHarness(t, append(opts, testutil.WithCapacity(capacity))...)
	srv := New(h.Config, h.Store, h.Persister, h.EventBus, h.Metrics, h.Logger)
	return &fixture{h: h, srv: srv, store: h.Store, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decode[V any](t *testing.T, w *httptest.ResponseRecorder) V {
	t.Helper()
	var v V
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 3)
	w := f.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestInsertAndList(t *testing.T) {
	f := newFixture(t, 5)

	discoveries := []struct{ payload, category string }{
		{"Found pattern A", "Physics"},
		{"Found pattern B", "Biology"},
		{"Found pattern C", "Physics"},
	}
	for _, d := range discoveries {
		body := `{"payload": "` + d.payload + `", "metadata": {"category": "` + d.category + `"}}`
		w := f.do(t, http.MethodPost, "/api/entries", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("insert: expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"all", "/api/entries", []string{"Found pattern A", "Found pattern B", "Found pattern C"}},
		{"category", "/api/entries?category=Physics", []string{"Found pattern A", "Found pattern C"}},
		{"glob", "/api/entries?match=*B", []string{"Found pattern B"}},
		{"where", "/api/entries?where=" + "sequence%20%3E%3D%201", []string{"Found pattern B", "Found pattern C"}},
		{"limit", "/api/entries?limit=1", []string{"Found pattern C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.target, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			entries := decode[[]memory.Entry[string]](t, w)
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(entries))
			}
			for i, e := range entries {
				if e.Payload != tt.want[i] {
					t.Errorf("entry %d: expected %q, got %q", i, tt.want[i], e.Payload)
				}
			}
		})
	}

	if _, err := f.h.Backend.Read("default"); err != nil {
		t.Errorf("expected inserts to be saved: %v", err)
	}
	if n := f.h.EventCount(event.EntryInserted); n != 3 {
		t.Errorf("expected 3 insert events, got %d", n)
	}
}

func TestInsertValidation(t *testing.T) {
	f := newFixture(t, 2)
	for _, body := range []string{`not json`, `{"metadata": {}}`} {
		w := f.do(t, http.MethodPost, "/api/entries", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
	if f.store.Len() != 0 {
		t.Errorf("rejected inserts changed the store")
	}
}

func TestListBadFilter(t *testing.T) {
	f := newFixture(t, 2)
	for _, target := range []string{"/api/entries?where=sequence%20%3E", "/api/entries?limit=-1"} {
		w := f.do(t, http.MethodGet, target, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t, 5)
	f.store.Insert("a", map[string]any{"category": "Physics"})
	f.store.Insert("b", map[string]any{"category": "Biology"})
	f.store.Insert("c", map[string]any{"category": "Physics"})

	w := f.do(t, http.MethodPost, "/api/entries/remove", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty matcher: expected 400, got %d", w.Code)
	}
	if body := decode[map[string]string](t, w); body["code"] != "INVALID_ARGUMENT" {
		t.Errorf("expected INVALID_ARGUMENT code, got %v", body)
	}

	w = f.do(t, http.MethodPost, "/api/entries/remove", `{"key": "category", "value": "Physics"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[map[string]int](t, w)["removed"]; got != 2 {
		t.Errorf("expected 2 removed, got %d", got)
	}

	w = f.do(t, http.MethodDelete, "/api/entries", "")
	if got := decode[map[string]int](t, w)["cleared"]; got != 1 {
		t.Errorf("expected 1 cleared, got %d", got)
	}
	if f.store.Len() != 0 {
		t.Errorf("expected empty store, got %d", f.store.Len())
	}
	if f.store.NextSequence() != 3 {
		t.Errorf("clear must not reset sequence, got %d", f.store.NextSequence())
	}
}

func TestSnapshotExportImport(t *testing.T) {
	src := newFixture(t, 3)
	src.store.Insert("x", map[string]any{"k": "v"})
	src.store.Insert("y", nil)

	for _, format := range []string{"json", "jsonl"} {
		t.Run(format, func(t *testing.T) {
			w := src.do(t, http.MethodGet, "/api/snapshot?format="+format, "")
			if w.Code != http.StatusOK {
				t.Fatalf("export: expected 200, got %d", w.Code)
			}

			dst := newFixture(t, 3)
			dst.store.Insert("stale", nil)
			w = dst.do(t, http.MethodPut, "/api/snapshot", w.Body.String())
			if w.Code != http.StatusOK {
				t.Fatalf("import: expected 200, got %d: %s", w.Code, w.Body.String())
			}
			entries := dst.store.Retrieve(nil)
			if len(entries) != 2 || entries[0].Payload != "x" || entries[1].Payload != "y" {
				t.Errorf("unexpected entries after import: %+v", entries)
			}
		})
	}
}

func TestSnapshotImportCorrupt(t *testing.T) {
	f := newFixture(t, 3)
	f.store.Insert("keep", nil)

	w := f.do(t, http.MethodPut, "/api/snapshot?merge=true", `[{"payload": "x"}]`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if entries := f.store.Retrieve(nil); len(entries) != 1 || entries[0].Payload != "keep" {
		t.Errorf("corrupt import changed the store: %+v", entries)
	}
}

func TestSaveFailureKeepsMutation(t *testing.T) {
	backend := testutil.NewMockBackend()
	backend.SetFailWrite(true)
	f := newFixture(t, 3, testutil.WithBackend(backend))

	w := f.do(t, http.MethodPost, "/api/entries", `{"payload": "a"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if f.store.Len() != 1 {
		t.Errorf("expected insert to stand, got %d entries", f.store.Len())
	}
	f.h.AssertEventEmitted(event.SnapshotFailed)

	w = f.do(t, http.MethodPost, "/api/snapshot/save", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("explicit save: expected 500, got %d", w.Code)
	}
	if body := decode[map[string]string](t, w); body["code"] != "IO_FAILURE" {
		t.Errorf("expected IO_FAILURE code, got %v", body)
	}
	if backend.WriteCount() != 2 {
		t.Errorf("expected 2 write attempts, got %d", backend.WriteCount())
	}
}

func TestConcurrentInsertsPersistLatest(t *testing.T) {
	f := newFixture(t, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.do(t, http.MethodPost, "/api/entries", fmt.Sprintf(`{"payload": "p%d"}`, i))
		}(i)
	}
	wg.Wait()

	restored, err := memory.New[string](50)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.h.Persister.Load(restored, f.h.Config.Snapshot.Name, false); err != nil {
		t.Fatalf("load saved snapshot: %v", err)
	}

	live := f.store.Retrieve(nil)
	saved := restored.Retrieve(nil)
	if len(live) != 20 || len(saved) != len(live) {
		t.Fatalf("saved %d entries, live store has %d", len(saved), len(live))
	}
	for i := range live {
		if saved[i].Sequence != live[i].Sequence || saved[i].Payload != live[i].Payload {
			t.Errorf("entry %d: saved %d/%q, live %d/%q",
				i, saved[i].Sequence, saved[i].Payload, live[i].Sequence, live[i].Payload)
		}
	}
	if restored.NextSequence() != f.store.NextSequence() {
		t.Errorf("saved next sequence %d, live %d", restored.NextSequence(), f.store.NextSequence())
	}
}

func TestSnapshotImportTooLarge(t *testing.T) {
	f := newFixture(t, 3)
	f.srv.maxSnapshotBytes = 16
	f.store.Insert("keep", nil)

	body := `[{"sequence": 0, "timestamp": "2026-01-01T00:00:00Z", "payload": "x"}]`
	w := f.do(t, http.MethodPut, "/api/snapshot", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
	if entries := f.store.Retrieve(nil); len(entries) != 1 || entries[0].Payload != "keep" {
		t.Errorf("oversized import changed the store: %+v", entries)
	}
}

func TestSnapshotExportBadFormat(t *testing.T) {
	f := newFixture(t, 3)
	w := f.do(t, http.MethodGet, "/api/snapshot?format=xml", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSnapshotSaveAndHistory(t *testing.T) {
	f := newFixture(t, 3)
	f.store.Insert("a", nil)

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/api/snapshot/save", "")
		if w.Code != http.StatusOK {
			t.Fatalf("save: expected 200, got %d", w.Code)
		}
	}

	w := f.do(t, http.MethodGet, "/api/snapshot/history?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", w.Code)
	}
	revs := decode[[]persist.Revision](t, w)
	if len(revs) != 1 || revs[0].Name != "default" {
		t.Errorf("unexpected history: %+v", revs)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, 4)
	f.do(t, http.MethodPost, "/api/entries", `{"payload": "a"}`)

	body := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/status", ""))
	if body["entries"] != float64(1) || body["capacity"] != float64(4) {
		t.Errorf("unexpected status: %v", body)
	}
	metrics, ok := body["metrics"].(map[string]any)
	if !ok || metrics["inserts"] != float64(1) {
		t.Errorf("expected insert counted in metrics, got %v", body["metrics"])
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, 2)
	r := httptest.NewRequest(http.MethodOptions, "/api/entries", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}

func TestSSEEvents(t *testing.T) {
	f := newFixture(t, 1)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?types=entry.evicted", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readData := func() map[string]any {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("stream ended: %v", err)
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var v map[string]any
				if err := json.Unmarshal([]byte(data), &v); err != nil {
					t.Fatal(err)
				}
				return v
			}
		}
	}

	if first := readData(); first["type"] != "connected" {
		t.Fatalf("expected connected event, got %v", first)
	}

	for _, p := range []string{"first", "second"} {
		resp, err := http.Post(ts.URL+"/api/entries", "application/json",
			bytes.NewBufferString(`{"payload": "`+p+`"}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	ev := readData()
	if ev["type"] != string(event.EntryEvicted) {
		t.Fatalf("expected eviction event, got %v", ev)
	}
	data, _ := ev["data"].(map[string]any)
	if data["payload"] != "first" || data["reason"] != "capacity" {
		t.Errorf("unexpected eviction data: %v", data)
	}
}

func TestParseEventTypes(t *testing.T) {
	types, err := parseEventTypes("entry.inserted, store.cleared")
	if err != nil || len(types) != 2 || types[1] != event.StoreCleared {
		t.Errorf("unexpected result %v, %v", types, err)
	}
	if _, err := parseEventTypes("entry.bogus"); err == nil {
		t.Error("expected error for unknown type")
	}
	if types, err := parseEventTypes(""); err != nil || types != nil {
		t.Errorf("empty filter should subscribe to all, got %v, %v", types, err)
	}
}
