// Package testutil provides a wired store harness and fakes for tests.
package testutil

import (
	"sync"
	"testing"

	"github.com/cadre-oss/mosaic/internal/config"
	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/persist"
	"github.com/cadre-oss/mosaic/internal/telemetry"
)

// TestHarness wires a string store to an event bus, metrics and an
// in-memory snapshot backend, and records every emitted event.
type TestHarness struct {
	T         *testing.T
	Config    *config.Config
	Store     *memory.Store[string]
	Backend   persist.Backend
	Persister *persist.Persister
	EventBus  *event.Bus
	Metrics   *telemetry.Metrics
	Logger    *telemetry.Logger

	mu     sync.Mutex
	events []event.Event
}

// HarnessOption customises a TestHarness before the store is built.
type HarnessOption func(*TestHarness)

// WithBackend replaces the default memory backend.
func WithBackend(b persist.Backend) HarnessOption {
	return func(h *TestHarness) { h.Backend = b }
}

// WithCapacity sets the store capacity.
func WithCapacity(n int) HarnessOption {
	return func(h *TestHarness) { h.Config.Store.Capacity = n }
}

// NewTestHarness creates a harness with default configuration.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	logger := TestLogger()
	h := &TestHarness{
		T:        t,
		Config:   TestConfig(),
		Backend:  persist.NewMemoryBackend(),
		EventBus: event.NewBus(logger),
		Metrics:  telemetry.NewMetrics(),
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.EventBus.Register(&eventCapture{harness: h})
	h.EventBus.Register(h.Metrics.Hook())

	store, err := memory.New[string](h.Config.Store.Capacity,
		memory.WithNotifier(h.EventBus),
		memory.WithLogger(logger),
	)
	if err != nil {
		t.Fatal(err)
	}
	h.Store = store
	h.Persister = persist.NewPersister(h.Backend, persist.WithEvents(h.EventBus))

	t.Cleanup(func() { h.Backend.Close() })
	return h
}

// Events returns a copy of the captured events.
func (h *TestHarness) Events() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

// AssertEventEmitted checks that an event with the given type was emitted.
func (h *TestHarness) AssertEventEmitted(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) == 0 {
		h.T.Errorf("expected event %q to be emitted", eventType)
	}
}

// AssertNoEvent checks that an event type was NOT emitted.
func (h *TestHarness) AssertNoEvent(eventType event.EventType) {
	h.T.Helper()
	if n := h.EventCount(eventType); n > 0 {
		h.T.Errorf("expected event %q NOT to be emitted, but it was (%d times)", eventType, n)
	}
}

// EventCount returns the number of events with the given type.
func (h *TestHarness) EventCount(eventType event.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, e := range h.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// LastEvent returns the most recent event of the given type.
func (h *TestHarness) LastEvent(eventType event.EventType) (event.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == eventType {
			return h.events[i], true
		}
	}
	return event.Event{}, false
}

// eventCapture is a blocking hook that records events.
type eventCapture struct {
	harness *TestHarness
}

func (c *eventCapture) Name() string                 { return "test-capture" }
func (c *eventCapture) Matches(event.EventType) bool { return true }
func (c *eventCapture) IsBlocking() bool             { return true } // sync for tests

func (c *eventCapture) Handle(ev event.Event) error {
	c.harness.mu.Lock()
	defer c.harness.mu.Unlock()
	c.harness.events = append(c.harness.events, ev)
	return nil
}
