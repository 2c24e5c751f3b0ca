package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
)

// fakeClock returns a strictly increasing time on each call.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// recorder is a Notifier that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (r *recorder) Emit(ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) ofType(t event.EventType) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestStore(t *testing.T, capacity int, opts ...Option) *Store[string] {
	t.Helper()
	opts = append([]Option{WithClock(newFakeClock().Now)}, opts...)
	s, err := New[string](capacity, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func payloads(entries []Entry[string]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Payload
	}
	return out
}

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := New[string](capacity)
		if !errors.Is(err, mosaicerrors.ErrInvalidArgument) {
			t.Errorf("capacity %d: expected INVALID_ARGUMENT, got %v", capacity, err)
		}
	}
}

func TestInsert_AssignsSequenceAndTimestamp(t *testing.T) {
	s := newTestStore(t, 3)

	first := s.Insert("a", nil)
	second := s.Insert("b", map[string]any{"category": "Physics"})

	if first.Sequence != 0 || second.Sequence != 1 {
		t.Errorf("expected sequences 0 and 1, got %d and %d", first.Sequence, second.Sequence)
	}
	if !second.Timestamp.After(first.Timestamp) {
		t.Error("expected later timestamp for later insert")
	}
	if first.Metadata == nil || len(first.Metadata) != 0 {
		t.Errorf("expected empty metadata map, got %v", first.Metadata)
	}
	if v, ok := second.Meta("category"); !ok || v != "Physics" {
		t.Errorf("expected category Physics, got %v", v)
	}
}

func TestInsert_DiscoveryScenario(t *testing.T) {
	s := newTestStore(t, 5)

	for i := 1; i <= 6; i++ {
		s.Insert(fmt.Sprintf("D%d", i), nil)
	}

	got := payloads(s.Retrieve(nil))
	want := []string{"D2", "D3", "D4", "D5", "D6"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestInsert_CapacityInvariant(t *testing.T) {
	for _, capacity := range []int{1, 2, 7} {
		s := newTestStore(t, capacity)
		for i := 0; i < 3*capacity+1; i++ {
			s.Insert(fmt.Sprintf("p%d", i), nil)
			if n := len(s.Retrieve(nil)); n > capacity {
				t.Fatalf("capacity %d: %d entries after insert %d", capacity, n, i)
			}
		}
		if s.Len() != capacity {
			t.Errorf("capacity %d: expected full store, got %d", capacity, s.Len())
		}
	}
}

func TestInsert_EvictsLowestSequenceFirst(t *testing.T) {
	s := newTestStore(t, 3)
	for i := 0; i < 4; i++ {
		s.Insert(fmt.Sprintf("p%d", i), nil)
	}

	entries := s.Retrieve(nil)
	for _, e := range entries {
		if e.Sequence == 0 {
			t.Fatal("entry with lowest sequence should have been evicted")
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Sequence <= entries[i-1].Sequence {
			t.Errorf("sequences not strictly increasing: %d then %d",
				entries[i-1].Sequence, entries[i].Sequence)
		}
	}
}

func TestInsert_NotifiesEviction(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t, 2, WithNotifier(rec))

	s.Insert("a", nil)
	s.Insert("b", nil)
	s.Insert("c", nil)

	evicted := rec.ofType(event.EntryEvicted)
	if len(evicted) != 1 {
		t.Fatalf("expected 1 eviction event, got %d", len(evicted))
	}
	if evicted[0].Data["payload"] != "a" {
		t.Errorf("expected evicted payload a, got %v", evicted[0].Data["payload"])
	}
	if evicted[0].Data["reason"] != "capacity" {
		t.Errorf("expected reason capacity, got %v", evicted[0].Data["reason"])
	}
	if n := len(rec.ofType(event.EntryInserted)); n != 3 {
		t.Errorf("expected 3 insert events, got %d", n)
	}
}

type warnRecorder struct{ msgs []string }

func (w *warnRecorder) Warn(msg string, keyvals ...interface{}) { w.msgs = append(w.msgs, msg) }

func TestInsert_NotifierFailureDoesNotFailInsert(t *testing.T) {
	logger := &warnRecorder{}
	rec := &recorder{err: fmt.Errorf("hook down")}
	s := newTestStore(t, 1, WithNotifier(rec), WithLogger(logger))

	s.Insert("a", nil)
	s.Insert("b", nil)

	if got := payloads(s.Retrieve(nil)); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected [b], got %v", got)
	}
	if len(logger.msgs) == 0 {
		t.Error("expected notifier failure to be logged")
	}
}

func TestInsert_NotifierCanReenterStore(t *testing.T) {
	bus := event.NewBus(nil)
	s := newTestStore(t, 2, WithNotifier(bus))

	var seen int
	bus.Register(event.NewFuncHook("reenter", []event.EventType{event.EntryEvicted}, true, func(ev event.Event) error {
		seen = s.Len()
		return nil
	}))

	s.Insert("a", nil)
	s.Insert("b", nil)
	s.Insert("c", nil)

	if seen != 2 {
		t.Errorf("expected hook to observe 2 entries, got %d", seen)
	}
}

func TestInsert_MetadataIsCopied(t *testing.T) {
	s := newTestStore(t, 2)
	meta := map[string]any{"category": "Physics"}

	returned := s.Insert("a", meta)
	meta["category"] = "mutated"
	returned.Metadata["category"] = "mutated too"

	got := s.Retrieve(nil)[0]
	if got.Metadata["category"] != "Physics" {
		t.Errorf("store metadata aliased caller map: %v", got.Metadata["category"])
	}
}

func TestRetrieve_Filter(t *testing.T) {
	s := newTestStore(t, 10)
	s.Insert("Quantum Entanglement", map[string]any{"category": "Physics"})
	s.Insert("Black Holes", map[string]any{"category": "Astronomy"})
	s.Insert("String Theory", map[string]any{"category": "Physics"})

	physics := s.Retrieve(func(e Entry[string]) bool {
		return e.Metadata["category"] == "Physics"
	})

	got := payloads(physics)
	if len(got) != 2 || got[0] != "Quantum Entanglement" || got[1] != "String Theory" {
		t.Errorf("unexpected filtered result: %v", got)
	}
}

func TestRetrieve_DoesNotAliasStorage(t *testing.T) {
	s := newTestStore(t, 3)
	s.Insert("a", map[string]any{"k": "v"})
	s.Insert("b", nil)

	snapshot := s.Retrieve(nil)
	snapshot[0].Payload = "changed"
	snapshot[0].Metadata["k"] = "changed"
	snapshot = append(snapshot[:0], snapshot[1:]...)

	again := s.Retrieve(nil)
	if len(again) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(again))
	}
	if again[0].Payload != "a" || again[0].Metadata["k"] != "v" {
		t.Errorf("mutation of retrieved slice leaked into store: %+v", again[0])
	}
}

func TestRetrieve_PredicatePanicPropagates(t *testing.T) {
	s := newTestStore(t, 3)
	s.Insert("a", nil)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected predicate panic to propagate")
			}
		}()
		s.Retrieve(func(Entry[string]) bool { panic("predicate failed") })
	}()

	// The lock must have been released.
	s.Insert("b", nil)
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
}

func TestRemove_ByMetadataScenario(t *testing.T) {
	s := newTestStore(t, 5)
	s.Insert("Quantum Entanglement", map[string]any{"category": "Physics"})
	s.Insert("Black Holes", nil)
	s.Insert("DNA Structure", nil)

	n, err := s.Remove(MatchMetadata[string]("category", "Physics"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 removal, got %d", n)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 survivors, got %d", s.Len())
	}
}

func TestRemove_IsExhaustive(t *testing.T) {
	s := newTestStore(t, 10)
	s.Insert("a", map[string]any{"category": "x"})
	s.Insert("b", map[string]any{"category": "y"})
	s.Insert("c", map[string]any{"category": "x"})
	s.Insert("d", nil)
	s.Insert("e", map[string]any{"category": "x"})

	n, err := s.Remove(MatchMetadata[string]("category", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 removals, got %d", n)
	}

	left := s.Retrieve(func(e Entry[string]) bool { return e.Metadata["category"] == "x" })
	if len(left) != 0 {
		t.Errorf("expected no entries with category x, got %d", len(left))
	}

	survivors := s.Retrieve(nil)
	if got := payloads(survivors); len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Errorf("unexpected survivors: %v", got)
	}
	if survivors[0].Sequence != 1 || survivors[1].Sequence != 3 {
		t.Errorf("survivor sequences changed: %d, %d", survivors[0].Sequence, survivors[1].Sequence)
	}
}

func TestRemove_ByPayload(t *testing.T) {
	s := newTestStore(t, 5)
	s.Insert("dup", nil)
	s.Insert("other", nil)
	s.Insert("dup", map[string]any{"k": "v"})

	n, err := s.Remove(MatchPayload("dup"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 removals, got %d", n)
	}
}

func TestRemove_EitherCriterionMatches(t *testing.T) {
	s := newTestStore(t, 5)
	s.Insert("target", nil)
	s.Insert("tagged", map[string]any{"category": "Physics"})
	s.Insert("keep", map[string]any{"category": "Biology"})

	target := "target"
	n, err := s.Remove(Matcher[string]{Payload: &target, MetadataKey: "category", MetadataValue: "Physics"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 removals, got %d", n)
	}
	if got := payloads(s.Retrieve(nil)); len(got) != 1 || got[0] != "keep" {
		t.Errorf("unexpected survivors: %v", got)
	}
}

func TestRemove_NumericMetadataMatchesAcrossTypes(t *testing.T) {
	s := newTestStore(t, 5)
	s.Insert("a", map[string]any{"rating": float64(4)})

	n, err := s.Remove(MatchMetadata[string]("rating", 4))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected int 4 to match float64 4, removed %d", n)
	}
}

func TestRemove_InvalidMatcher(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher[string]
	}{
		{"empty", Matcher[string]{}},
		{"key without value", Matcher[string]{MetadataKey: "category"}},
		{"value without key", Matcher[string]{MetadataValue: "Physics"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 3)
			s.Insert("a", map[string]any{"category": "Physics"})

			n, err := s.Remove(tt.matcher)
			if !errors.Is(err, mosaicerrors.ErrInvalidArgument) {
				t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
			}
			if n != 0 || s.Len() != 1 {
				t.Errorf("store changed on invalid matcher: removed %d, len %d", n, s.Len())
			}
		})
	}
}

func TestRemove_NoMatchIsNotAnError(t *testing.T) {
	s := newTestStore(t, 3)
	s.Insert("a", nil)

	n, err := s.Remove(MatchPayload("missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 removals, got %d", n)
	}
}

func TestClear_KeepsSequenceHighWaterMark(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t, 3, WithNotifier(rec))

	var maxSeq uint64
	for i := 0; i < 5; i++ {
		maxSeq = s.Insert(fmt.Sprintf("p%d", i), nil).Sequence
	}

	if n := s.Clear(); n != 3 {
		t.Errorf("Clear returned %d, want 3", n)
	}
	if got := s.Retrieve(nil); len(got) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(got))
	}

	next := s.Insert("after", nil)
	if next.Sequence <= maxSeq {
		t.Errorf("expected sequence > %d after clear, got %d", maxSeq, next.Sequence)
	}

	cleared := rec.ofType(event.StoreCleared)
	if len(cleared) != 1 || cleared[0].Data["count"] != 3 {
		t.Errorf("expected one clear event with count 3, got %+v", cleared)
	}
}

func TestAdvanceSequence_NeverLowers(t *testing.T) {
	s := newTestStore(t, 3)
	s.Insert("a", nil)
	s.Insert("b", nil)

	s.AdvanceSequence(1)
	if s.NextSequence() != 2 {
		t.Errorf("AdvanceSequence lowered the mark to %d", s.NextSequence())
	}

	s.AdvanceSequence(10)
	if e := s.Insert("c", nil); e.Sequence != 10 {
		t.Errorf("expected sequence 10 after advance, got %d", e.Sequence)
	}
}

func TestStore_SequenceMonotonicAcrossOperations(t *testing.T) {
	s := newTestStore(t, 4)
	var last uint64
	for i := 0; i < 20; i++ {
		e := s.Insert(fmt.Sprintf("p%d", i), map[string]any{"mod": i % 3})
		if i > 0 && e.Sequence <= last {
			t.Fatalf("sequence %d not greater than %d", e.Sequence, last)
		}
		last = e.Sequence
		if i%5 == 4 {
			if _, err := s.Remove(MatchMetadata[string]("mod", 0)); err != nil {
				t.Fatal(err)
			}
		}
	}

	entries := s.Retrieve(nil)
	for i := 1; i < len(entries); i++ {
		if entries[i].Sequence <= entries[i-1].Sequence {
			t.Errorf("retrieved sequences out of order at %d", i)
		}
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, err := New[int](16)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Insert(g*1000+i, map[string]any{"g": g})
				if n := len(s.Retrieve(nil)); n > 16 {
					t.Errorf("capacity exceeded: %d", n)
				}
				if i%25 == 0 {
					s.Remove(MatchMetadata[int]("g", g))
				}
			}
		}(g)
	}
	wg.Wait()

	if s.Len() > 16 {
		t.Errorf("capacity exceeded after concurrent access: %d", s.Len())
	}
	if s.NextSequence() != 800 {
		t.Errorf("expected 800 sequences issued, got %d", s.NextSequence())
	}
}
