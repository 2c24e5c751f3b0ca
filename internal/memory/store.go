// Package memory implements a bounded, metadata-tagged record store with
// FIFO eviction, predicate retrieval and snapshot import/export.
package memory

import (
	"sync"
	"time"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
)

// Notifier receives store events. *event.Bus satisfies it.
type Notifier interface {
	Emit(ev event.Event) error
}

// Store holds at most capacity entries in insertion order. When full, the
// oldest entry is evicted to make room for the next one.
//
// A single mutex guards every operation. Notifications are sent after the
// lock is released, so hooks may call back into the store.
type Store[T any] struct {
	mu       sync.Mutex
	entries  []Entry[T]
	capacity int
	next     uint64 // sequence assigned to the next insertion

	now      func() time.Time
	notifier Notifier
	logger   event.Logger
}

// Option configures a Store.
type Option func(*options)

type options struct {
	now      func() time.Time
	notifier Notifier
	logger   event.Logger
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithNotifier attaches an observer notified on insert, eviction, removal,
// clear and snapshot operations.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger sets the logger that receives notifier failures.
func WithLogger(l event.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a store holding at most capacity entries.
func New[T any](capacity int, opts ...Option) (*Store[T], error) {
	if capacity <= 0 {
		return nil, mosaicerrors.Newf(mosaicerrors.CodeInvalidArgument,
			"capacity must be positive, got %d", capacity)
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[T]{
		entries:  make([]Entry[T], 0, capacity),
		capacity: capacity,
		now:      o.now,
		notifier: o.notifier,
		logger:   o.logger,
	}, nil
}

// Capacity returns the maximum number of entries.
func (s *Store[T]) Capacity() int {
	return s.capacity
}

// Len returns the number of stored entries.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextSequence returns the sequence the next insertion will receive.
func (s *Store[T]) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// AdvanceSequence raises the sequence high-water mark to at least next. It
// never lowers it, so a stale value is harmless.
func (s *Store[T]) AdvanceSequence(next uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next > s.next {
		s.next = next
	}
}

// Insert appends a new entry, evicting the oldest one first if the store is
// full. A nil metadata map is stored as empty.
func (s *Store[T]) Insert(payload T, metadata map[string]any) Entry[T] {
	s.mu.Lock()
	entry := Entry[T]{
		Sequence:  s.next,
		Timestamp: s.now().UTC(),
		Payload:   payload,
		Metadata:  cloneMetadata(metadata),
	}
	s.next++
	evicted := s.appendLocked(entry)
	s.mu.Unlock()

	for _, e := range evicted {
		s.notify(event.EntryEvicted, entryData(e, "capacity"))
	}
	s.notify(event.EntryInserted, entryData(entry, ""))

	return entry.clone()
}

// appendLocked appends e, evicting from the front until it fits. Returns
// the evicted entries. Caller must hold s.mu.
func (s *Store[T]) appendLocked(e Entry[T]) []Entry[T] {
	var evicted []Entry[T]
	for len(s.entries) >= s.capacity {
		evicted = append(evicted, s.entries[0])
		s.entries[0] = Entry[T]{}
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, e)
	return evicted
}

// Retrieve returns copies of the entries accepted by pred, in insertion
// order. A nil pred returns every entry. A panicking predicate propagates to
// the caller and leaves the store unchanged.
func (s *Store[T]) Retrieve(pred Predicate[T]) []Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry[T], 0, len(s.entries))
	for _, e := range s.entries {
		c := e.clone()
		if pred != nil && !pred(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Remove deletes every entry selected by m and returns how many were
// removed. Survivors keep their order and sequence numbers.
func (s *Store[T]) Remove(m Matcher[T]) (int, error) {
	if err := m.validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	kept := s.entries[:0]
	var removed []Entry[T]
	for _, e := range s.entries {
		if m.matches(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = Entry[T]{}
	}
	s.entries = kept
	s.mu.Unlock()

	for _, e := range removed {
		s.notify(event.EntryRemoved, entryData(e, ""))
	}
	return len(removed), nil
}

// Clear removes all entries and returns how many there were. Sequence
// numbering continues from where it was.
func (s *Store[T]) Clear() int {
	s.mu.Lock()
	count := len(s.entries)
	clear(s.entries)
	s.entries = s.entries[:0]
	next := s.next
	s.mu.Unlock()

	s.notify(event.StoreCleared, map[string]interface{}{
		"count":         count,
		"next_sequence": next,
	})
	return count
}

func (s *Store[T]) notify(t event.EventType, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Emit(event.NewEvent(t, data)); err != nil && s.logger != nil {
		s.logger.Warn("store notification failed", "event", string(t), "error", err)
	}
}

func entryData[T any](e Entry[T], reason string) map[string]interface{} {
	data := map[string]interface{}{
		"sequence":  e.Sequence,
		"timestamp": e.Timestamp,
		"payload":   e.Payload,
		"metadata":  cloneMetadata(e.Metadata),
	}
	if reason != "" {
		data["reason"] = reason
	}
	return data
}
