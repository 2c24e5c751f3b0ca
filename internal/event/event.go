package event

import "time"

// EventType identifies the kind of store event.
type EventType string

const (
	// Entry lifecycle
	EntryInserted EventType = "entry.inserted"
	EntryEvicted  EventType = "entry.evicted"
	EntryRemoved  EventType = "entry.removed"

	// Store lifecycle
	StoreCleared EventType = "store.cleared"

	// Snapshots
	SnapshotExported EventType = "snapshot.exported"
	SnapshotImported EventType = "snapshot.imported"
	SnapshotFailed   EventType = "snapshot.failed"
)

// AllTypes lists every event type the store and persister emit.
var AllTypes = []EventType{
	EntryInserted,
	EntryEvicted,
	EntryRemoved,
	StoreCleared,
	SnapshotExported,
	SnapshotImported,
	SnapshotFailed,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event carries data about a store occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}
