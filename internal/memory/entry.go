package memory

import (
	"maps"
	"reflect"
	"time"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
)

// Entry is one stored record. Entries are values; the store hands out copies
// and never exposes its own metadata maps.
type Entry[T any] struct {
	Sequence  uint64         `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   T              `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// Meta returns the metadata value stored under key.
func (e Entry[T]) Meta(key string) (any, bool) {
	v, ok := e.Metadata[key]
	return v, ok
}

func (e Entry[T]) clone() Entry[T] {
	e.Metadata = cloneMetadata(e.Metadata)
	return e
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

// Predicate is a pure test over an entry, used for filtered retrieval.
// A nil Predicate matches every entry.
type Predicate[T any] func(Entry[T]) bool

// Matcher selects entries for removal. An entry matches when its payload
// equals Payload, or when its metadata holds MetadataValue under MetadataKey.
// The metadata criterion only applies when both key and value are set.
type Matcher[T any] struct {
	Payload       *T
	MetadataKey   string
	MetadataValue any
}

// MatchPayload matches entries whose payload equals p.
func MatchPayload[T any](p T) Matcher[T] {
	return Matcher[T]{Payload: &p}
}

// MatchMetadata matches entries whose metadata holds value under key.
func MatchMetadata[T any](key string, value any) Matcher[T] {
	return Matcher[T]{MetadataKey: key, MetadataValue: value}
}

func (m Matcher[T]) hasMetadata() bool {
	return m.MetadataKey != "" && m.MetadataValue != nil
}

func (m Matcher[T]) validate() error {
	if m.Payload == nil && !m.hasMetadata() {
		return mosaicerrors.New(mosaicerrors.CodeInvalidArgument,
			"matcher needs a payload or a metadata key and value").
			WithSuggestion("pass a payload, or both a metadata key and value")
	}
	return nil
}

func (m Matcher[T]) matches(e Entry[T]) bool {
	if m.Payload != nil && reflect.DeepEqual(e.Payload, *m.Payload) {
		return true
	}
	if m.hasMetadata() {
		if v, ok := e.Metadata[m.MetadataKey]; ok && ValuesEqual(v, m.MetadataValue) {
			return true
		}
	}
	return false
}

// ValuesEqual compares two opaque values. Numbers compare by value regardless
// of their Go type, so metadata decoded from a snapshot (float64) still
// matches the int a caller originally stored.
func ValuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	return okA && okB && fa == fb
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
