package memory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
)

// Format is a snapshot encoding.
type Format string

const (
	// FormatJSON encodes the snapshot as a single JSON array.
	FormatJSON Format = "json"
	// FormatJSONL encodes one JSON record per line.
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a format name. Empty means FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatJSONL:
		return FormatJSONL, nil
	}
	return "", mosaicerrors.Newf(mosaicerrors.CodeInvalidArgument,
		"unsupported snapshot format %q (valid: json, jsonl)", s)
}

type snapshotRecord[T any] struct {
	Sequence  uint64         `json:"sequence"`
	Timestamp string         `json:"timestamp"`
	Payload   T              `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// wireRecord is the lenient decoding shape: unknown fields are ignored and
// absence of sequence or payload is detectable.
type wireRecord struct {
	Sequence  *uint64         `json:"sequence"`
	Timestamp *string         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  map[string]any  `json:"metadata"`
}

// decoded is a validated record. hasSeq is false when the snapshot did not
// record a sequence.
type decoded[T any] struct {
	entry  Entry[T]
	hasSeq bool
}

// ExportSnapshot serializes every entry as a JSON array.
func (s *Store[T]) ExportSnapshot() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Export(&buf, FormatJSON); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Export writes every entry to w in the given format. Failures of w are
// reported as IO_FAILURE.
func (s *Store[T]) Export(w io.Writer, format Format) error {
	format, err := ParseFormat(string(format))
	if err != nil {
		return err
	}

	entries := s.Retrieve(nil)
	records := make([]snapshotRecord[T], len(entries))
	for i, e := range entries {
		records[i] = snapshotRecord[T]{
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Payload:   e.Payload,
			Metadata:  e.Metadata,
		}
	}

	data, err := encodeRecords(records, format)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, "write snapshot", err)
	}

	s.notify(event.SnapshotExported, map[string]interface{}{
		"count":  len(records),
		"format": string(format),
		"bytes":  len(data),
	})
	return nil
}

func encodeRecords[T any](records []snapshotRecord[T], format Format) ([]byte, error) {
	if format == FormatJSONL {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
		return buf.Bytes(), nil
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ImportSnapshot loads entries from data, auto-detecting JSON or JSON lines.
//
// Without merge the store is replaced by the snapshot and sequence numbering
// restarts after the highest recorded sequence. With merge the records are
// appended in file order under the normal eviction rule, keeping their
// recorded sequence and timestamp.
//
// The whole snapshot is validated before the store is touched; a malformed
// snapshot returns CORRUPT_DATA and leaves the store unchanged.
func (s *Store[T]) ImportSnapshot(data []byte, merge bool) error {
	records, err := decodeRecords[T](data)
	if err != nil {
		return err
	}
	if !merge {
		if err := assignSequences(records); err != nil {
			return err
		}
	}

	var evicted []Entry[T]
	s.mu.Lock()
	if merge {
		evicted = s.mergeLocked(records)
	} else {
		evicted = s.replaceLocked(records)
	}
	count := len(s.entries)
	s.mu.Unlock()

	for _, e := range evicted {
		s.notify(event.EntryEvicted, entryData(e, "import"))
	}
	s.notify(event.SnapshotImported, map[string]interface{}{
		"records": len(records),
		"count":   count,
		"merge":   merge,
		"evicted": len(evicted),
	})
	return nil
}

// Import reads a snapshot from r and applies it like ImportSnapshot.
// Failures of r are reported as IO_FAILURE.
func (s *Store[T]) Import(r io.Reader, merge bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, "read snapshot", err)
	}
	return s.ImportSnapshot(data, merge)
}

func (s *Store[T]) replaceLocked(records []decoded[T]) []Entry[T] {
	var evicted []Entry[T]
	clear(s.entries)
	s.entries = s.entries[:0]
	s.next = 0
	for _, r := range records {
		evicted = append(evicted, s.appendLocked(r.entry)...)
		s.next = r.entry.Sequence + 1
	}
	return evicted
}

func (s *Store[T]) mergeLocked(records []decoded[T]) []Entry[T] {
	var evicted []Entry[T]
	for _, r := range records {
		e := r.entry
		if !r.hasSeq {
			e.Sequence = s.next
		}
		if e.Sequence >= s.next {
			s.next = e.Sequence + 1
		}
		evicted = append(evicted, s.appendLocked(e)...)
	}
	return evicted
}

// assignSequences numbers records that did not record a sequence (previous
// plus one, starting at zero) and checks that the result strictly increases.
func assignSequences[T any](records []decoded[T]) error {
	for i := range records {
		if !records[i].hasSeq {
			if i == 0 {
				records[i].entry.Sequence = 0
			} else {
				records[i].entry.Sequence = records[i-1].entry.Sequence + 1
			}
			continue
		}
		if i > 0 && records[i].entry.Sequence <= records[i-1].entry.Sequence {
			return corrupt(i, fmt.Errorf("sequence %d does not follow %d",
				records[i].entry.Sequence, records[i-1].entry.Sequence))
		}
	}
	return nil
}

func decodeRecords[T any](data []byte) ([]decoded[T], error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		// An empty JSON-lines snapshot holds zero records.
		return nil, nil
	}

	var raw []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, mosaicerrors.Wrap(mosaicerrors.CodeCorruptData, "snapshot is not a JSON array", err)
		}
	} else {
		var err error
		raw, err = splitLines(trimmed)
		if err != nil {
			return nil, err
		}
	}

	records := make([]decoded[T], 0, len(raw))
	var lastRecorded *uint64
	for i, msg := range raw {
		rec, err := decodeRecord[T](msg)
		if err != nil {
			return nil, corrupt(i, err)
		}
		if rec.hasSeq {
			if lastRecorded != nil && rec.entry.Sequence <= *lastRecorded {
				return nil, corrupt(i, fmt.Errorf("sequence %d does not follow %d",
					rec.entry.Sequence, *lastRecorded))
			}
			seq := rec.entry.Sequence
			lastRecorded = &seq
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitLines(data []byte) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, mosaicerrors.Newf(mosaicerrors.CodeCorruptData,
				"line %d is not valid JSON", line)
		}
		raw = append(raw, json.RawMessage(bytes.Clone(text)))
	}
	if err := sc.Err(); err != nil {
		return nil, mosaicerrors.Wrap(mosaicerrors.CodeCorruptData, "scan snapshot lines", err)
	}
	return raw, nil
}

func decodeRecord[T any](msg json.RawMessage) (decoded[T], error) {
	var out decoded[T]

	if t := bytes.TrimSpace(msg); len(t) == 0 || t[0] != '{' {
		return out, fmt.Errorf("record is not an object")
	}

	var w wireRecord
	if err := json.Unmarshal(msg, &w); err != nil {
		return out, err
	}
	if w.Timestamp == nil {
		return out, fmt.Errorf("missing timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
	if err != nil {
		return out, fmt.Errorf("invalid timestamp: %w", err)
	}
	if w.Payload == nil {
		return out, fmt.Errorf("missing payload")
	}
	var payload T
	if err := json.Unmarshal(w.Payload, &payload); err != nil {
		return out, fmt.Errorf("invalid payload: %w", err)
	}

	out.entry = Entry[T]{
		Timestamp: ts.UTC(),
		Payload:   payload,
		Metadata:  cloneMetadata(w.Metadata),
	}
	if w.Sequence != nil {
		out.entry.Sequence = *w.Sequence
		out.hasSeq = true
	}
	return out, nil
}

func corrupt(index int, err error) error {
	return mosaicerrors.Wrap(mosaicerrors.CodeCorruptData,
		fmt.Sprintf("record %d is malformed", index), err).
		WithSuggestion("re-export the snapshot or repair the record")
}
