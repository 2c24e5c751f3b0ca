package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/memory"
)

// Snapshotter is the part of a store the persister needs. *memory.Store
// satisfies it for any payload type.
type Snapshotter interface {
	Export(w io.Writer, format memory.Format) error
	Import(r io.Reader, merge bool) error
	NextSequence() uint64
	AdvanceSequence(next uint64)
}

// sequenceSuffix names the revision holding a snapshot's sequence
// high-water mark. Sequences survive reopening even after the newest
// entries were removed, evicted or cleared.
const sequenceSuffix = ".sequence"

// SequenceName returns the backend name under which the high-water mark of
// snapshot name is kept.
func SequenceName(name string) string {
	return name + sequenceSuffix
}

// Persister saves and restores store snapshots through a Backend.
type Persister struct {
	backend  Backend
	format   memory.Format
	notifier memory.Notifier
	logger   event.Logger
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithFormat selects the encoding used by Save. Load auto-detects.
func WithFormat(f memory.Format) PersisterOption {
	return func(p *Persister) { p.format = f }
}

// WithEvents reports save and load failures as snapshot.failed events.
func WithEvents(n memory.Notifier) PersisterOption {
	return func(p *Persister) { p.notifier = n }
}

// WithPersisterLogger sets the logger for failed notifications.
func WithPersisterLogger(l event.Logger) PersisterOption {
	return func(p *Persister) { p.logger = l }
}

// NewPersister creates a persister over backend.
func NewPersister(backend Backend, opts ...PersisterOption) *Persister {
	p := &Persister{backend: backend, format: memory.FormatJSON}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Backend returns the underlying backend.
func (p *Persister) Backend() Backend {
	return p.backend
}

// Save exports s and writes it as the newest revision of name, followed by
// its sequence high-water mark.
func (p *Persister) Save(s Snapshotter, name string) error {
	var buf bytes.Buffer
	if err := s.Export(&buf, p.format); err != nil {
		return p.fail("save", name, err)
	}
	next := s.NextSequence()
	if err := p.backend.Write(name, buf.Bytes()); err != nil {
		return p.fail("save", name, err)
	}
	mark := strconv.FormatUint(next, 10) + "\n"
	if err := p.backend.Write(SequenceName(name), []byte(mark)); err != nil {
		return p.fail("save", name, err)
	}
	return nil
}

// Load reads the newest revision of name into s and restores its sequence
// high-water mark. A missing snapshot returns SNAPSHOT_NOT_FOUND and leaves
// s untouched. A missing mark is not an error: numbering then follows the
// recorded sequences.
func (p *Persister) Load(s Snapshotter, name string, merge bool) error {
	data, err := p.backend.Read(name)
	if err != nil {
		return p.fail("load", name, err)
	}
	next, err := p.readSequence(name)
	if err != nil {
		return p.fail("load", name, err)
	}
	if err := s.Import(bytes.NewReader(data), merge); err != nil {
		return p.fail("load", name, err)
	}
	s.AdvanceSequence(next)
	return nil
}

func (p *Persister) readSequence(name string) (uint64, error) {
	data, err := p.backend.Read(SequenceName(name))
	if errors.Is(err, mosaicerrors.ErrSnapshotNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	next, err := strconv.ParseUint(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return 0, mosaicerrors.Wrap(mosaicerrors.CodeCorruptData,
			fmt.Sprintf("sequence mark for %q is malformed", name), err)
	}
	return next, nil
}

func (p *Persister) fail(op, name string, err error) error {
	if p.notifier != nil {
		ev := event.NewEvent(event.SnapshotFailed, map[string]interface{}{
			"operation": op,
			"name":      name,
			"error":     err.Error(),
		})
		if nerr := p.notifier.Emit(ev); nerr != nil && p.logger != nil {
			p.logger.Warn("snapshot failure notification failed", "error", nerr)
		}
	}
	return err
}
