// Package mosaic provides a public API for the mosaic bounded record store.
//
// Example usage:
//
//	import "github.com/cadre-oss/mosaic/pkg/mosaic"
//
//	// An in-process store
//	s, err := mosaic.New[string](5)
//	s.Insert("Found pattern A", map[string]any{"category": "Physics"})
//	physics := s.Retrieve(mosaic.MetadataEquals[string]("category", "Physics"))
//
//	// A store persisted according to ./mosaic.yaml
//	m, err := mosaic.Open(".")
//	defer m.Close()
//	m.Insert("Found pattern B", nil)
//	err = m.Save()
package mosaic

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cadre-oss/mosaic/internal/config"
	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/persist"
	"github.com/cadre-oss/mosaic/internal/query"
)

type (
	// Store is a bounded FIFO record store.
	Store[T any] = memory.Store[T]
	// Entry is one stored record.
	Entry[T any] = memory.Entry[T]
	// Predicate filters entries for Retrieve.
	Predicate[T any] = memory.Predicate[T]
	// Matcher selects entries for Remove.
	Matcher[T any] = memory.Matcher[T]
	// Option configures a Store.
	Option = memory.Option
	// Format is a snapshot encoding.
	Format = memory.Format
)

const (
	FormatJSON  = memory.FormatJSON
	FormatJSONL = memory.FormatJSONL
)

// Errors matchable with errors.Is.
var (
	ErrInvalidArgument  = mosaicerrors.ErrInvalidArgument
	ErrCorruptData      = mosaicerrors.ErrCorruptData
	ErrIOFailure        = mosaicerrors.ErrIOFailure
	ErrSnapshotNotFound = mosaicerrors.ErrSnapshotNotFound
)

// New creates a store holding at most capacity entries.
func New[T any](capacity int, opts ...Option) (*Store[T], error) {
	return memory.New[T](capacity, opts...)
}

// MatchPayload selects entries whose payload equals p.
func MatchPayload[T any](p T) Matcher[T] {
	return memory.MatchPayload(p)
}

// MatchMetadata selects entries whose metadata key equals value.
func MatchMetadata[T any](key string, value any) Matcher[T] {
	return memory.MatchMetadata[T](key, value)
}

// MetadataEquals matches entries whose metadata key equals value.
func MetadataEquals[T any](key string, value any) Predicate[T] {
	return query.MetadataEquals[T](key, value)
}

// Where compiles a boolean expression over sequence, timestamp, payload and
// metadata into a predicate.
func Where[T any](expr string) (Predicate[T], error) {
	return query.Expr[T](expr)
}

// Glob matches string payloads against a glob pattern.
func Glob(pattern string) (Predicate[string], error) {
	return query.Glob(pattern)
}

// Memory is a string store restored from, and saved to, the snapshot
// backend configured in a project's mosaic.yaml.
type Memory struct {
	*memory.Store[string]
	persister *persist.Persister
	name      string
}

// Open loads dir/mosaic.yaml (defaults when absent) and restores the
// configured snapshot. Relative snapshot paths resolve against dir.
func Open(dir string) (*Memory, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.Snapshot.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	backend, err := persist.NewBackend(cfg.Snapshot.Driver, path, cfg.Snapshot.Retain)
	if err != nil {
		return nil, err
	}

	format, err := memory.ParseFormat(cfg.Snapshot.Format)
	if err != nil {
		backend.Close()
		return nil, err
	}

	store, err := memory.New[string](cfg.Store.Capacity)
	if err != nil {
		backend.Close()
		return nil, err
	}

	m := &Memory{
		Store:     store,
		persister: persist.NewPersister(backend, persist.WithFormat(format)),
		name:      cfg.Snapshot.Name,
	}
	if err := m.persister.Load(store, m.name, false); err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		backend.Close()
		return nil, err
	}
	return m, nil
}

// Save writes the current entries as the newest snapshot revision.
func (m *Memory) Save() error {
	return m.persister.Save(m.Store, m.name)
}

// Close releases the snapshot backend without saving.
func (m *Memory) Close() error {
	return m.persister.Backend().Close()
}
