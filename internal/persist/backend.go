// Package persist moves snapshot bytes between a store and durable storage.
package persist

import (
	"strings"
	"time"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
)

// Backend stores named snapshot blobs.
type Backend interface {
	// Write stores data as the newest revision of name.
	Write(name string, data []byte) error

	// Read returns the newest revision of name, or SNAPSHOT_NOT_FOUND.
	Read(name string) ([]byte, error)

	// History returns up to limit revisions of name, newest first.
	History(name string, limit int) ([]Revision, error)

	// Delete removes every revision of name.
	Delete(name string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Revision describes one stored snapshot.
type Revision struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBackend opens the backend for driver. path is a directory for the file
// driver and a database file for the sqlite drivers; it is ignored for memory. retain
// caps the revisions kept per name by drivers that keep history.
func NewBackend(driver, path string, retain int) (Backend, error) {
	switch driver {
	case "memory", "":
		b := NewMemoryBackend()
		b.SetRetention(retain)
		return b, nil
	case "file":
		return NewFileBackend(path)
	case "sqlite", "sqlite-pure":
		open := NewSQLiteBackend
		if driver == "sqlite-pure" {
			open = NewPureSQLiteBackend
		}
		b, err := open(path)
		if err != nil {
			return nil, err
		}
		b.SetRetention(retain)
		return b, nil
	default:
		return nil, mosaicerrors.Newf(mosaicerrors.CodeConfigInvalid, "unsupported snapshot driver: %s", driver).
			WithSuggestion("use one of: memory, file, sqlite, sqlite-pure")
	}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return mosaicerrors.Newf(mosaicerrors.CodeInvalidArgument, "invalid snapshot name %q", name)
	}
	return nil
}

func notFound(name string) error {
	return mosaicerrors.Newf(mosaicerrors.CodeSnapshotNotFound, "snapshot %q not found", name).
		WithSuggestion("save a snapshot first or check the snapshot name")
}

func ioFailure(message string, err error) error {
	return mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, message, err)
}
