package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const snapshotExt = ".snapshot"

// FileBackend keeps one file per snapshot name in a directory. Writes go to a
// temporary file that is renamed into place, so readers never observe a
// partially written snapshot.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioFailure("failed to create snapshot directory", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(name string) string {
	return filepath.Join(b.dir, name+snapshotExt)
}

// Write atomically replaces the snapshot file.
func (b *FileBackend) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return ioFailure("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ioFailure(fmt.Sprintf("failed to write snapshot %q", name), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ioFailure(fmt.Sprintf("failed to sync snapshot %q", name), err)
	}
	if err := tmp.Close(); err != nil {
		return ioFailure(fmt.Sprintf("failed to close snapshot %q", name), err)
	}
	if err := os.Rename(tmpName, b.path(name)); err != nil {
		return ioFailure(fmt.Sprintf("failed to replace snapshot %q", name), err)
	}
	return nil
}

// Read returns the snapshot file contents.
func (b *FileBackend) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, ioFailure(fmt.Sprintf("failed to read snapshot %q", name), err)
	}
	return data, nil
}

// History returns the single current revision, if any. The file driver does
// not keep older revisions.
func (b *FileBackend) History(name string, limit int) ([]Revision, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	info, err := os.Stat(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioFailure(fmt.Sprintf("failed to stat snapshot %q", name), err)
	}
	return []Revision{{
		ID:        info.Name(),
		Name:      name,
		Size:      int(info.Size()),
		CreatedAt: info.ModTime().UTC(),
	}}, nil
}

// Delete removes the snapshot file. Missing files are not an error.
func (b *FileBackend) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(b.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioFailure(fmt.Sprintf("failed to delete snapshot %q", name), err)
	}
	return nil
}

// Close is a no-op for files.
func (b *FileBackend) Close() error {
	return nil
}
