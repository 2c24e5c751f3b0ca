package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// database/sql driver names registered by the imported SQLite drivers.
const (
	sqlDriverCgo  = "sqlite3" // mattn/go-sqlite3
	sqlDriverPure = "sqlite"  // modernc.org/sqlite
)

// SQLiteBackend keeps every snapshot revision in a SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	retain int // revisions kept per name; 0 keeps all
}

// NewSQLiteBackend opens (or creates) the SQLite database at path using the
// cgo driver.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	return openSQLite(sqlDriverCgo, path)
}

// NewPureSQLiteBackend is NewSQLiteBackend on the pure Go driver, for builds
// without cgo. Both drivers read and write the same schema.
func NewPureSQLiteBackend(path string) (*SQLiteBackend, error) {
	return openSQLite(sqlDriverPure, path)
}

func openSQLite(driver, path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioFailure("failed to create directory", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, ioFailure("failed to open snapshot database", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, ioFailure("failed to migrate snapshot database", err)
	}

	return b, nil
}

// SetRetention limits how many revisions are kept per snapshot name.
func (b *SQLiteBackend) SetRetention(n int) {
	b.retain = n
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL -- unix nanoseconds
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_name ON snapshots(name, created_at);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Write inserts a new revision and prunes old ones beyond the retention limit.
func (b *SQLiteBackend) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return ioFailure("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO snapshots (id, name, data, size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), name, data, len(data), time.Now().UnixNano())
	if err != nil {
		return ioFailure(fmt.Sprintf("failed to save snapshot %q", name), err)
	}

	if b.retain > 0 {
		_, err = tx.Exec(`
			DELETE FROM snapshots
			WHERE name = ? AND id NOT IN (
				SELECT id FROM snapshots
				WHERE name = ?
				ORDER BY created_at DESC, rowid DESC
				LIMIT ?
			)
		`, name, name, b.retain)
		if err != nil {
			return ioFailure(fmt.Sprintf("failed to prune snapshot %q", name), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ioFailure("failed to commit snapshot", err)
	}
	return nil
}

// Read returns the newest revision of name.
func (b *SQLiteBackend) Read(name string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(`
		SELECT data FROM snapshots
		WHERE name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, ioFailure(fmt.Sprintf("failed to read snapshot %q", name), err)
	}
	return data, nil
}

// History lists revisions newest first.
func (b *SQLiteBackend) History(name string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := b.db.Query(`
		SELECT id, name, size, created_at FROM snapshots
		WHERE name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, ioFailure("failed to list snapshots", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var (
			r       Revision
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Size, &created); err != nil {
			return nil, ioFailure("failed to scan snapshot row", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		revs = append(revs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ioFailure("failed to list snapshots", err)
	}
	return revs, nil
}

// Delete removes every revision of name.
func (b *SQLiteBackend) Delete(name string) error {
	if _, err := b.db.Exec("DELETE FROM snapshots WHERE name = ?", name); err != nil {
		return ioFailure(fmt.Sprintf("failed to delete snapshot %q", name), err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
