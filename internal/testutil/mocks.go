package testutil

import (
	"fmt"
	"sync"

	"github.com/cadre-oss/mosaic/internal/config"
	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/persist"
	"github.com/cadre-oss/mosaic/internal/telemetry"
)

// MockBackend wraps a memory backend and can be told to fail.
type MockBackend struct {
	*persist.MemoryBackend

	mu        sync.Mutex
	FailWrite bool
	FailRead  bool
	FailErr   error
	Writes    int
	Reads     int
}

// NewMockBackend returns a working MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{MemoryBackend: persist.NewMemoryBackend()}
}

func (m *MockBackend) failure(op string) error {
	if m.FailErr != nil {
		return m.FailErr
	}
	return mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, op, fmt.Errorf("mock backend error"))
}

func (m *MockBackend) Write(name string, data []byte) error {
	m.mu.Lock()
	m.Writes++
	fail := m.FailWrite
	m.mu.Unlock()

	if fail {
		return m.failure("write snapshot")
	}
	return m.MemoryBackend.Write(name, data)
}

func (m *MockBackend) Read(name string) ([]byte, error) {
	m.mu.Lock()
	m.Reads++
	fail := m.FailRead
	m.mu.Unlock()

	if fail {
		return nil, m.failure("read snapshot")
	}
	return m.MemoryBackend.Read(name)
}

// SetFailWrite toggles write failures (thread-safe).
func (m *MockBackend) SetFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrite = fail
}

// WriteCount returns the number of Write calls made (thread-safe).
func (m *MockBackend) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes
}

// TestLogger returns a logger suitable for tests (verbose, no file output).
func TestLogger() *telemetry.Logger {
	return telemetry.NewLogger(true)
}

// TestConfig returns a minimal config for testing.
func TestConfig() *config.Config {
	return &config.Config{
		Name:    "test-project",
		Version: "1.0",
		Store: config.StoreConfig{
			Capacity: 5,
		},
		Snapshot: config.SnapshotConfig{
			Driver: "memory",
			Name:   "default",
			Format: "json",
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}
