package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := writeConfig(t, `
name: discoveries
version: "2.0"
store:
  capacity: 5
snapshot:
  driver: sqlite
  path: data/mosaic.db
  name: lab
  format: jsonl
  retain: 3
logging:
  level: debug
  format: json
hooks:
  enabled: true
  hooks:
    - name: audit
      type: log
      events: [entry.evicted]
      level: info
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "discoveries" {
		t.Errorf("expected name discoveries, got %s", cfg.Name)
	}
	if cfg.Store.Capacity != 5 {
		t.Errorf("expected capacity 5, got %d", cfg.Store.Capacity)
	}
	if cfg.Snapshot.Driver != "sqlite" || cfg.Snapshot.Path != "data/mosaic.db" {
		t.Errorf("unexpected snapshot config: %+v", cfg.Snapshot)
	}
	if cfg.Snapshot.Name != "lab" || cfg.Snapshot.Format != "jsonl" || cfg.Snapshot.Retain != 3 {
		t.Errorf("unexpected snapshot config: %+v", cfg.Snapshot)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if len(cfg.Hooks.Hooks) != 1 || cfg.Hooks.Hooks[0].Events[0] != "entry.evicted" {
		t.Errorf("unexpected hooks: %+v", cfg.Hooks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "mosaic" {
		t.Errorf("expected default name, got %s", cfg.Name)
	}
	if cfg.Store.Capacity != 100 {
		t.Errorf("expected default capacity 100, got %d", cfg.Store.Capacity)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, mosaicerrors.ErrIOFailure) {
		t.Errorf("expected IO_FAILURE, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, `{{{invalid yaml content`)

	_, err := Load(dir)
	if mosaicerrors.AsCode(err) != mosaicerrors.CodeConfigInvalid {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestLoad_ApplyDefaults(t *testing.T) {
	dir := writeConfig(t, "name: minimal\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Capacity != 100 {
		t.Errorf("expected default capacity, got %d", cfg.Store.Capacity)
	}
	if cfg.Snapshot.Driver != "file" || cfg.Snapshot.Path != ".mosaic/snapshots" {
		t.Errorf("unexpected snapshot defaults: %+v", cfg.Snapshot)
	}
	if cfg.Snapshot.Name != "default" || cfg.Snapshot.Format != "json" {
		t.Errorf("unexpected snapshot defaults: %+v", cfg.Snapshot)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_SQLiteDefaultPath(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite-pure"} {
		dir := writeConfig(t, "snapshot:\n  driver: "+driver+"\n")

		cfg, err := Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Snapshot.Path != ".mosaic/mosaic.db" {
			t.Errorf("%s: expected database default path, got %s", driver, cfg.Snapshot.Path)
		}
	}
}

func TestLoad_EnvInterpolation(t *testing.T) {
	dir := writeConfig(t, `
name: ${TEST_MOSAIC_PROJECT}
snapshot:
  path: ${env.TEST_MOSAIC_DIR}
`)
	t.Setenv("TEST_MOSAIC_PROJECT", "env-project")
	t.Setenv("TEST_MOSAIC_DIR", "/var/lib/mosaic")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "env-project" {
		t.Errorf("expected env-project, got %s", cfg.Name)
	}
	if cfg.Snapshot.Path != "/var/lib/mosaic" {
		t.Errorf("expected /var/lib/mosaic, got %s", cfg.Snapshot.Path)
	}
}

func TestLoad_EnvInterpolation_Unset(t *testing.T) {
	dir := writeConfig(t, "name: ${UNSET_MOSAIC_VAR}\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "${UNSET_MOSAIC_VAR}" {
		t.Errorf("expected uninterpolated value, got %s", cfg.Name)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg, err := FromTemplate("archive", "roundtrip")
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Name != "roundtrip" || got.Snapshot.Driver != "sqlite" || got.Snapshot.Retain != 10 {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestFromTemplate(t *testing.T) {
	for _, tmpl := range Templates() {
		t.Run(tmpl.Name, func(t *testing.T) {
			cfg, err := FromTemplate(tmpl.Name, "p")
			if err != nil {
				t.Fatalf("FromTemplate(%s): %v", tmpl.Name, err)
			}
			if cfg.Name != "p" {
				t.Errorf("name = %s", cfg.Name)
			}
		})
	}

	cfg, _ := FromTemplate("discovery", "demo")
	if cfg.Store.Capacity != 5 || !cfg.Hooks.Enabled {
		t.Errorf("discovery template = %+v", cfg)
	}

	if _, err := FromTemplate("nope", "p"); mosaicerrors.AsCode(err) != mosaicerrors.CodeConfigInvalid {
		t.Errorf("unknown template error = %v", err)
	}
}
