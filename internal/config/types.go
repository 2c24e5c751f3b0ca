package config

// Config represents the project configuration (mosaic.yaml).
type Config struct {
	Name     string         `yaml:"name" json:"name"`
	Version  string         `yaml:"version" json:"version"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Hooks    HooksConfig    `yaml:"hooks" json:"hooks"`
}

// StoreConfig sizes the bounded store.
type StoreConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// SnapshotConfig configures where the store is persisted between commands.
type SnapshotConfig struct {
	Driver string `yaml:"driver" json:"driver"` // memory, file, sqlite, sqlite-pure
	Path   string `yaml:"path" json:"path"`     // directory (file) or database path (sqlite)
	Name   string `yaml:"name" json:"name"`     // snapshot name within the backend
	Format string `yaml:"format" json:"format"` // json, jsonl
	Retain int    `yaml:"retain" json:"retain"` // revisions kept per name, 0 keeps all
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// MetricsConfig enables the JSONL metrics exporter.
type MetricsConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// HooksConfig configures store event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log
	Events   []string `yaml:"events" json:"events"` // event types to match, empty matches all
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Timeout  string   `yaml:"timeout,omitempty" json:"timeout,omitempty"` // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
}
