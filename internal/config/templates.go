package config

import (
	"sort"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
)

// Template is a named starting configuration for `mosaic init`.
type Template struct {
	Name        string
	Description string
	build       func(cfg *Config)
}

var templates = map[string]Template{
	"default": {
		Name:        "default",
		Description: "file snapshots, capacity 100",
		build:       func(cfg *Config) {},
	},
	"discovery": {
		Name:        "discovery",
		Description: "small capacity-5 log of discoveries with eviction logging",
		build: func(cfg *Config) {
			cfg.Store.Capacity = 5
			cfg.Hooks = HooksConfig{
				Enabled: true,
				Hooks: []HookConfig{{
					Name:     "log-evictions",
					Type:     "log",
					Events:   []string{"entry.evicted", "store.cleared"},
					Blocking: true,
					Level:    "info",
				}},
			}
		},
	},
	"archive": {
		Name:        "archive",
		Description: "sqlite revision history in JSON lines with metrics export",
		build: func(cfg *Config) {
			cfg.Store.Capacity = 1000
			cfg.Snapshot.Driver = "sqlite"
			cfg.Snapshot.Format = "jsonl"
			cfg.Snapshot.Retain = 10
			cfg.Metrics.Path = ".mosaic/metrics.jsonl"
		},
	},
}

// Templates returns the available init templates sorted by name.
func Templates() []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromTemplate builds a validated config for project from the named template.
func FromTemplate(template, project string) (*Config, error) {
	t, ok := templates[template]
	if !ok {
		return nil, mosaicerrors.Newf(mosaicerrors.CodeConfigInvalid, "unknown template %q", template).
			WithSuggestion("run `mosaic init --list` to see available templates")
	}

	cfg := &Config{Name: project}
	t.build(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
