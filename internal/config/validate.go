package config

import (
	"fmt"
	"strings"
	"time"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
)

// Validate checks a configuration and reports every problem at once as a
// CONFIG_INVALID error.
func Validate(cfg *Config) error {
	var errors []string

	if cfg.Store.Capacity <= 0 {
		errors = append(errors, fmt.Sprintf("store.capacity must be positive, got %d", cfg.Store.Capacity))
	}

	validDrivers := map[string]bool{
		"memory":      true,
		"file":        true,
		"sqlite":      true,
		"sqlite-pure": true,
	}
	if !validDrivers[cfg.Snapshot.Driver] {
		errors = append(errors, fmt.Sprintf("invalid snapshot driver: %s", cfg.Snapshot.Driver))
	}

	validFormats := map[string]bool{
		"json":  true,
		"jsonl": true,
	}
	if !validFormats[cfg.Snapshot.Format] {
		errors = append(errors, fmt.Sprintf("invalid snapshot format: %s", cfg.Snapshot.Format))
	}
	if strings.ContainsAny(cfg.Snapshot.Name, `/\`) {
		errors = append(errors, fmt.Sprintf("snapshot name %q must not contain path separators", cfg.Snapshot.Name))
	}
	if cfg.Snapshot.Retain < 0 {
		errors = append(errors, "snapshot.retain must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		errors = append(errors, fmt.Sprintf("invalid logging level: %s", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid logging format: %s", cfg.Logging.Format))
	}

	errors = append(errors, validateHooks(cfg.Hooks.Hooks)...)

	if len(errors) > 0 {
		return mosaicerrors.New(mosaicerrors.CodeConfigInvalid,
			"config validation failed: "+strings.Join(errors, "; ")).
			WithSuggestion("fix the listed fields in mosaic.yaml")
	}
	return nil
}

func validateHooks(hooks []HookConfig) []string {
	var errors []string
	names := make(map[string]bool)

	for i, h := range hooks {
		label := h.Name
		if label == "" {
			errors = append(errors, fmt.Sprintf("hook %d: name is required", i))
			label = fmt.Sprintf("#%d", i)
		} else if names[h.Name] {
			errors = append(errors, fmt.Sprintf("duplicate hook name: %s", h.Name))
		}
		names[h.Name] = true

		switch h.Type {
		case "shell":
			if h.Command == "" {
				errors = append(errors, fmt.Sprintf("hook %s: shell hook requires a command", label))
			}
		case "webhook":
			if h.URL == "" {
				errors = append(errors, fmt.Sprintf("hook %s: webhook hook requires a url", label))
			}
			if h.Timeout != "" {
				if _, err := time.ParseDuration(h.Timeout); err != nil {
					errors = append(errors, fmt.Sprintf("hook %s: invalid timeout %q: %s", label, h.Timeout, err))
				}
			}
		case "log":
			switch h.Level {
			case "", "debug", "info", "warn":
			default:
				errors = append(errors, fmt.Sprintf("hook %s: invalid log level %s", label, h.Level))
			}
		default:
			errors = append(errors, fmt.Sprintf("hook %s: invalid type %q (must be shell, webhook, or log)", label, h.Type))
		}

		for _, e := range h.Events {
			if !event.EventType(e).Valid() {
				errors = append(errors, fmt.Sprintf("hook %s: unknown event %q", label, e))
			}
		}
	}
	return errors
}
