package cli

import (
	"fmt"
	"time"

	"github.com/cadre-oss/mosaic/internal/config"
	"github.com/cadre-oss/mosaic/internal/event"
)

// buildHooks turns hook configuration into bus hooks.
func buildHooks(cfgs []config.HookConfig, logger event.Logger) ([]event.Hook, error) {
	hooks := make([]event.Hook, 0, len(cfgs))
	for _, hc := range cfgs {
		events := make([]event.EventType, len(hc.Events))
		for i, e := range hc.Events {
			events[i] = event.EventType(e)
		}

		switch hc.Type {
		case "shell":
			hooks = append(hooks, event.NewShellHook(hc.Name, hc.Command, events, hc.Blocking))
		case "webhook":
			h := event.NewWebhookHook(hc.Name, hc.URL, events, hc.Blocking)
			if hc.Timeout != "" {
				d, err := time.ParseDuration(hc.Timeout)
				if err != nil {
					return nil, fmt.Errorf("hook %s: invalid timeout: %w", hc.Name, err)
				}
				h.WithTimeout(d)
			}
			hooks = append(hooks, h)
		case "log":
			hooks = append(hooks, event.NewLogHook(hc.Name, events, logger, hc.Level))
		default:
			return nil, fmt.Errorf("hook %s: unsupported type %q", hc.Name, hc.Type)
		}
	}
	return hooks, nil
}
