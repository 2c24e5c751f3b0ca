package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"
)

// Hook processes store events.
type Hook interface {
	// Name returns the hook's identifier.
	Name() string
	// Matches returns true if the hook should handle this event type.
	Matches(t EventType) bool
	// IsBlocking returns true if emitters should wait for this hook.
	IsBlocking() bool
	// Handle processes an event. For blocking hooks, an error is returned to the emitter.
	Handle(ev Event) error
}

// baseHook provides shared fields for all hook implementations.
type baseHook struct {
	name     string
	events   []EventType
	blocking bool
}

func (h *baseHook) Name() string     { return h.name }
func (h *baseHook) IsBlocking() bool { return h.blocking }
func (h *baseHook) Matches(t EventType) bool {
	if len(h.events) == 0 {
		return true
	}
	for _, ev := range h.events {
		if ev == t {
			return true
		}
	}
	return false
}

// ShellHook executes a shell command with event data in environment variables.
//
// Environment variables set:
//   - MOSAIC_EVENT_TYPE: the event type string
//   - MOSAIC_EVENT_JSON: JSON-encoded event
type ShellHook struct {
	baseHook
	Command string
	Stdout  io.Writer
	Stderr  io.Writer
}

func NewShellHook(name, command string, events []EventType, blocking bool) *ShellHook {
	return &ShellHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		Command:  command,
		Stdout:   os.Stderr,
		Stderr:   os.Stderr,
	}
}

func (h *ShellHook) Handle(ev Event) error {
	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	cmd := exec.Command("sh", "-c", h.Command)
	cmd.Env = append(os.Environ(),
		"MOSAIC_EVENT_TYPE="+string(ev.Type),
		"MOSAIC_EVENT_JSON="+string(eventJSON),
	)
	cmd.Stdout = h.Stdout
	cmd.Stderr = h.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s failed: %w", h.name, err)
	}
	return nil
}

// WebhookHook sends an HTTP POST with event JSON to a URL.
type WebhookHook struct {
	baseHook
	URL    string
	client *http.Client
}

func NewWebhookHook(name, url string, events []EventType, blocking bool) *WebhookHook {
	return &WebhookHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		URL:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithTimeout overrides the HTTP client timeout.
func (h *WebhookHook) WithTimeout(d time.Duration) *WebhookHook {
	h.client = &http.Client{Timeout: d}
	return h
}

func (h *WebhookHook) Handle(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	resp, err := h.client.Post(h.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s failed: %w", h.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s returned status %d", h.name, resp.StatusCode)
	}
	return nil
}

// LogHook logs events at the configured level. Always non-blocking.
type LogHook struct {
	baseHook
	logger Logger
	level  string // "debug", "info", "warn"
}

// FullLogger extends Logger with additional log levels for the LogHook.
type FullLogger interface {
	Logger
	Info(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
}

func NewLogHook(name string, events []EventType, logger Logger, level string) *LogHook {
	if level == "" {
		level = "info"
	}
	return &LogHook{
		baseHook: baseHook{name: name, events: events, blocking: false},
		logger:   logger,
		level:    level,
	}
}

func (h *LogHook) Handle(ev Event) error {
	msg := fmt.Sprintf("[event] %s", ev.Type)
	keyvals := make([]interface{}, 0, len(ev.Data)*2+2)
	keyvals = append(keyvals, "event_type", string(ev.Type))
	for k, v := range ev.Data {
		keyvals = append(keyvals, k, v)
	}

	fl, ok := h.logger.(FullLogger)
	if !ok {
		h.logger.Warn(msg, keyvals...)
		return nil
	}
	switch h.level {
	case "debug":
		fl.Debug(msg, keyvals...)
	case "warn":
		fl.Warn(msg, keyvals...)
	default:
		fl.Info(msg, keyvals...)
	}
	return nil
}

// FuncHook adapts a function into a hook.
type FuncHook struct {
	baseHook
	fn func(Event) error
}

// NewFuncHook wraps fn as a hook matching events.
func NewFuncHook(name string, events []EventType, blocking bool, fn func(Event) error) *FuncHook {
	return &FuncHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		fn:       fn,
	}
}

func (h *FuncHook) Handle(ev Event) error {
	return h.fn(ev)
}
