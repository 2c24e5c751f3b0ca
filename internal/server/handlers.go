package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/query"
	"github.com/cadre-oss/mosaic/internal/telemetry"
)

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

// storeError writes err with a status derived from its error code.
func storeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch mosaicerrors.AsCode(err) {
	case mosaicerrors.CodeInvalidArgument, mosaicerrors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case mosaicerrors.CodeCorruptData:
		status = http.StatusUnprocessableEntity
	case mosaicerrors.CodeSnapshotNotFound:
		status = http.StatusNotFound
	}
	body := map[string]string{"error": err.Error()}
	if code := mosaicerrors.AsCode(err); code != "" {
		body["code"] = code
	}
	if hint := mosaicerrors.Suggestion(err); hint != "" {
		body["suggestion"] = hint
	}
	jsonResponse(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// save persists the store after a mutation. Failures are logged; the
// in-memory change stands. Caller must hold s.writeMu.
func (s *Server) save() bool {
	if s.persister == nil {
		return true
	}
	if err := s.persister.Save(s.store, s.cfg.Snapshot.Name); err != nil {
		s.logger.Error("Failed to save snapshot", "error", err)
		return false
	}
	return true
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.cfg.Version,
		"name":    s.cfg.Name,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"name":          s.cfg.Name,
		"entries":       s.store.Len(),
		"capacity":      s.store.Capacity(),
		"next_sequence": s.store.NextSequence(),
		"snapshot": map[string]interface{}{
			"name":   s.cfg.Snapshot.Name,
			"driver": s.cfg.Snapshot.Driver,
			"format": s.cfg.Snapshot.Format,
		},
		"clients": s.broker.Len(),
	}
	if s.metrics != nil {
		status["metrics"] = s.metrics.GetSummary()
	}
	jsonResponse(w, http.StatusOK, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		jsonError(w, http.StatusNotFound, "metrics not enabled")
		return
	}
	w.Header().Set("Content-Type", telemetry.PrometheusContentType)
	labels := map[string]string{"store": s.cfg.Name, "snapshot": s.cfg.Snapshot.Name}
	if err := s.metrics.WritePrometheus(w, labels); err != nil {
		s.logger.Error("Failed to write metrics", "error", err)
	}
}

// --- Entries ---

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pred, err := query.Filters{
		Where:    q.Get("where"),
		Match:    q.Get("match"),
		Category: q.Get("category"),
	}.Predicate()
	if err != nil {
		storeError(w, err)
		return
	}

	entries := s.store.Retrieve(pred)
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %s", limit))
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}
	jsonResponse(w, http.StatusOK, entries)
}

type insertRequest struct {
	Payload  *string        `json:"payload"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleInsertEntry(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Payload == nil {
		jsonError(w, http.StatusBadRequest, "payload is required")
		return
	}

	s.writeMu.Lock()
	entry := s.store.Insert(*req.Payload, req.Metadata)
	s.save()
	s.writeMu.Unlock()

	jsonResponse(w, http.StatusCreated, entry)
}

type removeRequest struct {
	Payload *string `json:"payload"`
	Key     string  `json:"key"`
	Value   any     `json:"value"`
}

func (s *Server) handleRemoveEntries(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m := memory.Matcher[string]{
		Payload:       req.Payload,
		MetadataKey:   req.Key,
		MetadataValue: req.Value,
	}
	s.writeMu.Lock()
	n, err := s.store.Remove(m)
	if err == nil && n > 0 {
		s.save()
	}
	s.writeMu.Unlock()
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleClearEntries(w http.ResponseWriter, _ *http.Request) {
	s.writeMu.Lock()
	count := s.store.Clear()
	saved := s.save()
	s.writeMu.Unlock()

	if !saved {
		s.logger.Warn("Failed to clear memory")
	} else {
		s.logger.Info("Memory cleared", "count", count)
	}
	jsonResponse(w, http.StatusOK, map[string]int{"cleared": count})
}

// --- Snapshots ---

func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	format, err := memory.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		storeError(w, err)
		return
	}

	if format == memory.FormatJSONL {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", s.cfg.Snapshot.Name+"."+string(format)))

	if err := s.store.Export(w, format); err != nil {
		s.logger.Error("Snapshot export failed", "error", err)
	}
}

func (s *Server) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	merge, _ := strconv.ParseBool(r.URL.Query().Get("merge"))

	body := http.MaxBytesReader(w, r.Body, s.maxSnapshotBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("snapshot exceeds %d bytes", tooLarge.Limit))
			return
		}
		storeError(w, mosaicerrors.Wrap(mosaicerrors.CodeIOFailure, "read snapshot", err))
		return
	}

	s.writeMu.Lock()
	err = s.store.ImportSnapshot(data, merge)
	if err == nil {
		s.save()
	}
	entries, next := s.store.Len(), s.store.NextSequence()
	s.writeMu.Unlock()
	if err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"entries":       entries,
		"next_sequence": next,
		"merge":         merge,
	})
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, _ *http.Request) {
	if s.persister == nil {
		jsonError(w, http.StatusServiceUnavailable, "no snapshot backend configured")
		return
	}
	s.writeMu.Lock()
	err := s.persister.Save(s.store, s.cfg.Snapshot.Name)
	s.writeMu.Unlock()
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "saved", "name": s.cfg.Snapshot.Name})
}

func (s *Server) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	if s.persister == nil {
		jsonError(w, http.StatusServiceUnavailable, "no snapshot backend configured")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %s", v))
			return
		}
		limit = n
	}

	revs, err := s.persister.Backend().History(s.cfg.Snapshot.Name, limit)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, revs)
}

// --- SSE Events ---

// parseEventTypes reads a comma-separated ?types= filter.
func parseEventTypes(raw string) ([]event.EventType, error) {
	if raw == "" {
		return nil, nil
	}
	var types []event.EventType
	for _, part := range strings.Split(raw, ",") {
		t := event.EventType(strings.TrimSpace(part))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown event type: %s", t)
		}
		types = append(types, t)
	}
	return types, nil
}

func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	types, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	client := s.broker.Subscribe(r.Context(), clientID, types)

	data, _ := json.Marshal(map[string]string{"type": "connected", "client_id": clientID})
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	for ev := range client.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}
