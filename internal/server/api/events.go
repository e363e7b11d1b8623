package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/eventlog"
	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/store"
	"github.com/ayusman/facegift/internal/tracker"
)

// EventSource reads the detection/recognition log.
type EventSource interface {
	List(f store.EventFilter) ([]*store.Event, error)
	Stats() (store.EventStats, error)
}

const defaultEventLimit = 100

// EventsHandler serves the event log and the combined statistics.
type EventsHandler struct {
	events EventSource
	faces  FaceRegistry
	log    *zap.SugaredLogger
}

// NewEventsHandler returns a handler over events. faces may be nil, in
// which case /stats only reports the event log.
func NewEventsHandler(events EventSource, faces FaceRegistry, log *zap.SugaredLogger) *EventsHandler {
	return &EventsHandler{events: events, faces: faces, log: logging.OrNop(log)}
}

// Routes mounts the event routes on r.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events", h.list)
	r.Get("/events/export", h.export)
	r.Get("/stats", h.stats)
}

func filterFrom(r *http.Request, defLimit int) (store.EventFilter, error) {
	limit, err := intQuery(r, "limit", defLimit)
	if err != nil {
		return store.EventFilter{}, err
	}
	f := store.EventFilter{Name: r.URL.Query().Get("name"), Limit: limit}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.EventFilter{}, fmt.Errorf("invalid since: %q", raw)
		}
		f.Since = since
	}
	return f, nil
}

func (h *EventsHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := filterFrom(r, defaultEventLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.events.List(f)
	if err != nil {
		h.log.Errorf("list events: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	records := make([]eventlog.Record, 0, len(events))
	for _, e := range events {
		records = append(records, eventlog.NewRecord(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": records, "count": len(records)})
}

func (h *EventsHandler) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = eventlog.FormatCSV
	}
	f, err := filterFrom(r, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.events.List(f)
	if err != nil {
		h.log.Errorf("export events: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	var buf bytes.Buffer
	if err := eventlog.Export(&buf, format, events); err != nil {
		if errors.Is(err, eventlog.ErrFormat) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Errorf("export events: %v", err)
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	contentType := "text/csv"
	if format == eventlog.FormatJSON {
		contentType = "application/json"
	}
	name := fmt.Sprintf("face_events_%s.%s", time.Now().Format("20060102_150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(buf.Bytes())
}

type statsResponse struct {
	Faces  *tracker.Statistics `json:"faces,omitempty"`
	Events store.EventStats    `json:"events"`
}

func (h *EventsHandler) stats(w http.ResponseWriter, r *http.Request) {
	es, err := h.events.Stats()
	if err != nil {
		h.log.Errorf("event stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}
	resp := statsResponse{Events: es}
	if h.faces != nil {
		fs := h.faces.Statistics()
		resp.Faces = &fs
	}
	respondJSON(w, http.StatusOK, resp)
}
