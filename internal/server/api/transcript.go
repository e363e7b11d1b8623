package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/facegift/internal/transcript"
)

// TranscriptHandler accepts segments from an external transcriber and
// exposes what has been heard.
type TranscriptHandler struct {
	buf     *transcript.Buffer
	onAdded func(transcript.Segment)
}

// NewTranscriptHandler returns a handler over buf. onAdded, if set, is
// called for every accepted segment.
func NewTranscriptHandler(buf *transcript.Buffer, onAdded func(transcript.Segment)) *TranscriptHandler {
	return &TranscriptHandler{buf: buf, onAdded: onAdded}
}

// Routes mounts the transcript routes on r.
func (h *TranscriptHandler) Routes(r chi.Router) {
	r.Post("/transcript", h.add)
	r.Get("/transcript", h.get)
}

type segmentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

func (h *TranscriptHandler) add(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	seg, ok := h.buf.Add(req.Text)
	if !ok {
		respondError(w, http.StatusBadRequest, "empty segment")
		return
	}
	if h.onAdded != nil {
		h.onAdded(seg)
	}
	respondJSON(w, http.StatusCreated, seg)
}

type transcriptResponse struct {
	Latest   string               `json:"latest"`
	Recent   string               `json:"recent,omitempty"`
	Segments []transcript.Segment `json:"segments"`
}

// get returns the buffered segments. ?seconds=N adds the text heard in
// the last N seconds.
func (h *TranscriptHandler) get(w http.ResponseWriter, r *http.Request) {
	seconds, err := intQuery(r, "seconds", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := transcriptResponse{Latest: h.buf.Latest(), Segments: h.buf.Segments()}
	if seconds > 0 {
		resp.Recent = h.buf.Recent(time.Duration(seconds) * time.Second)
	}
	respondJSON(w, http.StatusOK, resp)
}
