package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/personinfo"
	"github.com/ayusman/facegift/internal/tracker"
)

// FaceRegistry is the part of the tracker the dashboard reads and edits.
type FaceRegistry interface {
	List() []*tracker.Record
	Get(id string) (*tracker.Record, bool)
	ImageFile(id string) (string, error)
	StorePersonInfo(id string, info any) error
	Statistics() tracker.Statistics
}

// FacesHandler serves the tracked identities.
type FacesHandler struct {
	faces   FaceRegistry
	onReset func() error
	setInfo func(info personinfo.Info) error
	log     *zap.SugaredLogger
}

// NewFacesHandler returns a handler over faces. onReset clears the
// registry and everything derived from it; nil disables the reset route.
func NewFacesHandler(faces FaceRegistry, onReset func() error, log *zap.SugaredLogger) *FacesHandler {
	return &FacesHandler{faces: faces, onReset: onReset, log: logging.OrNop(log)}
}

// OnPersonInfo routes manual info updates through fn instead of writing
// them straight to the registry.
func (h *FacesHandler) OnPersonInfo(fn func(info personinfo.Info) error) *FacesHandler {
	h.setInfo = fn
	return h
}

// Routes mounts the face routes on r.
func (h *FacesHandler) Routes(r chi.Router) {
	r.Get("/faces", h.list)
	r.Post("/faces/reset", h.reset)
	r.Get("/faces/{id}", h.get)
	r.Put("/faces/{id}/info", h.putInfo)
	r.Get("/faces/{id}/image", h.image)
}

type facesResponse struct {
	Faces []*tracker.Record `json:"faces"`
	Count int               `json:"count"`
}

func (h *FacesHandler) list(w http.ResponseWriter, r *http.Request) {
	faces := h.faces.List()
	respondJSON(w, http.StatusOK, facesResponse{Faces: faces, Count: len(faces)})
}

func (h *FacesHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.faces.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// infoRequest is a manual person info update.
type infoRequest struct {
	Status   string `json:"status" validate:"omitempty,oneof=scraping completed error"`
	Summary  string `json:"summary" validate:"max=4000"`
	FullName string `json:"full_name" validate:"required,max=200"`
}

func (h *FacesHandler) putInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req infoRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = personinfo.StatusCompleted
	}

	info := personinfo.Info{PersonID: id, Status: req.Status, Summary: req.Summary, FullName: req.FullName}
	var err error
	if h.setInfo != nil {
		err = h.setInfo(info)
	} else {
		err = h.faces.StorePersonInfo(id, info)
	}
	if err != nil {
		if errors.Is(err, tracker.ErrUnknownPerson) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		h.log.Errorf("store person info for %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to store person info")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *FacesHandler) image(w http.ResponseWriter, r *http.Request) {
	path, err := h.faces.ImageFile(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (h *FacesHandler) reset(w http.ResponseWriter, r *http.Request) {
	if h.onReset == nil {
		respondError(w, http.StatusNotImplemented, "reset is disabled")
		return
	}
	if err := h.onReset(); err != nil {
		h.log.Errorf("reset faces: %v", err)
		respondError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
