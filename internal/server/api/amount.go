package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/facegift/internal/amount"
)

// AmountParser extracts a gift amount from spoken text.
type AmountParser interface {
	Parse(ctx context.Context, text string) (*float64, amount.Source)
	Default() float64
}

// AmountHandler exposes the amount parser for trying phrases out.
type AmountHandler struct {
	parser AmountParser
}

// NewAmountHandler returns a handler over parser.
func NewAmountHandler(parser AmountParser) *AmountHandler {
	return &AmountHandler{parser: parser}
}

// Routes mounts the amount routes on r.
func (h *AmountHandler) Routes(r chi.Router) {
	r.Post("/amount/parse", h.parse)
}

type parseRequest struct {
	Text string `json:"text" validate:"max=2000"`
}

type parseResponse struct {
	Text   string  `json:"text"`
	Amount float64 `json:"amount"`
	Mist   int64   `json:"mist"`
	Source string  `json:"source"`
	Valid  bool    `json:"valid"`
	Error  string  `json:"error,omitempty"`
}

func (h *AmountHandler) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, src := h.parser.Parse(r.Context(), req.Text)
	resp := parseResponse{Text: req.Text, Source: string(src)}
	if src == amount.SourceNone {
		resp.Source = "default"
	}

	sui, err := amount.Validate(v, h.parser.Default())
	if err != nil {
		resp.Error = err.Error()
		if v != nil {
			resp.Amount = *v
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}
	resp.Amount = sui
	resp.Mist = amount.ToMist(sui)
	resp.Valid = true
	respondJSON(w, http.StatusOK, resp)
}
