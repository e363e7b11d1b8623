package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/store"
)

// TransactionSource reads recorded gift payments.
type TransactionSource interface {
	Recent(limit int) ([]*store.Transaction, error)
	Totals() (map[string]float64, error)
}

const defaultTransactionLimit = 50

// TransactionsHandler serves the payment history.
type TransactionsHandler struct {
	txs TransactionSource
	log *zap.SugaredLogger
}

// NewTransactionsHandler returns a handler over txs.
func NewTransactionsHandler(txs TransactionSource, log *zap.SugaredLogger) *TransactionsHandler {
	return &TransactionsHandler{txs: txs, log: logging.OrNop(log)}
}

// Routes mounts the transaction routes on r.
func (h *TransactionsHandler) Routes(r chi.Router) {
	r.Get("/transactions", h.list)
	r.Get("/transactions/totals", h.totals)
}

type transactionJSON struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Currency         string    `json:"currency"`
	Amount           float64   `json:"amount"`
	Digest           string    `json:"digest,omitempty"`
	RecipientAddress string    `json:"recipient_address,omitempty"`
	RecipientEmail   string    `json:"recipient_email,omitempty"`
	SenderName       string    `json:"sender_name,omitempty"`
	ExplorerURL      string    `json:"explorer_url,omitempty"`
	PersonID         string    `json:"person_id,omitempty"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
}

func toTransactionJSON(tx *store.Transaction) transactionJSON {
	return transactionJSON{
		ID:               tx.ID,
		Timestamp:        tx.Timestamp,
		Currency:         tx.Currency,
		Amount:           tx.Amount,
		Digest:           tx.Digest,
		RecipientAddress: tx.RecipientAddress,
		RecipientEmail:   tx.RecipientEmail,
		SenderName:       tx.SenderName,
		ExplorerURL:      tx.ExplorerURL,
		PersonID:         tx.PersonID,
		Status:           tx.Status,
		Error:            tx.Error,
	}
}

func (h *TransactionsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultTransactionLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := h.txs.Recent(limit)
	if err != nil {
		h.log.Errorf("list transactions: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionJSON(tx))
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": out, "count": len(out)})
}

func (h *TransactionsHandler) totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.txs.Totals()
	if err != nil {
		h.log.Errorf("transaction totals: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to compute totals")
		return
	}
	respondJSON(w, http.StatusOK, totals)
}
