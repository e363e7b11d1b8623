package payment

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/amount"
	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/store"
)

// TransactionRecorder persists gift attempts.
type TransactionRecorder interface {
	Create(tx *store.Transaction) error
}

// Sender identifies the funded wallet and who gifts go to.
type Sender struct {
	PrivateKey     string
	Name           string
	RecipientEmail string
}

// Service sends gifts and records every attempt that reached the server.
type Service struct {
	client   *Client
	sender   Sender
	recorder TransactionRecorder
	log      *zap.SugaredLogger
}

// NewService wires a client to a transaction recorder. recorder may be nil.
func NewService(client *Client, sender Sender, recorder TransactionRecorder, log *zap.SugaredLogger) *Service {
	return &Service{client: client, sender: sender, recorder: recorder, log: logging.OrNop(log)}
}

// Client returns the underlying client.
func (s *Service) Client() *Client {
	return s.client
}

// Send gifts sui SUI on behalf of personID. Cooldown and validation
// rejections are not recorded.
func (s *Service) Send(ctx context.Context, personID string, sui float64) (*store.Transaction, error) {
	req := GiftRequest{
		SenderPrivateKey: s.sender.PrivateKey,
		RecipientEmail:   s.sender.RecipientEmail,
		Amount:           amount.ToMist(sui),
		SenderName:       s.sender.Name,
	}

	resp, err := s.client.Gift(ctx, req)
	if errors.Is(err, ErrCooldown) || errors.Is(err, ErrInvalidRequest) {
		return nil, err
	}

	tx := &store.Transaction{
		ID:             uuid.NewString(),
		Currency:       store.CurrencySUI,
		Amount:         sui,
		RecipientEmail: req.RecipientEmail,
		SenderName:     req.SenderName,
		PersonID:       personID,
		Status:         store.StatusSuccess,
	}
	if resp != nil {
		tx.Digest = resp.Transaction.Digest
		tx.ExplorerURL = resp.Transaction.ExplorerURL
		tx.RecipientAddress = resp.Recipient.Address
		if v, perr := strconv.ParseFloat(resp.Transaction.AmountInSUI.String(), 64); perr == nil && v > 0 {
			tx.Amount = v
		}
	}
	if err != nil {
		tx.Status = store.StatusFailed
		tx.Error = err.Error()
	}

	if s.recorder != nil {
		if rerr := s.recorder.Create(tx); rerr != nil {
			s.log.Errorf("record transaction %s: %v", tx.ID, rerr)
		}
	}
	return tx, err
}
