// Package payment sends crypto gifts through the local payment server.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

var (
	// ErrCooldown is returned while the previous gift is too recent.
	ErrCooldown = errors.New("payment cooldown active")
	// ErrGiftFailed is returned when the server reports an unsuccessful gift.
	ErrGiftFailed = errors.New("gift failed")
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid gift request")
)

// GiftRequest is the body of POST /gift-crypto. Amount is in MIST.
type GiftRequest struct {
	SenderPrivateKey string `json:"senderPrivateKey" validate:"required"`
	RecipientEmail   string `json:"recipientEmail" validate:"required,email"`
	Amount           int64  `json:"amount" validate:"gt=0"`
	SenderName       string `json:"senderName"`
}

// GiftResponse is the server's answer.
type GiftResponse struct {
	Success     bool `json:"success"`
	Transaction struct {
		Digest      string      `json:"digest"`
		ExplorerURL string      `json:"explorerUrl"`
		AmountInSUI json.Number `json:"amountInSUI"`
	} `json:"transaction"`
	Recipient struct {
		Address string `json:"address"`
	} `json:"recipient"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client talks to the payment server and rate-limits gifts.
type Client struct {
	baseURL  string
	http     *http.Client
	cooldown time.Duration
	validate *validator.Validate
	log      *zap.SugaredLogger
	now      func() time.Time

	mu          sync.Mutex
	lastPayment time.Time
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout, cooldown time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		cooldown: cooldown,
		validate: validator.New(),
		log:      logging.OrNop(log),
		now:      time.Now,
	}
}

// CanSend reports whether the cooldown has passed.
func (c *Client) CanSend() bool {
	return c.CooldownRemaining() == 0
}

// CooldownRemaining returns how long until the next gift is allowed.
func (c *Client) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPayment.IsZero() {
		return 0
	}
	if left := c.cooldown - c.now().Sub(c.lastPayment); left > 0 {
		return left
	}
	return 0
}

// Gift sends req. The cooldown is reserved before the request goes out and
// released again if the gift does not succeed, so concurrent callers cannot
// both pass the check.
func (c *Client) Gift(ctx context.Context, req GiftRequest) (resp *GiftResponse, err error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	stamp, prev, err := c.reserve()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			c.release(stamp, prev)
		}
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode gift request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gift-crypto", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Infof("sending gift of %d MIST to %s", req.Amount, req.RecipientEmail)
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment server unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gift response: %w", err)
	}

	var out GiftResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse gift response (status %d): %w", httpResp.StatusCode, err)
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "unknown error"
		}
		if out.Error != "" {
			msg += ": " + out.Error
		}
		return &out, fmt.Errorf("%w: %s", ErrGiftFailed, msg)
	}

	c.log.Infof("gift sent: digest %s, recipient %s", out.Transaction.Digest, out.Recipient.Address)
	return &out, nil
}

// reserve stamps the cooldown if it has passed. It returns the new stamp and
// the one it replaced.
func (c *Client) reserve() (stamp, prev time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.lastPayment.IsZero() {
		if left := c.cooldown - now.Sub(c.lastPayment); left > 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %.1fs remaining", ErrCooldown, left.Seconds())
		}
	}
	prev = c.lastPayment
	c.lastPayment = now
	return now, prev, nil
}

// release undoes a reservation unless a later gift has replaced it.
func (c *Client) release(stamp, prev time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPayment.Equal(stamp) {
		c.lastPayment = prev
	}
}

// Health checks that the server answers GET / with 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment server health: status %d", resp.StatusCode)
	}
	return nil
}
