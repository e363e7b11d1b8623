// Package messaging sends texts through the macOS Messages app.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

var (
	// ErrCooldown is returned while the previous message is too recent.
	ErrCooldown = errors.New("message cooldown active")
	// ErrEmpty is returned for blank messages.
	ErrEmpty = errors.New("empty message")
)

// MaxTranscriptLen is the longest transcript sent before truncation.
const MaxTranscriptLen = 1000

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config configures the sender.
type Config struct {
	Recipient string
	Lookback  time.Duration
	Cooldown  time.Duration
	Timeout   time.Duration
}

// DefaultConfig returns the messaging defaults.
func DefaultConfig() Config {
	return Config{
		Lookback: 15 * time.Second,
		Cooldown: 5 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Status describes the sender for the API.
type Status struct {
	Recipient string  `json:"recipient"`
	Lookback  float64 `json:"lookback_seconds"`
	Cooldown  float64 `json:"cooldown_seconds"`
	CanSend   bool    `json:"can_send"`
}

// Sender sends iMessages with osascript.
type Sender struct {
	config Config
	run    Runner
	log    *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	lastSent time.Time
}

// NewSender returns a sender. A nil run uses ExecRunner.
func NewSender(config Config, run Runner, log *zap.SugaredLogger) *Sender {
	if run == nil {
		run = ExecRunner
	}
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	return &Sender{config: config, run: run, log: logging.OrNop(log), now: time.Now}
}

// Lookback is how much transcript a peace sign sends.
func (s *Sender) Lookback() time.Duration {
	return s.config.Lookback
}

// CanSend reports whether the cooldown has passed.
func (s *Sender) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSend()
}

func (s *Sender) canSend() bool {
	return s.lastSent.IsZero() || s.now().Sub(s.lastSent) >= s.config.Cooldown
}

// Send delivers text to the configured recipient.
func (s *Sender) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}

	s.mu.Lock()
	if !s.canSend() {
		left := s.config.Cooldown - s.now().Sub(s.lastSent)
		s.mu.Unlock()
		return fmt.Errorf("%w: %.1fs remaining", ErrCooldown, left.Seconds())
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	out, err := s.run(ctx, "osascript", "-e", Script(s.config.Recipient, text))
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("osascript timed out after %s", s.config.Timeout)
	}
	if err != nil {
		return fmt.Errorf("send imessage: %w: %s", err, strings.TrimSpace(string(out)))
	}

	s.mu.Lock()
	s.lastSent = s.now()
	s.mu.Unlock()

	s.log.Infof("imessage sent to %s: %s", s.config.Recipient, preview(text, 100))
	return nil
}

// SendTranscript sends a transcript, cut to MaxTranscriptLen runes.
func (s *Sender) SendTranscript(ctx context.Context, transcript string) error {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return fmt.Errorf("%w: no transcript", ErrEmpty)
	}
	if r := []rune(transcript); len(r) > MaxTranscriptLen {
		transcript = string(r[:MaxTranscriptLen]) + "..."
	}
	return s.Send(ctx, transcript)
}

// Status reports the sender's settings and whether it can send now.
func (s *Sender) Status() Status {
	return Status{
		Recipient: s.config.Recipient,
		Lookback:  s.config.Lookback.Seconds(),
		Cooldown:  s.config.Cooldown.Seconds(),
		CanSend:   s.CanSend(),
	}
}

// Script builds the AppleScript that sends text to recipient.
func Script(recipient, text string) string {
	return fmt.Sprintf(`tell application "Messages"
	set targetService to 1st service whose service type = iMessage
	set targetBuddy to buddy "%s" of targetService
	send "%s" to targetBuddy
end tell`, escape(recipient), escape(text))
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escape(s string) string {
	return escaper.Replace(s)
}

func preview(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
