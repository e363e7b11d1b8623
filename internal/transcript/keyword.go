package transcript

import (
	"strings"
	"sync"
	"time"
)

// Keyword spots a trigger word in recent speech, rate limited by a
// cooldown.
type Keyword struct {
	word     string
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewKeyword returns a trigger for word. window is how much transcript
// callers should search.
func NewKeyword(word string, window, cooldown time.Duration) *Keyword {
	return &Keyword{
		word:     strings.ToLower(strings.TrimSpace(word)),
		window:   window,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Word returns the trigger word, lower-cased.
func (k *Keyword) Word() string { return k.word }

// Window returns the search window.
func (k *Keyword) Window() time.Duration { return k.window }

// Detect reports whether text mentions the keyword and the cooldown has
// passed. A detection starts the cooldown.
func (k *Keyword) Detect(text string) bool {
	if k.word == "" || !strings.Contains(strings.ToLower(text), k.word) {
		return false
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if !k.last.IsZero() && now.Sub(k.last) < k.cooldown {
		return false
	}
	k.last = now
	return true
}

// Command returns the trimmed text after the first occurrence of the
// keyword. It reports false when the keyword is absent or nothing follows.
func (k *Keyword) Command(text string) (string, bool) {
	if k.word == "" {
		return "", false
	}
	// ToLower can change byte lengths for some scripts; search the
	// lowered copy only when lengths agree.
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		lower = text
	}
	i := strings.Index(lower, k.word)
	if i < 0 {
		return "", false
	}
	cmd := strings.TrimSpace(text[i+len(k.word):])
	return cmd, cmd != ""
}
