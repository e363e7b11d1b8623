// Package amount pulls a SUI amount out of spoken text.
package amount

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

// MistPerSUI is the number of MIST in one SUI.
const MistPerSUI = 1_000_000_000

// Limits accepted by Validate.
const (
	MaxSUI = 1000.0
	MinSUI = 0.00001
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid amount")

// Source says which strategy produced an amount.
type Source string

const (
	SourceNone  Source = ""
	SourceRegex Source = "regex"
	SourceWords Source = "words"
	SourceLLM   Source = "llm"
)

var (
	patterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:send\s+)?(\d+\.?\d*)\s*sui`),
		regexp.MustCompile(`(?:send\s+)?(\.\d+)\s*sui`),
	}
	wordPattern = regexp.MustCompile(`([a-z]+(?:\s+point\s+[a-z]+)?)\s+sui`)
	firstNumber = regexp.MustCompile(`\d+\.?\d*`)
	numberWords = map[string]int{
		"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
		"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
		"ten": 10, "twenty": 20, "thirty": 30, "forty": 40,
		"fifty": 50, "hundred": 100, "thousand": 1000,
	}
)

const llmPrompt = `Extract the SUI cryptocurrency amount from this text. Return ONLY the numeric value as a decimal number, nothing else.

Examples:
- "send 0.5 SUI" -> 0.5
- "send five SUI" -> 5
- "transfer 0.0001 SUI" -> 0.0001
- "send one point five SUI" -> 1.5

Text: %q

Amount:`

// Parser tries regex, then number words, then the language model.
type Parser struct {
	llm           Generator
	defaultAmount float64
	log           *zap.SugaredLogger
}

// NewParser returns a parser. llm may be nil to disable the model fallback.
func NewParser(llm Generator, defaultAmount float64, log *zap.SugaredLogger) *Parser {
	return &Parser{llm: llm, defaultAmount: defaultAmount, log: logging.OrNop(log)}
}

// Parse returns the amount mentioned in text, or nil when none is found.
func (p *Parser) Parse(ctx context.Context, text string) (*float64, Source) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, SourceNone
	}
	lower := strings.ToLower(text)

	if v, ok := parseRegex(lower); ok {
		return &v, SourceRegex
	}
	if v, ok := parseWords(lower); ok {
		return &v, SourceWords
	}
	if p.llm == nil {
		return nil, SourceNone
	}

	reply, err := p.llm.Generate(ctx, fmt.Sprintf(llmPrompt, text))
	if err != nil {
		p.log.Warnf("llm amount parsing failed: %v", err)
		return nil, SourceNone
	}
	if m := firstNumber.FindString(reply); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return &v, SourceLLM
		}
	}
	p.log.Debugf("no amount in %q", text)
	return nil, SourceNone
}

// Resolve parses text and validates the result, falling back to the
// default amount when nothing was said.
func (p *Parser) Resolve(ctx context.Context, text string) (float64, Source, error) {
	v, src := p.Parse(ctx, text)
	amount, err := Validate(v, p.defaultAmount)
	return amount, src, err
}

// Default returns the amount used when none is spoken.
func (p *Parser) Default() float64 {
	return p.defaultAmount
}

// parseRegex tries each pattern in order. A digit run directly after a
// '.' belongs to a leading-decimal amount and is left to the later pattern.
func parseRegex(lower string) (float64, bool) {
	for _, re := range patterns {
		loc := re.FindStringSubmatchIndex(lower)
		if loc == nil {
			continue
		}
		start, end := loc[2], loc[3]
		if start > 0 && lower[start-1] == '.' {
			continue
		}
		if v, err := strconv.ParseFloat(lower[start:end], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// parseWords handles "five sui" and "one point five sui".
func parseWords(lower string) (float64, bool) {
	m := wordPattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}

	parts := strings.Fields(m[1])
	whole, ok := numberWords[parts[0]]
	if !ok {
		return 0, false
	}
	if len(parts) == 1 {
		return float64(whole), true
	}

	frac, ok := numberWords[parts[2]]
	if !ok || frac > 9 {
		return 0, false
	}
	return float64(whole) + float64(frac)/10, true
}

// Validate checks an amount. A nil amount means none was given and
// yields def.
func Validate(amount *float64, def float64) (float64, error) {
	if amount == nil {
		return def, nil
	}

	v := *amount
	switch {
	case v < 0:
		return 0, fmt.Errorf("%w: cannot be negative", ErrInvalid)
	case v == 0:
		return 0, fmt.Errorf("%w: cannot be zero", ErrInvalid)
	case v > MaxSUI:
		return 0, fmt.Errorf("%w: %g SUI is too large (max %g)", ErrInvalid, v, MaxSUI)
	case v < MinSUI:
		return 0, fmt.Errorf("%w: %g SUI is too small (min %g)", ErrInvalid, v, MinSUI)
	}
	return v, nil
}

// ToMist converts SUI to MIST. Fractions of a MIST are dropped.
func ToMist(sui float64) int64 {
	return int64(sui * MistPerSUI)
}
