package amount

import (
	"context"
	"errors"
	"testing"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		reply   string
		want    float64
		wantSrc Source
	}{
		{"send with decimal", "Send 0.5 SUI to them", "", 0.5, SourceRegex},
		{"integer", "give her 3 sui", "", 3, SourceRegex},
		{"no space", "2.25sui please", "", 2.25, SourceRegex},
		{"leading decimal", "send .5 sui", "", 0.5, SourceRegex},
		{"number word", "send five SUI", "", 5, SourceWords},
		{"point words", "send one point five sui", "", 1.5, SourceWords},
		{"llm fallback", "send a couple of sui tokens", "2", 2, SourceLLM},
		{"llm chatty reply", "transfer a tenth of a coin", "The amount is 0.1 SUI.", 0.1, SourceLLM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{reply: tt.reply}
			p := NewParser(llm, 0.01, nil)

			got, src := p.Parse(context.Background(), tt.text)
			if got == nil {
				t.Fatalf("Parse(%q) found nothing", tt.text)
			}
			if *got != tt.want || src != tt.wantSrc {
				t.Errorf("Parse(%q) = (%v, %q), want (%v, %q)", tt.text, *got, src, tt.want, tt.wantSrc)
			}
			if tt.wantSrc != SourceLLM && llm.calls != 0 {
				t.Error("llm should only be asked when local strategies fail")
			}
		})
	}
}

func TestParser_ParseNothing(t *testing.T) {
	tests := []struct {
		name string
		text string
		llm  Generator
	}{
		{"empty", "   ", &fakeLLM{reply: "5"}},
		{"no llm", "send some money", nil},
		{"llm error", "send some money", &fakeLLM{err: errors.New("connection refused")}},
		{"llm no number", "send some money", &fakeLLM{reply: "I cannot tell."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(tt.llm, 0.01, nil)
			if got, src := p.Parse(context.Background(), tt.text); got != nil || src != SourceNone {
				t.Errorf("Parse(%q) = (%v, %q), want nothing", tt.text, got, src)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		amount  *float64
		want    float64
		wantErr bool
	}{
		{"nil uses default", nil, 0.01, false},
		{"valid", f(0.5), 0.5, false},
		{"max", f(1000), 1000, false},
		{"min", f(0.00001), 0.00001, false},
		{"negative", f(-1), 0, true},
		{"zero", f(0), 0, true},
		{"too large", f(1000.5), 0, true},
		{"too small", f(0.000001), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.amount, 0.01)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	p := NewParser(nil, 0.02, nil)

	got, src, err := p.Resolve(context.Background(), "hello there")
	if err != nil || got != 0.02 || src != SourceNone {
		t.Errorf("Resolve() without amount = (%v, %q, %v), want default", got, src, err)
	}

	if _, _, err := p.Resolve(context.Background(), "send 5000 sui"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Resolve() of 5000 should be invalid, got %v", err)
	}
}

func TestToMist(t *testing.T) {
	tests := []struct {
		sui  float64
		want int64
	}{
		{1, 1_000_000_000},
		{0.5, 500_000_000},
		{0.00001, 10_000},
		{1000, 1_000_000_000_000},
		{0.0000000019, 1},
	}

	for _, tt := range tests {
		if got := ToMist(tt.sui); got != tt.want {
			t.Errorf("ToMist(%v) = %d, want %d", tt.sui, got, tt.want)
		}
	}
}
