package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/kiln-llm/kiln/internal/logits"
	"github.com/kiln-llm/kiln/internal/model"
	"github.com/kiln-llm/kiln/internal/tokenizer"
)

// Request describes one generation call.
type Request struct {
	Messages    []tokenizer.Message
	Prompt      string // used when Messages is empty
	MaxTokens   int
	Temperature float64
	TopK        int
	TopP        float64
	Seed        int64
}

// Stats summarises one completed generation.
type Stats struct {
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Result is the outcome of one generation call.
type Result struct {
	Text  string
	Stats Stats
}

// Engine owns the loaded model and serializes requests through a Turnstile.
// The decoder weights are read-only after construction, so the single active
// holder can read them safely; all per-request state lives in the request's
// own Generator.
type Engine struct {
	Model     *model.Decoder
	Tokenizer tokenizer.Tokenizer

	gate Turnstile
}

// NewEngine wraps a loaded decoder and tokenizer.
func NewEngine(m *model.Decoder, tok tokenizer.Tokenizer) *Engine {
	return &Engine{Model: m, Tokenizer: tok}
}

// Generate encodes the prompt, waits its turn at the turnstile, and drives
// the generator until MaxTokens, the end-of-sequence token, or context
// cancellation. stream, when non-nil, receives each decoded token as it is
// produced. The turnstile is released on every exit path so a failed or
// cancelled request never blocks the queue.
func (e *Engine) Generate(ctx context.Context, req *Request, stream func(string)) (*Result, error) {
	prompt := req.Prompt
	if len(req.Messages) > 0 {
		prompt = tokenizer.RenderChat(req.Messages)
	}
	promptIDs, err := e.Tokenizer.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	if len(promptIDs) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        req.Seed,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
	})

	e.gate.Acquire()
	defer e.gate.Release()

	gen, err := NewGenerator(e.Model, sampler, promptIDs)
	if err != nil {
		return nil, err
	}

	var out []int
	start := time.Now()
	for i := 0; i < maxTokens; i++ {
		if err := ctx.Err(); err != nil {
			break
		}
		tok, err := gen.Next()
		if err != nil {
			return nil, fmt.Errorf("generation step %d: %w", i, err)
		}
		if tok == e.Tokenizer.EOS() {
			break
		}
		out = append(out, tok)
		if stream != nil {
			s, _ := e.Tokenizer.Decode([]int{tok})
			stream(s)
		}
	}

	text, err := e.Tokenizer.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}

	stats := Stats{
		PromptTokens:    len(promptIDs),
		TokensGenerated: len(out),
		Duration:        time.Since(start),
	}
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(stats.TokensGenerated) / stats.Duration.Seconds()
	}
	return &Result{Text: text, Stats: stats}, nil
}
