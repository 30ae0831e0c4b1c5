package inference

import (
	"fmt"

	"github.com/kiln-llm/kiln/internal/logits"
	"github.com/kiln-llm/kiln/internal/model"
)

// Generator produces an unbounded sequence of token ids, one per Next call.
// The first call feeds the whole prompt through the decoder; every later call
// feeds the previously sampled token against the carried cache. The sequence
// never terminates itself: stop tokens and length limits are the caller's
// concern, and abandoning a generator needs no cleanup because it exclusively
// owns its cache. A generator is not safe for concurrent use and is not
// restartable; make a new one per request.
type Generator struct {
	model   *model.Decoder
	sampler *logits.Sampler

	caches  []*model.KVCache
	pending []int
	failed  error
}

// NewGenerator prepares a generator for one request.
func NewGenerator(m *model.Decoder, sampler *logits.Sampler, prompt []int) (*Generator, error) {
	if len(prompt) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	return &Generator{
		model:   m,
		sampler: sampler,
		pending: append([]int(nil), prompt...),
	}, nil
}

// Next produces the next token id. A forward-pass error poisons the
// generator: the error is returned now and on every later call.
func (g *Generator) Next() (int, error) {
	if g.failed != nil {
		return 0, g.failed
	}

	out, caches, err := g.model.Forward([][]int{g.pending}, g.caches)
	if err != nil {
		g.failed = err
		return 0, err
	}
	g.caches = caches

	seq := out.Shape[1]
	vocab := out.Shape[2]
	last := out.Data[(seq-1)*vocab : seq*vocab]

	tok := g.sampler.Sample(last)
	g.pending = []int{tok}
	return tok, nil
}

// CacheLen reports the number of positions currently cached.
func (g *Generator) CacheLen() int {
	if len(g.caches) == 0 {
		return 0
	}
	return g.caches[0].Len()
}
