package model

import (
	"fmt"

	"github.com/kiln-llm/kiln/internal/tensor"
)

// Decoder is the full autoregressive stack: token embedding, N blocks, final
// normalization and the vocabulary projection. The decoder itself is
// stateless between calls; all mutable generation state lives in the caches
// the caller threads through Forward. Weights are read-only after load, so a
// single Decoder may serve many sequential requests.
type Decoder struct {
	Config Config

	Embedding *tensor.Tensor
	Blocks    []*Block
	Norm      *RMSNorm
	Output    *tensor.Tensor
}

// Weights holds the loaded parameter tensors for one decoder. Projection
// weights are row-major [out, in].
type Weights struct {
	Embedding *tensor.Tensor
	Output    *tensor.Tensor
	FinalNorm []float32
	Layers    []LayerWeights
}

// LayerWeights holds one layer's parameters.
type LayerWeights struct {
	Wq *tensor.Tensor
	Wk *tensor.Tensor
	Wv *tensor.Tensor
	Wo *tensor.Tensor

	Gate *tensor.Tensor
	Up   *tensor.Tensor
	Down *tensor.Tensor

	AttnNorm []float32
	FFNNorm  []float32
}

// New builds a decoder from a validated config and its weights. The config is
// validated again here so a decoder can never exist with inconsistent
// dimensions, and weight shapes are checked against the config before use.
func New(cfg Config, w *Weights) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	if len(w.Layers) != cfg.NumHiddenLayers {
		return nil, fmt.Errorf("expected %d layers of weights, got %d", cfg.NumHiddenLayers, len(w.Layers))
	}
	if err := checkShape("embed_tokens", w.Embedding, cfg.VocabSize, cfg.HiddenSize); err != nil {
		return nil, err
	}
	if err := checkShape("lm_head", w.Output, cfg.VocabSize, cfg.HiddenSize); err != nil {
		return nil, err
	}

	headDim := cfg.HeadDim()
	rope := NewRope(&cfg)
	blocks := make([]*Block, cfg.NumHiddenLayers)
	for i, lw := range w.Layers {
		checks := []struct {
			name string
			w    *tensor.Tensor
			r, c int
		}{
			{"q_proj", lw.Wq, cfg.NumAttentionHeads * headDim, cfg.HiddenSize},
			{"k_proj", lw.Wk, cfg.NumKeyValueHeads * headDim, cfg.HiddenSize},
			{"v_proj", lw.Wv, cfg.NumKeyValueHeads * headDim, cfg.HiddenSize},
			{"o_proj", lw.Wo, cfg.HiddenSize, cfg.NumAttentionHeads * headDim},
			{"gate_proj", lw.Gate, cfg.IntermediateSize, cfg.HiddenSize},
			{"up_proj", lw.Up, cfg.IntermediateSize, cfg.HiddenSize},
			{"down_proj", lw.Down, cfg.HiddenSize, cfg.IntermediateSize},
		}
		for _, ck := range checks {
			if err := checkShape(fmt.Sprintf("layer %d %s", i, ck.name), ck.w, ck.r, ck.c); err != nil {
				return nil, err
			}
		}
		if len(lw.AttnNorm) != cfg.HiddenSize || len(lw.FFNNorm) != cfg.HiddenSize {
			return nil, fmt.Errorf("layer %d: norm weight length mismatch", i)
		}

		eps := float32(cfg.RMSNormEps)
		blocks[i] = &Block{
			Attn: &Attention{
				Wq:         lw.Wq,
				Wk:         lw.Wk,
				Wv:         lw.Wv,
				Wo:         lw.Wo,
				NumHeads:   cfg.NumAttentionHeads,
				NumKVHeads: cfg.NumKeyValueHeads,
				HeadDim:    headDim,
				rope:       rope,
			},
			FFN:      &FeedForward{Gate: lw.Gate, Up: lw.Up, Down: lw.Down},
			AttnNorm: &RMSNorm{Weight: lw.AttnNorm, Eps: eps},
			FFNNorm:  &RMSNorm{Weight: lw.FFNNorm, Eps: eps},
		}
	}

	normWeight := w.FinalNorm
	if normWeight == nil {
		normWeight = make([]float32, cfg.HiddenSize)
		for i := range normWeight {
			normWeight[i] = 1
		}
	} else if len(normWeight) != cfg.HiddenSize {
		return nil, fmt.Errorf("final norm weight length %d, want %d", len(normWeight), cfg.HiddenSize)
	}
	return &Decoder{
		Config:    cfg,
		Embedding: w.Embedding,
		Blocks:    blocks,
		Norm:      &RMSNorm{Weight: normWeight, Eps: float32(cfg.RMSNormEps)},
		Output:    w.Output,
	}, nil
}

// Forward embeds tokens, shaped [batch, seq], runs every block in layer order
// threading the per-layer caches, and projects to vocabulary logits shaped
// [batch, seq, vocab]. caches may be nil for a fresh sequence; the returned
// slice holds the grown entry for every layer. A causal mask is built only
// when seq > 1; a single decoded token attends to the whole cache plus
// itself, so no mask is needed.
func (d *Decoder) Forward(tokens [][]int, caches []*KVCache) (*tensor.Tensor, []*KVCache, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, nil, fmt.Errorf("empty token input")
	}
	batch, seq := len(tokens), len(tokens[0])

	if caches == nil {
		caches = make([]*KVCache, len(d.Blocks))
	}
	if len(caches) != len(d.Blocks) {
		return nil, nil, fmt.Errorf("kv cache corrupted: %d entries for %d layers", len(caches), len(d.Blocks))
	}
	if err := checkCaches(caches); err != nil {
		return nil, nil, err
	}

	x := tensor.New(batch, seq, d.Config.HiddenSize)
	for b, row := range tokens {
		if len(row) != seq {
			return nil, nil, fmt.Errorf("ragged token batch")
		}
		for s, tok := range row {
			if tok < 0 || tok >= d.Config.VocabSize {
				return nil, nil, fmt.Errorf("token id out of range: %d", tok)
			}
			dst := x.Data[((b*seq)+s)*d.Config.HiddenSize:][:d.Config.HiddenSize]
			copy(dst, d.Embedding.Row(tok))
		}
	}

	var mask *tensor.Tensor
	if seq > 1 {
		mask = tensor.CausalMask(seq)
	}

	out := make([]*KVCache, len(d.Blocks))
	var err error
	for i, blk := range d.Blocks {
		x, out[i], err = blk.Forward(x, mask, caches[i])
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	logits := tensor.Linear(d.Output, d.Norm.Forward(x))
	return logits, out, nil
}

func checkShape(name string, t *tensor.Tensor, r, c int) error {
	if t == nil {
		return fmt.Errorf("%s: missing weight", name)
	}
	if len(t.Shape) != 2 || t.Shape[0] != r || t.Shape[1] != c {
		return fmt.Errorf("%s: weight shape %v, want [%d %d]", name, t.Shape, r, c)
	}
	return nil
}
