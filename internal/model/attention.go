package model

import (
	"fmt"
	"math"

	"github.com/kiln-llm/kiln/internal/tensor"
)

// Attention is grouped-query causal self-attention. Keys and values use
// NumKVHeads projection heads; each is repeated to match NumHeads before the
// score computation (block repeat: query head h reads kv head h/groups, so
// grouping order is preserved).
type Attention struct {
	Wq *tensor.Tensor
	Wk *tensor.Tensor
	Wv *tensor.Tensor
	Wo *tensor.Tensor

	NumHeads   int
	NumKVHeads int
	HeadDim    int

	rope *Rope
}

// Forward computes attention over x, shaped [batch, seq, hidden]. mask is an
// optional [seq, seq] additive causal mask applied to the trailing columns of
// the score matrix. cache is the prior kv entry for this layer, or nil for a
// fresh sequence. It returns the output, shaped like x, and the grown cache.
func (a *Attention) Forward(x, mask *tensor.Tensor, cache *KVCache) (*tensor.Tensor, *KVCache, error) {
	batch, seq := x.Shape[0], x.Shape[1]

	q := splitHeads(tensor.Linear(a.Wq, x), a.NumHeads, a.HeadDim)
	k := splitHeads(tensor.Linear(a.Wk, x), a.NumKVHeads, a.HeadDim)
	v := splitHeads(tensor.Linear(a.Wv, x), a.NumKVHeads, a.HeadDim)

	if a.NumKVHeads < a.NumHeads {
		k = repeatHeads(k, a.NumHeads/a.NumKVHeads)
		v = repeatHeads(v, a.NumHeads/a.NumKVHeads)
	}

	offset := cache.Len()
	if err := a.rope.Apply(q, offset); err != nil {
		return nil, nil, err
	}
	if err := a.rope.Apply(k, offset); err != nil {
		return nil, nil, err
	}

	var full *KVCache
	if cache != nil {
		full = &KVCache{K: appendSeq(cache.K, k), V: appendSeq(cache.V, v)}
	} else {
		full = &KVCache{K: k, V: v}
	}
	keys, values := full.K, full.V
	total := keys.Shape[2]

	if mask != nil {
		if mask.Shape[0] != seq || mask.Shape[1] != seq {
			return nil, nil, fmt.Errorf("mask shape %v does not match sequence length %d", mask.Shape, seq)
		}
	}

	scale := float32(1.0 / math.Sqrt(float64(a.HeadDim)))
	out := tensor.New(batch, seq, a.NumHeads*a.HeadDim)
	scores := make([]float32, total)
	for b := 0; b < batch; b++ {
		for h := 0; h < a.NumHeads; h++ {
			for s := 0; s < seq; s++ {
				qRow := q.Data[(((b*a.NumHeads+h)*seq)+s)*a.HeadDim:][:a.HeadDim]
				for t := 0; t < total; t++ {
					kRow := keys.Data[(((b*a.NumHeads+h)*total)+t)*a.HeadDim:][:a.HeadDim]
					scores[t] = tensor.Dot(qRow, kRow) * scale
				}
				if mask != nil {
					maskRow := mask.Data[s*seq : (s+1)*seq]
					for j, mv := range maskRow {
						scores[total-seq+j] += mv
					}
				}
				tensor.Softmax(scores)

				oRow := out.Data[((b*seq+s)*a.NumHeads+h)*a.HeadDim:][:a.HeadDim]
				for t := 0; t < total; t++ {
					vRow := values.Data[(((b*a.NumHeads+h)*total)+t)*a.HeadDim:][:a.HeadDim]
					w := scores[t]
					for d := 0; d < a.HeadDim; d++ {
						oRow[d] += w * vRow[d]
					}
				}
			}
		}
	}

	return tensor.Linear(a.Wo, out), full, nil
}

// splitHeads reshapes [batch, seq, heads*headDim] to [batch, heads, seq, headDim].
func splitHeads(x *tensor.Tensor, heads, headDim int) *tensor.Tensor {
	batch, seq := x.Shape[0], x.Shape[1]
	out := tensor.New(batch, heads, seq, headDim)
	for b := 0; b < batch; b++ {
		for s := 0; s < seq; s++ {
			for h := 0; h < heads; h++ {
				src := x.Data[((b*seq+s)*heads+h)*headDim:][:headDim]
				dst := out.Data[((b*heads+h)*seq+s)*headDim:][:headDim]
				copy(dst, src)
			}
		}
	}
	return out
}

// repeatHeads expands [batch, kvHeads, seq, headDim] to
// [batch, kvHeads*groups, seq, headDim] by repeating each head groups times
// as a contiguous block, so expanded head h originates from kv head h/groups.
func repeatHeads(x *tensor.Tensor, groups int) *tensor.Tensor {
	batch, kvHeads, seq, headDim := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	out := tensor.New(batch, kvHeads*groups, seq, headDim)
	rowLen := seq * headDim
	for b := 0; b < batch; b++ {
		for h := 0; h < kvHeads; h++ {
			src := x.Data[(b*kvHeads+h)*rowLen:][:rowLen]
			for g := 0; g < groups; g++ {
				dst := out.Data[(b*kvHeads*groups+h*groups+g)*rowLen:][:rowLen]
				copy(dst, src)
			}
		}
	}
	return out
}
