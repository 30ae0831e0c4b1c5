package model

import "github.com/kiln-llm/kiln/internal/tensor"

// Block is one decoder layer: pre-norm residual attention followed by
// pre-norm residual feed-forward. Normalizing before each sub-layer rather
// than after is a fixed structural contract of the architecture.
type Block struct {
	Attn     *Attention
	FFN      *FeedForward
	AttnNorm *RMSNorm
	FFNNorm  *RMSNorm
}

// Forward runs the block over x, shaped [batch, seq, hidden], returning the
// output and this layer's grown cache entry.
func (blk *Block) Forward(x, mask *tensor.Tensor, cache *KVCache) (*tensor.Tensor, *KVCache, error) {
	attnOut, cache, err := blk.Attn.Forward(blk.AttnNorm.Forward(x), mask, cache)
	if err != nil {
		return nil, nil, err
	}
	h := x.Clone()
	tensor.Add(h.Data, attnOut.Data)

	ffnOut := blk.FFN.Forward(blk.FFNNorm.Forward(h))
	out := h.Clone()
	tensor.Add(out.Data, ffnOut.Data)
	return out, cache, nil
}
