package model

import (
	"fmt"

	"github.com/kiln-llm/kiln/internal/tensor"
)

// KVCache holds the accumulated key and value tensors for one layer, shaped
// [batch, heads, seq, headDim] with the query head count (keys and values are
// stored post-expansion). It grows by concatenation along the sequence axis,
// one step at a time, and never shrinks. A cache is exclusively owned by one
// generation session.
type KVCache struct {
	K *tensor.Tensor
	V *tensor.Tensor
}

// Len returns the cached sequence length.
func (c *KVCache) Len() int {
	if c == nil || c.K == nil {
		return 0
	}
	return c.K.Shape[2]
}

// appendSeq concatenates next onto prev along the sequence axis (axis 2 of a
// [batch, heads, seq, headDim] tensor). prev may be nil.
func appendSeq(prev, next *tensor.Tensor) *tensor.Tensor {
	if prev == nil {
		return next
	}
	batch, heads, prevSeq, headDim := prev.Shape[0], prev.Shape[1], prev.Shape[2], prev.Shape[3]
	nextSeq := next.Shape[2]
	out := tensor.New(batch, heads, prevSeq+nextSeq, headDim)
	for b := 0; b < batch; b++ {
		for h := 0; h < heads; h++ {
			dst := out.Data[((b*heads+h)*(prevSeq+nextSeq))*headDim:]
			src := prev.Data[((b*heads+h)*prevSeq)*headDim:]
			copy(dst[:prevSeq*headDim], src[:prevSeq*headDim])
			src = next.Data[((b*heads+h)*nextSeq)*headDim:]
			copy(dst[prevSeq*headDim:(prevSeq+nextSeq)*headDim], src[:nextSeq*headDim])
		}
	}
	return out
}

// checkCaches verifies that the per-layer caches agree in length. Diverging
// lengths mean the cache has been corrupted and the request must fail.
func checkCaches(caches []*KVCache) error {
	want := caches[0].Len()
	for i, c := range caches {
		if c.Len() != want {
			return fmt.Errorf("kv cache corrupted: layer 0 has %d positions, layer %d has %d",
				want, i, c.Len())
		}
	}
	return nil
}
