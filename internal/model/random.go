package model

import (
	"math/rand"

	"github.com/kiln-llm/kiln/internal/tensor"
)

// NewRandom builds a decoder with reproducible pseudo-random weights. It is
// used by tests and benchmarks; the same config and seed always produce the
// same model.
func NewRandom(cfg Config, seed int64) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	headDim := cfg.HeadDim()
	rng := rand.New(rand.NewSource(seed))

	randMat := func(r, c int) *tensor.Tensor {
		m := tensor.New(r, c)
		m.FillRand(rng.Int63())
		return m
	}
	onesVec := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}

	w := &Weights{
		Embedding: randMat(cfg.VocabSize, cfg.HiddenSize),
		Output:    randMat(cfg.VocabSize, cfg.HiddenSize),
		FinalNorm: onesVec(cfg.HiddenSize),
		Layers:    make([]LayerWeights, cfg.NumHiddenLayers),
	}
	for i := range w.Layers {
		w.Layers[i] = LayerWeights{
			Wq:       randMat(cfg.NumAttentionHeads*headDim, cfg.HiddenSize),
			Wk:       randMat(cfg.NumKeyValueHeads*headDim, cfg.HiddenSize),
			Wv:       randMat(cfg.NumKeyValueHeads*headDim, cfg.HiddenSize),
			Wo:       randMat(cfg.HiddenSize, cfg.NumAttentionHeads*headDim),
			Gate:     randMat(cfg.IntermediateSize, cfg.HiddenSize),
			Up:       randMat(cfg.IntermediateSize, cfg.HiddenSize),
			Down:     randMat(cfg.HiddenSize, cfg.IntermediateSize),
			AttnNorm: onesVec(cfg.HiddenSize),
			FFNNorm:  onesVec(cfg.HiddenSize),
		}
	}
	return New(cfg, w)
}
