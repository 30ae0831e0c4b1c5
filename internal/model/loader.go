package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/kiln-llm/kiln/internal/safetensors"
	"github.com/kiln-llm/kiln/internal/tensor"
)

// Load reads config.json and model.safetensors from dir and builds a decoder.
// The config is validated before any tensor is read. Quantization, if any,
// was applied upstream; weights arrive here as f32, f16 or bf16.
func Load(dir string) (*Decoder, error) {
	cfg, err := LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, err
	}

	st, err := safetensors.Open(filepath.Join(dir, "model.safetensors"))
	if err != nil {
		return nil, err
	}

	w := &Weights{Layers: make([]LayerWeights, cfg.NumHiddenLayers)}
	if w.Embedding, err = loadMat(st, "model.embed_tokens.weight"); err != nil {
		return nil, err
	}
	if w.Output, err = loadMat(st, "lm_head.weight"); err != nil {
		return nil, err
	}
	if w.FinalNorm, err = loadVec(st, "model.norm.weight"); err != nil {
		return nil, err
	}

	for i := range w.Layers {
		lw := &w.Layers[i]
		prefix := fmt.Sprintf("model.layers.%d", i)
		mats := []struct {
			dst  **tensor.Tensor
			name string
		}{
			{&lw.Wq, prefix + ".self_attn.q_proj.weight"},
			{&lw.Wk, prefix + ".self_attn.k_proj.weight"},
			{&lw.Wv, prefix + ".self_attn.v_proj.weight"},
			{&lw.Wo, prefix + ".self_attn.o_proj.weight"},
			{&lw.Gate, prefix + ".mlp.gate_proj.weight"},
			{&lw.Up, prefix + ".mlp.up_proj.weight"},
			{&lw.Down, prefix + ".mlp.down_proj.weight"},
		}
		for _, m := range mats {
			if *m.dst, err = loadMat(st, m.name); err != nil {
				return nil, err
			}
		}
		if lw.AttnNorm, err = loadVec(st, prefix+".input_layernorm.weight"); err != nil {
			return nil, err
		}
		if lw.FFNNorm, err = loadVec(st, prefix+".post_attention_layernorm.weight"); err != nil {
			return nil, err
		}
	}

	return New(*cfg, w)
}

// LoadConfig reads and validates a HuggingFace-style config.json.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	return &cfg, nil
}

func loadMat(st *safetensors.File, name string) (*tensor.Tensor, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("tensor %s: expected 2-D shape, got %v", name, info.Shape)
	}
	return tensor.FromData(data, info.Shape...), nil
}

func loadVec(st *safetensors.File, name string) ([]float32, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 1 {
		return nil, fmt.Errorf("tensor %s: expected 1-D shape, got %v", name, info.Shape)
	}
	return data, nil
}
