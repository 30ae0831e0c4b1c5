package model

import "fmt"

// RopeScaling describes an optional scaling of the rotary frequencies.
type RopeScaling struct {
	Type   string  `json:"type"`
	Factor float64 `json:"factor"`
}

// Config holds the model hyperparameters. It is immutable after Validate.
// Field names mirror the HuggingFace config.json schema so a config can be
// decoded directly from disk.
type Config struct {
	HiddenSize        int          `json:"hidden_size"`
	NumHiddenLayers   int          `json:"num_hidden_layers"`
	NumAttentionHeads int          `json:"num_attention_heads"`
	NumKeyValueHeads  int          `json:"num_key_value_heads"`
	MaxPosition       int          `json:"max_position_embeddings"`
	RMSNormEps        float64      `json:"rms_norm_eps"`
	IntermediateSize  int          `json:"intermediate_size"`
	VocabSize         int          `json:"vocab_size"`
	RopeTheta         float64      `json:"rope_theta"`
	RopeScaling       *RopeScaling `json:"rope_scaling"`
}

// HeadDim returns the per-head dimension.
func (c *Config) HeadDim() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// Validate checks the structural invariants. It must pass before any tensor
// is allocated; a model must never be built from an inconsistent config.
func (c *Config) Validate() error {
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be positive, got %d", c.HiddenSize)
	}
	if c.NumHiddenLayers <= 0 {
		return fmt.Errorf("num_hidden_layers must be positive, got %d", c.NumHiddenLayers)
	}
	if c.NumAttentionHeads <= 0 {
		return fmt.Errorf("num_attention_heads must be positive, got %d", c.NumAttentionHeads)
	}
	if c.NumKeyValueHeads <= 0 {
		return fmt.Errorf("num_key_value_heads must be positive, got %d", c.NumKeyValueHeads)
	}
	if c.NumKeyValueHeads > c.NumAttentionHeads {
		return fmt.Errorf("num_key_value_heads %d exceeds num_attention_heads %d",
			c.NumKeyValueHeads, c.NumAttentionHeads)
	}
	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("hidden_size %d not divisible by num_attention_heads %d",
			c.HiddenSize, c.NumAttentionHeads)
	}
	if c.NumAttentionHeads%c.NumKeyValueHeads != 0 {
		return fmt.Errorf("num_attention_heads %d not divisible by num_key_value_heads %d",
			c.NumAttentionHeads, c.NumKeyValueHeads)
	}
	if c.HeadDim()%2 != 0 {
		return fmt.Errorf("head dimension %d must be even for rotary encoding", c.HeadDim())
	}
	if c.IntermediateSize <= 0 {
		return fmt.Errorf("intermediate_size must be positive, got %d", c.IntermediateSize)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.MaxPosition <= 0 {
		return fmt.Errorf("max_position_embeddings must be positive, got %d", c.MaxPosition)
	}
	if c.RMSNormEps <= 0 {
		return fmt.Errorf("rms_norm_eps must be positive, got %g", c.RMSNormEps)
	}
	if c.RopeTheta <= 0 {
		return fmt.Errorf("rope_theta must be positive, got %g", c.RopeTheta)
	}
	if c.RopeScaling != nil && c.RopeScaling.Factor <= 0 {
		return fmt.Errorf("rope_scaling.factor must be positive, got %g", c.RopeScaling.Factor)
	}
	return nil
}
