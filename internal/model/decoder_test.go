package model

import (
	"strings"
	"testing"
)

func testDecoderConfig() Config {
	return Config{
		HiddenSize:        32,
		NumHiddenLayers:   2,
		NumAttentionHeads: 4,
		NumKeyValueHeads:  2,
		MaxPosition:       128,
		RMSNormEps:        1e-5,
		IntermediateSize:  64,
		VocabSize:         10,
		RopeTheta:         10000,
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero hidden", func(c *Config) { c.HiddenSize = 0 }, "hidden_size"},
		{"zero layers", func(c *Config) { c.NumHiddenLayers = 0 }, "num_hidden_layers"},
		{"zero heads", func(c *Config) { c.NumAttentionHeads = 0 }, "num_attention_heads"},
		{"zero kv heads", func(c *Config) { c.NumKeyValueHeads = 0 }, "num_key_value_heads"},
		{"kv exceeds heads", func(c *Config) { c.NumKeyValueHeads = 8 }, "exceeds"},
		{"hidden not divisible", func(c *Config) { c.HiddenSize = 30 }, "not divisible"},
		{"heads not divisible by kv", func(c *Config) { c.NumKeyValueHeads = 3 }, "not divisible"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testDecoderConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	cfg := testDecoderConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestNewRejectsBadWeightShapes(t *testing.T) {
	cfg := testDecoderConfig()
	dec, err := NewRandom(cfg, 1)
	if err != nil {
		t.Fatal(err)
	}

	w := &Weights{
		Embedding: dec.Embedding,
		Output:    dec.Embedding, // right shape, fine
		Layers:    make([]LayerWeights, cfg.NumHiddenLayers),
	}
	if _, err := New(cfg, w); err == nil {
		t.Fatal("expected error for missing layer weights")
	}
}

func TestNewRandomDeterministic(t *testing.T) {
	cfg := testDecoderConfig()
	a, err := NewRandom(cfg, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRandom(cfg, 42)
	if err != nil {
		t.Fatal(err)
	}
	compareSlices(t, a.Embedding.Data, b.Embedding.Data, 0)
	compareSlices(t, a.Blocks[1].Attn.Wq.Data, b.Blocks[1].Attn.Wq.Data, 0)
}

func TestDecoderForwardShapes(t *testing.T) {
	cfg := testDecoderConfig()
	dec, err := NewRandom(cfg, 5)
	if err != nil {
		t.Fatal(err)
	}

	logits, caches, err := dec.Forward([][]int{{1, 2, 3}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if logits.Dim(0) != 1 || logits.Dim(1) != 3 || logits.Dim(2) != cfg.VocabSize {
		t.Fatalf("prompt logits shape = %v, want [1 3 %d]", logits.Shape, cfg.VocabSize)
	}
	if len(caches) != cfg.NumHiddenLayers {
		t.Fatalf("cache count = %d, want %d", len(caches), cfg.NumHiddenLayers)
	}
	for i, c := range caches {
		if c.Len() != 3 {
			t.Fatalf("layer %d cache length = %d, want 3", i, c.Len())
		}
	}

	// Three single-token steps; the cache grows by one each time.
	tok := 4
	for want := 4; want <= 6; want++ {
		logits, caches, err = dec.Forward([][]int{{tok}}, caches)
		if err != nil {
			t.Fatal(err)
		}
		if logits.Dim(1) != 1 {
			t.Fatalf("step logits shape = %v, want seq 1", logits.Shape)
		}
		for i, c := range caches {
			if c.Len() != want {
				t.Fatalf("layer %d cache length = %d, want %d", i, c.Len(), want)
			}
		}
	}
}

func TestDecoderIncrementalMatchesFull(t *testing.T) {
	cfg := testDecoderConfig()
	dec, err := NewRandom(cfg, 11)
	if err != nil {
		t.Fatal(err)
	}

	tokens := []int{1, 2, 3, 4}
	full, _, err := dec.Forward([][]int{tokens}, nil)
	if err != nil {
		t.Fatal(err)
	}

	prefix, caches, err := dec.Forward([][]int{tokens[:3]}, nil)
	if err != nil {
		t.Fatal(err)
	}
	step, _, err := dec.Forward([][]int{tokens[3:]}, caches)
	if err != nil {
		t.Fatal(err)
	}

	// Prefix logits and the cached single step must reproduce the one-shot
	// pass position for position.
	fullLast := full.Data[3*cfg.VocabSize : 4*cfg.VocabSize]
	compareSlices(t, step.Data, fullLast, 1e-3)
	compareSlices(t, prefix.Data, full.Data[:3*cfg.VocabSize], 1e-3)
}

func TestDecoderForwardErrors(t *testing.T) {
	cfg := testDecoderConfig()
	dec, err := NewRandom(cfg, 2)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := dec.Forward(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, _, err := dec.Forward([][]int{{}}, nil); err == nil {
		t.Fatal("expected error for empty sequence")
	}
	if _, _, err := dec.Forward([][]int{{cfg.VocabSize}}, nil); err == nil {
		t.Fatal("expected error for out-of-range token")
	}
	if _, _, err := dec.Forward([][]int{{1, 2}, {3}}, nil); err == nil {
		t.Fatal("expected error for ragged batch")
	}

	// Per-layer caches that disagree on length are rejected.
	_, caches, err := dec.Forward([][]int{{1, 2}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	caches[1] = nil
	if _, _, err := dec.Forward([][]int{{3}}, caches); err == nil {
		t.Fatal("expected error for diverging cache lengths")
	}
	if _, _, err := dec.Forward([][]int{{3}}, []*KVCache{nil}); err == nil {
		t.Fatal("expected error for wrong cache count")
	}
}

func TestDecoderBatchForward(t *testing.T) {
	cfg := testDecoderConfig()
	dec, err := NewRandom(cfg, 8)
	if err != nil {
		t.Fatal(err)
	}

	logits, _, err := dec.Forward([][]int{{1, 2}, {3, 4}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if logits.Dim(0) != 2 || logits.Dim(1) != 2 || logits.Dim(2) != cfg.VocabSize {
		t.Fatalf("batch logits shape = %v, want [2 2 %d]", logits.Shape, cfg.VocabSize)
	}

	// Each batch row is independent of the other.
	solo, _, err := dec.Forward([][]int{{1, 2}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	rowLen := 2 * cfg.VocabSize
	compareSlices(t, logits.Data[:rowLen], solo.Data, 1e-4)
}
