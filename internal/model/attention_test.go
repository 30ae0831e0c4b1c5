package model

import (
	"testing"

	"github.com/kiln-llm/kiln/internal/tensor"
)

func testAttention(cfg Config, seed int64) *Attention {
	headDim := cfg.HeadDim()
	mat := func(r, c int, s int64) *tensor.Tensor {
		m := tensor.New(r, c)
		m.FillRand(s)
		return m
	}
	return &Attention{
		Wq:         mat(cfg.NumAttentionHeads*headDim, cfg.HiddenSize, seed),
		Wk:         mat(cfg.NumKeyValueHeads*headDim, cfg.HiddenSize, seed+1),
		Wv:         mat(cfg.NumKeyValueHeads*headDim, cfg.HiddenSize, seed+2),
		Wo:         mat(cfg.HiddenSize, cfg.NumAttentionHeads*headDim, seed+3),
		NumHeads:   cfg.NumAttentionHeads,
		NumKVHeads: cfg.NumKeyValueHeads,
		HeadDim:    headDim,
		rope:       NewRope(&cfg),
	}
}

func TestRepeatHeadsBlockOrder(t *testing.T) {
	// Two kv heads, two groups: expanded head h must read kv head h/2.
	x := tensor.New(1, 2, 1, 2)
	copy(x.Data, []float32{1, 2, 3, 4})

	out := repeatHeads(x, 2)
	if out.Dim(1) != 4 {
		t.Fatalf("expanded heads = %d, want 4", out.Dim(1))
	}
	want := []float32{1, 2, 1, 2, 3, 4, 3, 4}
	compareSlices(t, out.Data, want, 0)
}

func TestSplitHeadsLayout(t *testing.T) {
	// [1, 2, 4] with 2 heads of dim 2: position-major in, head-major out.
	x := tensor.FromData([]float32{
		0, 1, 2, 3, // position 0: head0=(0,1) head1=(2,3)
		4, 5, 6, 7, // position 1
	}, 1, 2, 4)

	out := splitHeads(x, 2, 2)
	want := []float32{
		0, 1, 4, 5, // head 0, positions 0..1
		2, 3, 6, 7, // head 1
	}
	compareSlices(t, out.Data, want, 0)
}

func TestAttentionMaskHidesFuture(t *testing.T) {
	cfg := testRopeConfig()
	attn := testAttention(cfg, 42)

	x3 := tensor.New(1, 3, cfg.HiddenSize)
	fillTestData(x3.Data, 0.02)
	out3, _, err := attn.Forward(x3, tensor.CausalMask(3), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Same prefix with the third token changed: positions 0 and 1 must be
	// unaffected.
	x3b := x3.Clone()
	for i := 2 * cfg.HiddenSize; i < 3*cfg.HiddenSize; i++ {
		x3b.Data[i] += 1
	}
	out3b, _, err := attn.Forward(x3b, tensor.CausalMask(3), nil)
	if err != nil {
		t.Fatal(err)
	}

	prefix := 2 * cfg.HiddenSize
	compareSlices(t, out3b.Data[:prefix], out3.Data[:prefix], 1e-5)
}

func TestAttentionIncrementalMatchesFull(t *testing.T) {
	cfg := testRopeConfig()
	attn := testAttention(cfg, 7)

	const seq = 4
	x := tensor.New(1, seq, cfg.HiddenSize)
	fillTestData(x.Data, 0.03)

	full, _, err := attn.Forward(x, tensor.CausalMask(seq), nil)
	if err != nil {
		t.Fatal(err)
	}

	var cache *KVCache
	var inc []float32
	for s := 0; s < seq; s++ {
		step := tensor.FromData(
			append([]float32(nil), x.Data[s*cfg.HiddenSize:(s+1)*cfg.HiddenSize]...),
			1, 1, cfg.HiddenSize)
		var out *tensor.Tensor
		out, cache, err = attn.Forward(step, nil, cache)
		if err != nil {
			t.Fatal(err)
		}
		inc = append(inc, out.Data...)
	}

	if cache.Len() != seq {
		t.Fatalf("cache length = %d, want %d", cache.Len(), seq)
	}
	compareSlices(t, inc, full.Data, 1e-4)
}

func TestAttentionCacheGrowth(t *testing.T) {
	cfg := testRopeConfig()
	attn := testAttention(cfg, 3)

	x := tensor.New(1, 2, cfg.HiddenSize)
	fillTestData(x.Data, 0.05)
	_, cache, err := attn.Forward(x, tensor.CausalMask(2), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 2 {
		t.Fatalf("cache length = %d, want 2", cache.Len())
	}
	if cache.K.Dim(1) != cfg.NumAttentionHeads {
		t.Fatalf("cached kv heads = %d, want %d (stored post-repeat)", cache.K.Dim(1), cfg.NumAttentionHeads)
	}

	step := tensor.New(1, 1, cfg.HiddenSize)
	fillTestData(step.Data, 0.04)
	_, cache, err = attn.Forward(step, nil, cache)
	if err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 3 {
		t.Fatalf("cache length after step = %d, want 3", cache.Len())
	}
}

func TestAttentionBadMaskShape(t *testing.T) {
	cfg := testRopeConfig()
	attn := testAttention(cfg, 9)

	x := tensor.New(1, 2, cfg.HiddenSize)
	if _, _, err := attn.Forward(x, tensor.CausalMask(3), nil); err == nil {
		t.Fatal("expected error for mask/sequence shape mismatch")
	}
}

func fillTestData(x []float32, scale float32) {
	for i := range x {
		x[i] = scale * float32((i%29)-14)
	}
}

func compareSlices(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		g := got[i]
		w := want[i]
		if g < w-tol || g > w+tol {
			t.Fatalf("mismatch at %d: got %v want %v±%v", i, g, w, tol)
		}
	}
}
