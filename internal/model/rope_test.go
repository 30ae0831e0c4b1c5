package model

import (
	"testing"

	"github.com/kiln-llm/kiln/internal/tensor"
)

func testRopeConfig() Config {
	return Config{
		HiddenSize:        32,
		NumHiddenLayers:   1,
		NumAttentionHeads: 4,
		NumKeyValueHeads:  2,
		MaxPosition:       128,
		RMSNormEps:        1e-5,
		IntermediateSize:  64,
		VocabSize:         16,
		RopeTheta:         10000,
	}
}

func TestRopeOffsetContinuity(t *testing.T) {
	cfg := testRopeConfig()
	rope := NewRope(&cfg)
	headDim := cfg.HeadDim()

	const seq = 6
	full := tensor.New(1, 1, seq, headDim)
	fillTestData(full.Data, 0.1)
	half := len(full.Data) / 2
	chunkA := tensor.FromData(append([]float32(nil), full.Data[:half]...), 1, 1, seq/2, headDim)
	chunkB := tensor.FromData(append([]float32(nil), full.Data[half:]...), 1, 1, seq/2, headDim)

	if err := rope.Apply(full, 0); err != nil {
		t.Fatal(err)
	}
	if err := rope.Apply(chunkA, 0); err != nil {
		t.Fatal(err)
	}
	if err := rope.Apply(chunkB, seq/2); err != nil {
		t.Fatal(err)
	}

	// Rotating the second half at offset seq/2 must line up with rotating
	// the whole sequence at once.
	compareSlices(t, chunkA.Data, full.Data[:half], 1e-5)
	compareSlices(t, chunkB.Data, full.Data[half:], 1e-5)
}

func TestRopePositionZeroIsIdentity(t *testing.T) {
	cfg := testRopeConfig()
	rope := NewRope(&cfg)
	headDim := cfg.HeadDim()

	x := tensor.New(1, 1, 1, headDim)
	fillTestData(x.Data, 0.3)
	orig := append([]float32(nil), x.Data...)

	if err := rope.Apply(x, 0); err != nil {
		t.Fatal(err)
	}
	// cos(0)=1, sin(0)=0 for every frequency.
	compareSlices(t, x.Data, orig, 1e-6)
}

func TestRopeIncrementalMatchesFull(t *testing.T) {
	cfg := testRopeConfig()
	rope := NewRope(&cfg)
	headDim := cfg.HeadDim()

	const seq = 5
	full := tensor.New(1, 1, seq, headDim)
	fillTestData(full.Data, 0.2)

	// Rotate the same rows one position at a time with explicit offsets.
	var inc []float32
	for s := 0; s < seq; s++ {
		row := tensor.FromData(append([]float32(nil), full.Data[s*headDim:(s+1)*headDim]...), 1, 1, 1, headDim)
		if err := rope.Apply(row, s); err != nil {
			t.Fatal(err)
		}
		inc = append(inc, row.Data...)
	}

	if err := rope.Apply(full, 0); err != nil {
		t.Fatal(err)
	}
	compareSlices(t, inc, full.Data, 1e-5)
}

func TestRopePreservesNorm(t *testing.T) {
	cfg := testRopeConfig()
	rope := NewRope(&cfg)
	headDim := cfg.HeadDim()

	x := tensor.New(1, 1, 1, headDim)
	fillTestData(x.Data, 0.25)
	before := tensor.Dot(x.Data, x.Data)

	if err := rope.Apply(x, 17); err != nil {
		t.Fatal(err)
	}
	after := tensor.Dot(x.Data, x.Data)

	// Rotation never changes vector length.
	if diff := before - after; diff < -1e-3 || diff > 1e-3 {
		t.Fatalf("norm changed under rotation: before %v after %v", before, after)
	}
}

func TestRopeScalingDividesFrequencies(t *testing.T) {
	base := testRopeConfig()
	scaled := testRopeConfig()
	scaled.RopeScaling = &RopeScaling{Type: "linear", Factor: 2}

	r1 := NewRope(&base)
	r2 := NewRope(&scaled)

	for i := range r1.invFreq {
		want := r1.invFreq[i] / 2
		if got := r2.invFreq[i]; got < want-1e-12 || got > want+1e-12 {
			t.Fatalf("invFreq[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestRopeApplyErrors(t *testing.T) {
	cfg := testRopeConfig()
	rope := NewRope(&cfg)
	headDim := cfg.HeadDim()

	if err := rope.Apply(tensor.New(1, 1, 1, headDim), -1); err == nil {
		t.Fatal("expected error for negative offset")
	}
	if err := rope.Apply(tensor.New(1, headDim), 0); err == nil {
		t.Fatal("expected error for non 4-D input")
	}
	if err := rope.Apply(tensor.New(1, 1, 1, headDim+2), 0); err == nil {
		t.Fatal("expected error for head dim mismatch")
	}
}
