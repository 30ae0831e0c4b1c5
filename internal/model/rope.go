package model

import (
	"fmt"
	"math"

	"github.com/kiln-llm/kiln/internal/tensor"
)

// Rope applies rotary position encoding to query and key tensors.
//
// The head dimension is split into two halves: dimension d rotates with
// dimension d+headDim/2 (the non-interleaved convention). Frequencies are
// precomputed as theta^(-2k/headDim); a linear rope scaling factor, when
// configured, divides them uniformly.
type Rope struct {
	headDim int
	invFreq []float64
}

// NewRope precomputes the frequency schedule for the given config.
func NewRope(cfg *Config) *Rope {
	headDim := cfg.HeadDim()
	invFreq := make([]float64, headDim/2)
	for i := range invFreq {
		power := float64(2*i) / float64(headDim)
		invFreq[i] = 1.0 / math.Pow(cfg.RopeTheta, power)
	}
	if rs := cfg.RopeScaling; rs != nil && rs.Factor != 1 {
		for i, f := range invFreq {
			invFreq[i] = f / rs.Factor
		}
	}
	return &Rope{headDim: headDim, invFreq: invFreq}
}

// Apply rotates x, shaped [batch, heads, seq, headDim], in place. Position i
// of the sequence rotates by the angles for absolute position offset+i, so a
// token decoded against a cache of length L uses offset L.
func (r *Rope) Apply(x *tensor.Tensor, offset int) error {
	if offset < 0 {
		return fmt.Errorf("rotary offset must be >= 0, got %d", offset)
	}
	if len(x.Shape) != 4 {
		return fmt.Errorf("rotary input must be 4-D, got shape %v", x.Shape)
	}
	if x.Shape[3] != r.headDim {
		return fmt.Errorf("rotary head dim mismatch: tensor has %d, want %d", x.Shape[3], r.headDim)
	}

	batch, heads, seq, headDim := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	half := headDim / 2
	for b := 0; b < batch; b++ {
		for h := 0; h < heads; h++ {
			for s := 0; s < seq; s++ {
				base := ((b*heads+h)*seq + s) * headDim
				pos := float64(offset + s)
				for k := 0; k < half; k++ {
					angle := pos * r.invFreq[k]
					c := float32(math.Cos(angle))
					sn := float32(math.Sin(angle))
					x0 := x.Data[base+k]
					x1 := x.Data[base+k+half]
					x.Data[base+k] = x0*c - x1*sn
					x.Data[base+k+half] = x0*sn + x1*c
				}
			}
		}
	}
	return nil
}
