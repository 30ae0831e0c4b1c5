package model

import "github.com/kiln-llm/kiln/internal/tensor"

// RMSNorm is root-mean-square normalization with a learned scale. The weight
// length equals the hidden size; the layer is otherwise stateless.
type RMSNorm struct {
	Weight []float32
	Eps    float32
}

// Forward normalizes the innermost axis of x.
func (n *RMSNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	inner := x.Shape[len(x.Shape)-1]
	out := tensor.New(x.Shape...)
	for p := 0; p < x.Len()/inner; p++ {
		tensor.RMSNorm(out.Data[p*inner:(p+1)*inner], x.Data[p*inner:(p+1)*inner], n.Weight, n.Eps)
	}
	return out
}
