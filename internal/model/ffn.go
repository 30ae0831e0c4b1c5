package model

import "github.com/kiln-llm/kiln/internal/tensor"

// FeedForward is the gated SwiGLU projection: down(silu(gate(x)) * up(x)).
// Gate and Up project hidden to intermediate, Down projects back. No biases.
type FeedForward struct {
	Gate *tensor.Tensor
	Up   *tensor.Tensor
	Down *tensor.Tensor
}

// Forward applies the block to x, shaped [..., hidden].
func (f *FeedForward) Forward(x *tensor.Tensor) *tensor.Tensor {
	gate := tensor.Linear(f.Gate, x)
	up := tensor.Linear(f.Up, x)
	for i := range gate.Data {
		gate.Data[i] = tensor.Silu(gate.Data[i]) * up.Data[i]
	}
	return tensor.Linear(f.Down, gate)
}
