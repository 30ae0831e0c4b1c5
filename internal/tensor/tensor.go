package tensor

import "math/rand"

// Tensor is a dense row-major float32 tensor.
//
// Shape holds the dimension sizes, outermost first. Data holds the flattened
// values; its length is always the product of Shape. Tensor does not perform
// any memory safety beyond the checks performed by Go's slice types;
// out-of-range indices will panic.
type Tensor struct {
	Data  []float32
	Shape []int
}

// New allocates a zero-initialised tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic("negative dimension for tensor")
		}
		n *= d
	}
	return &Tensor{
		Data:  make([]float32, n),
		Shape: append([]int(nil), shape...),
	}
}

// FromData wraps existing data in a tensor. It checks that the data length
// matches the product of the shape.
func FromData(data []float32, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		panic("data length mismatch")
	}
	return &Tensor{
		Data:  data,
		Shape: append([]int(nil), shape...),
	}
}

// Dim returns the size of the i-th dimension.
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		Data:  make([]float32, len(t.Data)),
		Shape: append([]int(nil), t.Shape...),
	}
	copy(out.Data, t.Data)
	return out
}

// Row returns a view of row i of a 2-D tensor. Modifications to the returned
// slice update the underlying tensor values.
func (t *Tensor) Row(i int) []float32 {
	if len(t.Shape) != 2 {
		panic("Row requires a 2-D tensor")
	}
	c := t.Shape[1]
	if i < 0 || i >= t.Shape[0] {
		panic("row index out of range")
	}
	return t.Data[i*c : (i+1)*c]
}

// FillRand fills the tensor with reproducible pseudo-random values in a small
// range around zero to avoid overflow in accumulations. The same seed always
// produces the same values.
func (t *Tensor) FillRand(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}
