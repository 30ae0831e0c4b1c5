package tensor

// MatVec computes dst = w @ x where w is a 2-D [rows, cols] weight tensor and
// x has length cols. dst must have length rows. This matches the layout of
// transformer linear weights, which are stored row-major as [out, in].
func MatVec(dst []float32, w *Tensor, x []float32) {
	if len(w.Shape) != 2 {
		panic("MatVec requires a 2-D weight tensor")
	}
	rows, cols := w.Shape[0], w.Shape[1]
	if len(x) != cols {
		panic("MatVec input length mismatch")
	}
	if len(dst) != rows {
		panic("MatVec output length mismatch")
	}
	for r := 0; r < rows; r++ {
		row := w.Data[r*cols : (r+1)*cols]
		var sum float32
		for c := 0; c < cols; c++ {
			sum += row[c] * x[c]
		}
		dst[r] = sum
	}
}

// Linear applies a linear projection with weight w [out, in] to every
// position of x, whose innermost dimension must equal in. The result has the
// same shape as x with the innermost dimension replaced by out. No bias.
func Linear(w *Tensor, x *Tensor) *Tensor {
	if len(w.Shape) != 2 {
		panic("Linear requires a 2-D weight tensor")
	}
	out, in := w.Shape[0], w.Shape[1]
	inner := x.Shape[len(x.Shape)-1]
	if inner != in {
		panic("Linear input dimension mismatch")
	}
	positions := x.Len() / inner

	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = out
	y := New(shape...)
	for p := 0; p < positions; p++ {
		MatVec(y.Data[p*out:(p+1)*out], w, x.Data[p*inner:(p+1)*inner])
	}
	return y
}
