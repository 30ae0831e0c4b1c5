package tensor

import "math"

// maskNeg is the additive penalty used to forbid attention to a position.
// Large enough to zero out after softmax in float32, small enough to stay
// finite when added to finite scores.
const maskNeg = float32(-1e9)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// RMSNorm performs Root Mean Square Normalization over src into dst, scaled
// by weight. The mean-square reduction accumulates in float64 so precision
// loss does not compound across layers.
func RMSNorm(dst, src, weight []float32, eps float32) {
	var sum float64
	for _, v := range src {
		sum += float64(v) * float64(v)
	}
	mean := sum / float64(len(src))
	scale := float32(1.0 / math.Sqrt(mean+float64(eps)))
	for i := range src {
		dst[i] = src[i] * scale * weight[i]
	}
}

// Softmax applies the softmax function to x in place. The exponential sum
// accumulates in float64; the result is cast back to float32.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Silu computes the Sigmoid Linear Unit (SiLU) activation.
func Silu(x float32) float32 {
	return x * Sigmoid(x)
}

// CausalMask builds an additive [n, n] mask: zero where position i may attend
// to position j (j <= i) and a large negative value where it may not (j > i).
func CausalMask(n int) *Tensor {
	m := New(n, n)
	for i := 0; i < n; i++ {
		row := m.Data[i*n : (i+1)*n]
		for j := i + 1; j < n; j++ {
			row[j] = maskNeg
		}
	}
	return m
}
