package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Scale multiplies every element of x by s.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// AddScaled computes dst += s*src.
func AddScaled(dst, src []float32, s float32) {
	for i := range dst {
		dst[i] += s * src[i]
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

// Concat writes a followed by b into dst and returns dst[:len(a)+len(b)].
func Concat(dst, a, b []float32) []float32 {
	dst = dst[:len(a)+len(b)]
	copy(dst, a)
	copy(dst[len(a):], b)
	return dst
}

// LayerNorm normalises src to zero mean and unit variance, then applies the
// optional affine gamma/beta. dst and src may alias.
func LayerNorm(dst, src, gamma, beta []float32, eps float32) {
	if len(src) == 0 {
		return
	}
	var mean float64
	for _, v := range src {
		mean += float64(v)
	}
	mean /= float64(len(src))
	var variance float64
	for _, v := range src {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(src))
	inv := 1.0 / math.Sqrt(variance+float64(eps))
	for i, v := range src {
		x := float32((float64(v) - mean) * inv)
		if gamma != nil {
			x *= gamma[i]
		}
		if beta != nil {
			x += beta[i]
		}
		dst[i] = x
	}
}

// Softmax applies the softmax function to x.
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

// LogSoftmax replaces x with log(softmax(x)). Large negative entries (such as
// forbidden-token biases) stay large and negative; no NaN is produced as long
// as x holds at least one finite value.
func LogSoftmax(x []float32) {
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
		sum += math.Exp(float64(x[i] - maxv))
	}
	lse := float64(maxv) + math.Log(sum)
	for i := range x {
		x[i] = float32(float64(x[i]) - lse)
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Tanh computes the hyperbolic tangent.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// Relu applies max(0, x) in place.
func Relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}
