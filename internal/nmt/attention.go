package nmt

import (
	"math"

	"github.com/samcharles93/rnmt/internal/tensor"
)

// maskedScore replaces attention scores of padded keys. It is finite so a
// fully masked row still normalises to a uniform distribution instead of NaN.
const maskedScore = -1e9

// Attention is multi-head scaled dot-product attention with separate query,
// key, value and output projections.
type Attention struct {
	Heads int
	Q     *tensor.Linear
	K     *tensor.Linear
	V     *tensor.Linear
	O     *tensor.Linear

	q      []float32
	ctx    []float32
	scores []float32
}

// NewAttention maps queries of width qsize and keys of width ksize through
// hsize hidden units back to osize.
func NewAttention(qsize, ksize, hsize, osize, heads int) *Attention {
	return &Attention{
		Heads: heads,
		Q:     tensor.NewLinear(qsize, hsize, true),
		K:     tensor.NewLinear(ksize, hsize, true),
		V:     tensor.NewLinear(ksize, hsize, true),
		O:     tensor.NewLinear(hsize, osize, true),
		q:     make([]float32, hsize),
		ctx:   make([]float32, hsize),
	}
}

// Project computes the keys and values of a sequence.
func (a *Attention) Project(x *tensor.Mat) (keys, values tensor.Mat) {
	return a.K.ApplyRows(x), a.V.ApplyRows(x)
}

// Attend writes the attention output for one query into dst. mask marks
// padded key positions and may be nil. With no keys the output is the
// projection of a zero context.
func (a *Attention) Attend(dst, query []float32, keys, values *tensor.Mat, mask []bool) {
	a.Q.Apply(a.q, query)
	clear(a.ctx)
	n := keys.R
	if n > 0 {
		if cap(a.scores) < n {
			a.scores = make([]float32, n)
		}
		scores := a.scores[:n]
		hd := len(a.q) / a.Heads
		scale := float32(1 / math.Sqrt(float64(hd)))
		for h := 0; h < a.Heads; h++ {
			lo, hi := h*hd, (h+1)*hd
			qh := a.q[lo:hi]
			for t := 0; t < n; t++ {
				if mask != nil && mask[t] {
					scores[t] = maskedScore
					continue
				}
				scores[t] = tensor.Dot(qh, keys.Row(t)[lo:hi]) * scale
			}
			tensor.Softmax(scores)
			ch := a.ctx[lo:hi]
			for t := 0; t < n; t++ {
				tensor.AddScaled(ch, values.Row(t)[lo:hi], scores[t])
			}
		}
	}
	a.O.Apply(dst, a.ctx)
}
