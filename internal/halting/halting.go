// Package halting implements adaptive computation time aggregation: every
// position accumulates halting probability over repeated applications of a
// layer, stops contributing once the mass is within Epsilon of one, and the
// final output is the convex combination of the layer outputs it passed
// through.
package halting

import (
	"errors"
	"fmt"

	"github.com/samcharles93/rnmt/internal/tensor"
)

// DefaultEpsilon is the halting threshold: a position is done once
// 1 - cumulative mass drops below it.
const DefaultEpsilon = 0.01

// Mode selects between inference and training bookkeeping.
type Mode uint8

const (
	// Inference skips the penalty record.
	Inference Mode = iota
	// Training records the per-layer ponder penalty.
	Training
)

func (m Mode) String() string {
	switch m {
	case Inference:
		return "inference"
	case Training:
		return "training"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

var (
	ErrShape     = errors.New("halting: shape mismatch")
	ErrNoLayers  = errors.New("halting: no layer observed")
	ErrFinalized = errors.New("halting: accumulator already finalized")
)

// Trace carries the three aligned records an external ponder loss consumes.
// Weights and Penalties are indexed [layer][position]. Penalties is nil in
// Inference mode.
type Trace struct {
	Weights   [][]float32
	Penalties [][]float32
	Remainder []float32
	// Cumulative is the halting mass after each layer, before the remainder
	// correction.
	Cumulative [][]float32
	// Last is the layer index that received each position's remainder.
	Last []int
}

// Layers is the number of layers that were applied.
func (t *Trace) Layers() int { return len(t.Weights) }

// Accumulator tracks n positions across layers. It is owned by a single
// forward pass and is not safe for concurrent use.
type Accumulator struct {
	n       int
	eps     float64
	mode    Mode
	cum     []float64
	done    []bool
	last    []int
	ndone   int
	outputs []tensor.Mat
	trace   Trace
	final   bool
}

// New returns an accumulator for n positions. A non-positive eps selects
// DefaultEpsilon.
func New(n int, eps float64, mode Mode) *Accumulator {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	return &Accumulator{
		n:    n,
		eps:  eps,
		mode: mode,
		cum:  make([]float64, n),
		done: make([]bool, n),
		last: make([]int, n),
	}
}

// Observe records one layer application: out holds the layer output for
// every position (n rows) and p the raw halting probability per position.
// Probabilities are clamped so the cumulative mass never exceeds one, and
// positions that halted on an earlier layer receive weight 0. It reports
// whether every position is now done, which is the caller's signal to stop
// applying layers. out is retained, so the caller must not reuse its buffer.
func (a *Accumulator) Observe(out tensor.Mat, p []float32) (bool, error) {
	if a.final {
		return false, ErrFinalized
	}
	if out.R != a.n || len(p) != a.n {
		return false, fmt.Errorf("%w: %d outputs and %d probabilities for %d positions", ErrShape, out.R, len(p), a.n)
	}
	layer := len(a.outputs)
	w := make([]float32, a.n)
	cum := make([]float32, a.n)
	var pen []float32
	if a.mode == Training {
		pen = make([]float32, a.n)
	}
	for i := 0; i < a.n; i++ {
		if !a.done[i] {
			wi := min(max(float64(p[i]), 0), 1-a.cum[i])
			a.cum[i] += wi
			w[i] = float32(wi)
			a.last[i] = layer
			if 1-a.cum[i] < a.eps {
				a.done[i] = true
				a.ndone++
			}
		}
		cum[i] = float32(a.cum[i])
		if pen != nil && !a.done[i] {
			pen[i] = -1
		}
	}
	a.outputs = append(a.outputs, out)
	a.trace.Weights = append(a.trace.Weights, w)
	a.trace.Cumulative = append(a.trace.Cumulative, cum)
	if pen != nil {
		a.trace.Penalties = append(a.trace.Penalties, pen)
	}
	return a.AllDone(), nil
}

// AllDone reports whether every position has halted. An accumulator with no
// positions is trivially done.
func (a *Accumulator) AllDone() bool { return a.ndone == a.n }

// Finalize assigns each position's remainder 1 - mass to the last layer it
// contributed to, so its weights sum to one, and returns the weighted
// mixture of the retained layer outputs together with the trace.
func (a *Accumulator) Finalize() (tensor.Mat, *Trace, error) {
	if a.final {
		return tensor.Mat{}, nil, ErrFinalized
	}
	if len(a.outputs) == 0 {
		return tensor.Mat{}, nil, ErrNoLayers
	}
	a.final = true

	cols := a.outputs[0].C
	mix := tensor.NewMat(a.n, cols)
	rem := make([]float32, a.n)
	for i := 0; i < a.n; i++ {
		l := a.last[i]
		// The last weight absorbs the whole difference from one, computed in
		// float64 over the recorded float32 weights.
		var others float64
		for j, w := range a.trace.Weights {
			if j != l {
				others += float64(w[i])
			}
		}
		r := 1 - a.cum[i]
		rem[i] = float32(r)
		a.trace.Weights[l][i] = float32(1 - others)

		dst := mix.Row(i)
		for j := range a.outputs {
			if w := a.trace.Weights[j][i]; w != 0 {
				tensor.AddScaled(dst, a.outputs[j].Row(i), w)
			}
		}
	}
	a.trace.Remainder = rem
	a.trace.Last = append([]int(nil), a.last...)
	return mix, &a.trace, nil
}
