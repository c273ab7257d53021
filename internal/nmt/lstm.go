package nmt

import "github.com/samcharles93/rnmt/internal/tensor"

// LSTMCell is a single LSTM step with the four gates (input, forget, output,
// candidate) computed by one affine map over [x; h].
type LSTMCell struct {
	Gates  *tensor.Linear
	Hidden int

	xh    []float32
	gates []float32
}

func NewLSTMCell(in, hidden int) *LSTMCell {
	return &LSTMCell{
		Gates:  tensor.NewLinear(in+hidden, 4*hidden, true),
		Hidden: hidden,
		xh:     make([]float32, in+hidden),
		gates:  make([]float32, 4*hidden),
	}
}

// In is the input width.
func (c *LSTMCell) In() int { return c.Gates.In() - c.Hidden }

// Step writes the next hidden and cell vectors. h and cell are read only;
// hOut and cOut must not alias them.
func (c *LSTMCell) Step(hOut, cOut, x, h, cell []float32) {
	xh := tensor.Concat(c.xh, x, h)
	c.Gates.Apply(c.gates, xh)
	n := c.Hidden
	ig, fg, og, gg := c.gates[:n], c.gates[n:2*n], c.gates[2*n:3*n], c.gates[3*n:]
	for j := 0; j < n; j++ {
		cj := tensor.Sigmoid(fg[j])*cell[j] + tensor.Sigmoid(ig[j])*tensor.Tanh(gg[j])
		cOut[j] = cj
		hOut[j] = tensor.Sigmoid(og[j]) * tensor.Tanh(cj)
	}
}
