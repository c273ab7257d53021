package nmt

import (
	"fmt"
	"math"

	"github.com/samcharles93/rnmt/internal/halting"
	"github.com/samcharles93/rnmt/internal/tensor"
	"github.com/samcharles93/rnmt/internal/vocab"
)

const encNormEps = 1e-6

// Norm is a layer norm with learned gain and bias.
type Norm struct {
	Gamma []float32
	Beta  []float32
	Eps   float32
}

func newNorm(n int, eps float32) *Norm {
	g := make([]float32, n)
	for i := range g {
		g[i] = 1
	}
	return &Norm{Gamma: g, Beta: make([]float32, n), Eps: eps}
}

func (n *Norm) Apply(dst, src []float32) { tensor.LayerNorm(dst, src, n.Gamma, n.Beta, n.Eps) }

// EncoderLayer is a pre-norm transformer block: self-attention and a
// position-wise feed-forward network, each with a residual connection.
type EncoderLayer struct {
	AttnNorm *Norm
	Attn     *Attention
	FFNorm   *Norm
	FF1      *tensor.Linear
	FF2      *tensor.Linear
}

func NewEncoderLayer(isize, ffsize, attnsize, heads int) *EncoderLayer {
	return &EncoderLayer{
		AttnNorm: newNorm(isize, encNormEps),
		Attn:     NewAttention(isize, isize, attnsize, isize, heads),
		FFNorm:   newNorm(isize, encNormEps),
		FF1:      tensor.NewLinear(isize, ffsize, true),
		FF2:      tensor.NewLinear(ffsize, isize, true),
	}
}

// Apply transforms one sequence x of shape [len x isize] with the given key
// pad mask and returns a new matrix.
func (l *EncoderLayer) Apply(x *tensor.Mat, mask []bool) tensor.Mat {
	normed := tensor.NewMat(x.R, x.C)
	for t := 0; t < x.R; t++ {
		l.AttnNorm.Apply(normed.Row(t), x.Row(t))
	}
	keys, values := l.Attn.Project(&normed)

	out := tensor.NewMat(x.R, x.C)
	attn := make([]float32, x.C)
	hidden := make([]float32, l.FF1.Out())
	ff := make([]float32, x.C)
	for t := 0; t < x.R; t++ {
		row := out.Row(t)
		l.Attn.Attend(attn, normed.Row(t), &keys, &values, mask)
		copy(row, x.Row(t))
		tensor.Add(row, attn)

		l.FFNorm.Apply(ff, row)
		l.FF1.Apply(hidden, ff)
		tensor.Relu(hidden)
		l.FF2.Apply(ff, hidden)
		tensor.Add(row, ff)
	}
	return out
}

// Encoded is the encoder output for a padded batch.
type Encoded struct {
	// Out holds one [width x isize] matrix per batch row.
	Out  []tensor.Mat
	Mask [][]bool
	// Trace is the halting record of the forward pass.
	Trace *halting.Trace
}

// Encoder embeds source tokens and applies a single shared EncoderLayer up
// to Layers times, letting every position halt on its own.
type Encoder struct {
	Emb     tensor.Mat
	Layer   *EncoderLayer
	Halter  *tensor.Linear
	OutNorm *Norm

	layers  int
	eps     float64
	maxLen  int
	posEmb  tensor.Mat
	depEmb  tensor.Mat
	scratch []float32
}

func NewEncoder(cfg Config) *Encoder {
	e := &Encoder{
		Emb:     tensor.NewMat(cfg.SrcVocabSize, cfg.ISize),
		Layer:   NewEncoderLayer(cfg.ISize, cfg.FFHSize, cfg.AttnSize(), cfg.NHead),
		Halter:  tensor.NewLinear(cfg.ISize, 1, true),
		layers:  cfg.EncLayers,
		eps:     cfg.HaltEpsilon,
		maxLen:  cfg.MaxSeqLen,
		posEmb:  sinusoid(cfg.MaxSeqLen, cfg.ISize),
		depEmb:  sinusoid(cfg.EncLayers, cfg.ISize),
		scratch: make([]float32, 1),
	}
	if cfg.NormOutput {
		e.OutNorm = newNorm(cfg.ISize, encNormEps)
	}
	return e
}

// sinusoid returns the standard sin/cos position table.
func sinusoid(n, d int) tensor.Mat {
	m := tensor.NewMat(n, d)
	for p := 0; p < n; p++ {
		row := m.Row(p)
		for i := 0; i < d; i += 2 {
			angle := float64(p) / math.Pow(10000, float64(i)/float64(d))
			row[i] = float32(math.Sin(angle))
			if i+1 < d {
				row[i+1] = float32(math.Cos(angle))
			}
		}
	}
	return m
}

// Encode runs the encoder over a padded batch. Pad positions take part in
// the halting computation but are masked as attention keys.
func (e *Encoder) Encode(b vocab.Batch, mode halting.Mode) (*Encoded, error) {
	rows, width := len(b.Tokens), b.Len()
	if width > e.maxLen {
		return nil, fmt.Errorf("nmt: source length %d exceeds max_seq_len %d", width, e.maxLen)
	}
	isize := e.Emb.C
	enc := &Encoded{Out: make([]tensor.Mat, rows), Mask: b.Mask}
	if rows == 0 || width == 0 {
		for i := range enc.Out {
			enc.Out[i] = tensor.NewMat(0, isize)
		}
		enc.Trace = &halting.Trace{}
		return enc, nil
	}

	// x holds every position of the batch, row-major by (batch row, position).
	x := tensor.NewMat(rows*width, isize)
	for r, seq := range b.Tokens {
		for t, id := range seq {
			if id < 0 || id >= e.Emb.R {
				return nil, fmt.Errorf("nmt: source token %d outside vocabulary of %d", id, e.Emb.R)
			}
			copy(x.Row(r*width+t), e.Emb.Row(id))
		}
	}

	acc := halting.New(rows*width, e.eps, mode)
	probs := make([]float32, rows*width)
	in := tensor.NewMat(width, isize)
	for layer := 0; layer < e.layers; layer++ {
		out := tensor.NewMat(rows*width, isize)
		for r := 0; r < rows; r++ {
			for t := 0; t < width; t++ {
				dst := in.Row(t)
				copy(dst, x.Row(r*width+t))
				tensor.Add(dst, e.posEmb.Row(t))
				tensor.Add(dst, e.depEmb.Row(layer))
			}
			y := e.Layer.Apply(&in, b.Mask[r])
			copy(out.Data[r*width*isize:(r+1)*width*isize], y.Data)
		}
		for i := range probs {
			e.Halter.Apply(e.scratch, out.Row(i))
			probs[i] = tensor.Sigmoid(e.scratch[0])
		}
		done, err := acc.Observe(out, probs)
		if err != nil {
			return nil, err
		}
		x = out
		if done {
			break
		}
	}

	mix, trace, err := acc.Finalize()
	if err != nil {
		return nil, err
	}
	if e.OutNorm != nil {
		for i := 0; i < mix.R; i++ {
			e.OutNorm.Apply(mix.Row(i), mix.Row(i))
		}
	}
	for r := 0; r < rows; r++ {
		out := tensor.NewMat(width, isize)
		copy(out.Data, mix.Data[r*width*isize:(r+1)*width*isize])
		enc.Out[r] = out
	}
	enc.Trace = trace
	return enc, nil
}
