package nmt

import (
	"fmt"

	"github.com/samcharles93/rnmt/internal/decode"
	"github.com/samcharles93/rnmt/internal/tensor"
	"github.com/samcharles93/rnmt/internal/vocab"
)

// forbiddenBias is the classifier bias of ids that must never be emitted.
const forbiddenBias = -1e32

// Decoder is a stacked LSTM decoder with cross attention. The first layer
// reads the token embedding; every upper layer reads [out; attn] where attn
// is the attention over the encoder output queried by the first layer.
// Every upper layer except the lowest adds a residual. The classifier scores
// [out; attn].
//
// A Decoder keeps scratch buffers and is not safe for concurrent use.
type Decoder struct {
	Emb        tensor.Mat
	First      *LSTMCell
	Layers     []*LSTMCell
	InitH      [][]float32
	InitC      [][]float32
	Projector  *tensor.Linear
	Attn       *Attention
	OutNorm    *Norm
	Classifier *tensor.Linear
	Forbidden  []int

	isize int
	out   []float32
	attn  []float32
	cat   []float32
}

func NewDecoder(cfg Config) *Decoder {
	n := cfg.ISize
	d := &Decoder{
		Emb:        tensor.NewMat(cfg.TgtVocabSize, n),
		First:      NewLSTMCell(n, n),
		Layers:     make([]*LSTMCell, cfg.DecLayers-1),
		InitH:      make([][]float32, cfg.DecLayers),
		InitC:      make([][]float32, cfg.DecLayers),
		Attn:       NewAttention(n, n, cfg.AttnSize(), n, cfg.NHead),
		Classifier: tensor.NewLinear(2*n, cfg.TgtVocabSize, true),
		Forbidden:  append([]int(nil), cfg.Forbidden...),
		isize:      n,
		out:        make([]float32, n),
		attn:       make([]float32, n),
		cat:        make([]float32, 2*n),
	}
	for i := range d.Layers {
		d.Layers[i] = NewLSTMCell(2*n, n)
	}
	for i := range d.InitH {
		d.InitH[i] = make([]float32, n)
		d.InitC[i] = make([]float32, n)
	}
	if cfg.Projector {
		d.Projector = tensor.NewLinear(n, n, false)
	}
	if cfg.NormOutput {
		d.OutNorm = newNorm(n, encNormEps)
	}
	return d
}

// Depth is the number of recurrent layers.
func (d *Decoder) Depth() int { return 1 + len(d.Layers) }

// Vocab is the target vocabulary size.
func (d *Decoder) Vocab() int { return d.Classifier.Out() }

// FixInit zeroes the pad embedding and pad classifier row, then applies
// FixLoad. Call it once after random initialisation.
func (d *Decoder) FixInit() {
	clear(d.Emb.Row(vocab.PadID))
	clear(d.Classifier.W.Row(vocab.PadID))
	d.FixLoad()
}

// FixLoad forces the classifier bias of every forbidden id to a large
// negative constant. Call it once after loading weights.
func (d *Decoder) FixLoad() {
	for _, id := range d.Forbidden {
		d.Classifier.B[id] = forbiddenBias
	}
}

// Memory prepares an encoded batch for decoding: the optional projector is
// applied once and the attention keys and values are precomputed.
func (d *Decoder) Memory(enc *Encoded) *Memory {
	n := len(enc.Out)
	m := &Memory{
		Enc:    make([]tensor.Mat, n),
		Keys:   make([]tensor.Mat, n),
		Values: make([]tensor.Mat, n),
		Mask:   make([][]bool, n),
	}
	for r := range enc.Out {
		var e tensor.Mat
		if d.Projector != nil {
			e = d.Projector.ApplyRows(&enc.Out[r])
		} else {
			e = enc.Out[r].Clone()
		}
		m.Enc[r] = e
		m.Keys[r], m.Values[r] = d.Attn.Project(&e)
		if r < len(enc.Mask) {
			m.Mask[r] = append([]bool(nil), enc.Mask[r]...)
		}
	}
	return m
}

// Step decodes one token for every candidate row. A nil st starts from the
// learned initial state. It returns log-probabilities and a fresh state; st
// and mem are not modified.
func (d *Decoder) Step(tokens []int, st decode.State, mem decode.Memory) (tensor.Mat, decode.State, error) {
	m, ok := mem.(*Memory)
	if !ok {
		return tensor.Mat{}, nil, fmt.Errorf("%w: unsupported memory %T", decode.ErrInvalidConfig, mem)
	}
	rows := len(tokens)
	if m.Rows() != rows {
		return tensor.Mat{}, nil, fmt.Errorf("%w: %d tokens for %d memory rows", decode.ErrInvalidConfig, rows, m.Rows())
	}
	var prev *State
	if st != nil {
		s, ok := st.(*State)
		if !ok {
			return tensor.Mat{}, nil, fmt.Errorf("%w: unsupported state %T", decode.ErrInvalidConfig, st)
		}
		if len(s.Layers) != d.Depth() {
			return tensor.Mat{}, nil, fmt.Errorf("%w: got %d, decoder has %d", ErrStateLayers, len(s.Layers), d.Depth())
		}
		if s.Rows() != rows {
			return tensor.Mat{}, nil, fmt.Errorf("%w: state has %d rows for %d tokens", decode.ErrInvalidConfig, s.Rows(), rows)
		}
		prev = s
	}

	next := newState(d.Depth(), rows, d.isize)
	logp := tensor.NewMat(rows, d.Vocab())
	for r, id := range tokens {
		if id < 0 || id >= d.Emb.R {
			return tensor.Mat{}, nil, fmt.Errorf("nmt: target token %d outside vocabulary of %d", id, d.Emb.R)
		}
		h, c := d.initial(prev, 0, r)
		ns := &next.Layers[0]
		d.First.Step(ns.Hidden.Row(r), ns.Cell.Row(r), d.Emb.Row(id), h, c)
		copy(d.out, ns.Hidden.Row(r))
		d.Attn.Attend(d.attn, d.out, &m.Keys[r], &m.Values[r], m.Mask[r])

		for i, cell := range d.Layers {
			h, c := d.initial(prev, i+1, r)
			ns := &next.Layers[i+1]
			cell.Step(ns.Hidden.Row(r), ns.Cell.Row(r), tensor.Concat(d.cat, d.out, d.attn), h, c)
			if i > 0 {
				tensor.Add(d.out, ns.Hidden.Row(r))
			} else {
				copy(d.out, ns.Hidden.Row(r))
			}
		}
		if d.OutNorm != nil {
			d.OutNorm.Apply(d.out, d.out)
		}
		row := logp.Row(r)
		d.Classifier.Apply(row, tensor.Concat(d.cat, d.out, d.attn))
		tensor.LogSoftmax(row)
	}
	return logp, next, nil
}

func (d *Decoder) initial(prev *State, layer, row int) (h, c []float32) {
	if prev == nil {
		return d.InitH[layer], d.InitC[layer]
	}
	return prev.Layers[layer].Hidden.Row(row), prev.Layers[layer].Cell.Row(row)
}

// Forward scores known target prefixes (teacher forcing). inputs holds one
// equally long token sequence per memory row, usually SOS followed by the
// reference shifted right. The result has one [len x vocab] matrix of
// log-probabilities per row.
func (d *Decoder) Forward(inputs [][]int, mem *Memory) ([]tensor.Mat, error) {
	if len(inputs) != mem.Rows() {
		return nil, fmt.Errorf("%w: %d inputs for %d memory rows", decode.ErrInvalidConfig, len(inputs), mem.Rows())
	}
	steps := 0
	if len(inputs) > 0 {
		steps = len(inputs[0])
	}
	out := make([]tensor.Mat, len(inputs))
	for r, seq := range inputs {
		if len(seq) != steps {
			return nil, fmt.Errorf("%w: input %d has length %d, want %d", decode.ErrInvalidConfig, r, len(seq), steps)
		}
		out[r] = tensor.NewMat(steps, d.Vocab())
	}
	tokens := make([]int, len(inputs))
	var st decode.State
	for t := 0; t < steps; t++ {
		for r, seq := range inputs {
			tokens[r] = seq[t]
		}
		lp, next, err := d.Step(tokens, st, mem)
		if err != nil {
			return nil, err
		}
		for r := range inputs {
			copy(out[r].Row(t), lp.Row(r))
		}
		st = next
	}
	return out, nil
}
