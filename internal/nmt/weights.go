package nmt

import (
	"fmt"
	"slices"

	"github.com/samcharles93/rnmt/internal/safetensors"
	"github.com/samcharles93/rnmt/internal/tensor"
)

// Param is a named view of one weight tensor. Data aliases the model.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}

func matParam(name string, m *tensor.Mat) Param {
	return Param{Name: name, Shape: []int{m.R, m.C}, Data: m.Data}
}

func vecParam(name string, v []float32) Param {
	return Param{Name: name, Shape: []int{len(v)}, Data: v}
}

func linearParams(prefix string, l *tensor.Linear) []Param {
	ps := []Param{matParam(prefix+".weight", &l.W)}
	if l.B != nil {
		ps = append(ps, vecParam(prefix+".bias", l.B))
	}
	return ps
}

func normParams(prefix string, n *Norm) []Param {
	if n == nil {
		return nil
	}
	return []Param{vecParam(prefix+".gamma", n.Gamma), vecParam(prefix+".beta", n.Beta)}
}

func attnParams(prefix string, a *Attention) []Param {
	var ps []Param
	ps = append(ps, linearParams(prefix+".q", a.Q)...)
	ps = append(ps, linearParams(prefix+".k", a.K)...)
	ps = append(ps, linearParams(prefix+".v", a.V)...)
	ps = append(ps, linearParams(prefix+".o", a.O)...)
	return ps
}

// Params lists every weight in a fixed order.
func (m *Model) Params() []Param {
	e, d := m.Encoder, m.Decoder
	ps := []Param{matParam("enc.emb", &e.Emb)}
	ps = append(ps, normParams("enc.layer.attn_norm", e.Layer.AttnNorm)...)
	ps = append(ps, attnParams("enc.layer.attn", e.Layer.Attn)...)
	ps = append(ps, normParams("enc.layer.ff_norm", e.Layer.FFNorm)...)
	ps = append(ps, linearParams("enc.layer.ff1", e.Layer.FF1)...)
	ps = append(ps, linearParams("enc.layer.ff2", e.Layer.FF2)...)
	ps = append(ps, linearParams("enc.halter", e.Halter)...)
	ps = append(ps, normParams("enc.out_norm", e.OutNorm)...)

	ps = append(ps, matParam("dec.emb", &d.Emb))
	cells := append([]*LSTMCell{d.First}, d.Layers...)
	for i, c := range cells {
		prefix := fmt.Sprintf("dec.layers.%d", i)
		ps = append(ps, linearParams(prefix+".cell", c.Gates)...)
		ps = append(ps, vecParam(prefix+".init_h", d.InitH[i]), vecParam(prefix+".init_c", d.InitC[i]))
	}
	if d.Projector != nil {
		ps = append(ps, linearParams("dec.projector", d.Projector)...)
	}
	ps = append(ps, attnParams("dec.attn", d.Attn)...)
	ps = append(ps, normParams("dec.out_norm", d.OutNorm)...)
	ps = append(ps, linearParams("dec.classifier", d.Classifier)...)
	return ps
}

// ParamCount is the total number of weights.
func (m *Model) ParamCount() int {
	n := 0
	for _, p := range m.Params() {
		n += len(p.Data)
	}
	return n
}

// Save writes every parameter to a safetensors file.
func (m *Model) Save(path string) error {
	w := safetensors.NewWriter()
	w.SetMetadata("format", "rnmt")
	for _, p := range m.Params() {
		if err := w.AddF32(p.Name, p.Shape, p.Data); err != nil {
			return err
		}
	}
	return w.WriteFile(path)
}

// Load reads every parameter from a safetensors file and reapplies the
// forbidden classifier biases.
func (m *Model) Load(path string) error {
	f, err := safetensors.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, p := range m.Params() {
		info, ok := f.Tensor(p.Name)
		if !ok {
			return fmt.Errorf("%s: %w: %s", path, safetensors.ErrTensorNotFound, p.Name)
		}
		if !slices.Equal(info.Shape, p.Shape) {
			return fmt.Errorf("%s: tensor %s has shape %v, want %v", path, p.Name, info.Shape, p.Shape)
		}
		if err := f.ReadInto(p.Name, p.Data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	m.Decoder.FixLoad()
	return nil
}
