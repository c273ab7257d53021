// Package nmt is the translation model: an adaptive-depth transformer
// encoder and a stacked LSTM decoder with cross attention. The decoder
// implements decode.Stepper so the decode package drives it.
package nmt

import (
	"context"
	"strings"
	"sync"

	"github.com/samcharles93/rnmt/internal/decode"
	"github.com/samcharles93/rnmt/internal/halting"
	"github.com/samcharles93/rnmt/internal/tensor"
	"github.com/samcharles93/rnmt/internal/vocab"
)

// Model bundles the encoder and decoder of one configuration. Translate
// serialises callers because the layers keep scratch buffers.
type Model struct {
	Config  Config
	Encoder *Encoder
	Decoder *Decoder

	mu sync.Mutex
}

// New builds a model with zero weights, ready for Load.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{Config: cfg, Encoder: NewEncoder(cfg), Decoder: NewDecoder(cfg)}, nil
}

// NewRandom builds a model with small reproducible random weights. Norm
// gains stay at one and initial recurrent states at zero.
func NewRandom(cfg Config, seed int64) (*Model, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for i, p := range m.Params() {
		if fixedInit(p.Name) {
			continue
		}
		tensor.FillRandSlice(p.Data, seed+int64(i))
	}
	m.Decoder.FixInit()
	clear(m.Encoder.Emb.Row(vocab.PadID))
	return m, nil
}

func fixedInit(name string) bool {
	for _, suffix := range []string{".gamma", ".beta", ".init_h", ".init_c"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// DecodeOptions returns the configured decoding defaults.
func (m *Model) DecodeOptions() decode.Options {
	opts := decode.DefaultOptions()
	opts.BeamSize = m.Config.BeamSize
	opts.LengthPenalty = m.Config.LengthPenalty
	opts.MaxLen = m.Config.MaxDecodeLen
	return opts
}

// Encode runs the encoder and prepares the decoder memory.
func (m *Model) Encode(b vocab.Batch, mode halting.Mode) (*Encoded, *Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc, err := m.Encoder.Encode(b, mode)
	if err != nil {
		return nil, nil, err
	}
	return enc, m.Decoder.Memory(enc), nil
}

// Translate encodes a padded source batch and decodes it.
func (m *Model) Translate(ctx context.Context, b vocab.Batch, opts decode.Options) (*decode.Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc, err := m.Encoder.Encode(b, halting.Inference)
	if err != nil {
		return nil, err
	}
	return decode.Decode(ctx, m.Decoder, m.Decoder.Memory(enc), opts)
}
