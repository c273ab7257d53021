package decode

import (
	"fmt"
	"math"

	"github.com/samcharles93/rnmt/internal/logits"
	"github.com/samcharles93/rnmt/internal/vocab"
)

// StopPolicy decides when a beam search may end before MaxLen.
type StopPolicy uint8

const (
	// StopTopDone ends the search once the rank-0 hypothesis of every input
	// sequence is done.
	StopTopDone StopPolicy = iota
	// StopAllDone ends the search only when every hypothesis is done.
	StopAllDone
)

func (p StopPolicy) String() string {
	switch p {
	case StopTopDone:
		return "top-done"
	case StopAllDone:
		return "all-done"
	default:
		return fmt.Sprintf("StopPolicy(%d)", uint8(p))
	}
}

// Options configures a decode call.
type Options struct {
	// MaxLen bounds the number of generated tokens per sequence.
	MaxLen int
	// BeamSize is the number of hypotheses kept per input sequence. Decode
	// runs greedy search when it is 1.
	BeamSize int
	// LengthPenalty is the exponent of the length normaliser. Zero disables
	// normalisation.
	LengthPenalty float64
	// ReturnAll keeps every final hypothesis with its score.
	ReturnAll bool
	// ClipBeam applies the length normaliser before pruning each step instead
	// of once after the search.
	ClipBeam bool
	// FillPad writes Pad instead of the predicted token for positions after a
	// hypothesis is done.
	FillPad bool
	// Sample draws greedy tokens from the softmax instead of taking argmax.
	Sample bool
	// Sampling configures the sampler when Sample is set. A non-positive
	// temperature means 1.
	Sampling logits.SamplerConfig

	SOS, EOS, Pad int
}

// DefaultOptions returns greedy settings with the canonical reserved ids.
func DefaultOptions() Options {
	return Options{
		MaxLen:   512,
		BeamSize: 1,
		SOS:      vocab.SOSID,
		EOS:      vocab.EOSID,
		Pad:      vocab.PadID,
	}
}

// Validate reports the first invalid setting.
func (o Options) Validate() error {
	if o.MaxLen < 1 {
		return configErrorf("max_len", "must be at least 1, got %d", o.MaxLen)
	}
	if o.BeamSize < 1 {
		return configErrorf("beam_size", "must be at least 1, got %d", o.BeamSize)
	}
	if o.LengthPenalty < 0 || math.IsNaN(o.LengthPenalty) || math.IsInf(o.LengthPenalty, 0) {
		return configErrorf("length_penalty", "must be a finite value >= 0, got %v", o.LengthPenalty)
	}
	return nil
}

// Stop returns the early-stop policy implied by the options.
func (o Options) Stop() StopPolicy {
	if o.LengthPenalty == 0 && !o.ReturnAll {
		return StopTopDone
	}
	return StopAllDone
}

func (o Options) sampler() *logits.Sampler {
	if !o.Sample {
		return nil
	}
	cfg := o.Sampling
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	return logits.NewSampler(cfg)
}
