package inference

import "github.com/samcharles93/rnmt/internal/nmt"

// RequestOptions carries caller overrides; nil fields take the defaults.
type RequestOptions struct {
	Inputs []string

	BeamSize      *int
	LengthPenalty *float64
	MaxLength     *int
	ReturnAll     *bool
	ClipBeam      *bool
	FillPad       *bool

	Sample      *bool
	Seed        *int64
	Temperature *float64
	TopK        *int
	TopP        *float64
}

// Defaults are the decoding settings of a loaded model.
type Defaults struct {
	BeamSize      int
	LengthPenalty float64
	MaxLength     int
}

// DefaultsFromConfig reads the decoding defaults stored in model.yaml.
func DefaultsFromConfig(cfg nmt.Config) Defaults {
	return Defaults{
		BeamSize:      cfg.BeamSize,
		LengthPenalty: cfg.LengthPenalty,
		MaxLength:     cfg.MaxDecodeLen,
	}
}

func ResolveRequest(opts RequestOptions, defaults Defaults) Request {
	req := Request{
		Inputs:        opts.Inputs,
		BeamSize:      4,
		LengthPenalty: 0,
		MaxLength:     512,
		FillPad:       true,
		Seed:          -1,
		Temperature:   1,
	}

	if defaults.BeamSize > 0 {
		req.BeamSize = defaults.BeamSize
	}
	if defaults.LengthPenalty > 0 {
		req.LengthPenalty = defaults.LengthPenalty
	}
	if defaults.MaxLength > 0 {
		req.MaxLength = defaults.MaxLength
	}

	if opts.BeamSize != nil {
		req.BeamSize = *opts.BeamSize
	}
	if opts.LengthPenalty != nil {
		req.LengthPenalty = *opts.LengthPenalty
	}
	if opts.MaxLength != nil {
		req.MaxLength = *opts.MaxLength
	}
	if opts.ReturnAll != nil {
		req.ReturnAll = *opts.ReturnAll
	}
	if opts.ClipBeam != nil {
		req.ClipBeam = *opts.ClipBeam
	}
	if opts.FillPad != nil {
		req.FillPad = *opts.FillPad
	}
	if opts.Sample != nil {
		req.Sample = *opts.Sample
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		req.TopK = *opts.TopK
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	return req
}
