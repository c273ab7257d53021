package inference

import (
	"context"
	"time"
)

// Engine translates batches of sentences with one loaded model.
type Engine interface {
	Translate(ctx context.Context, req *Request) (*Result, error)
	Close() error
}

// Request is a fully resolved translation request, see ResolveRequest.
type Request struct {
	Inputs []string

	BeamSize      int
	LengthPenalty float64
	MaxLength     int
	ReturnAll     bool
	ClipBeam      bool
	FillPad       bool

	Sample      bool
	Seed        int64
	Temperature float64
	TopK        int
	TopP        float64
}

// Alternative is a non-best beam hypothesis.
type Alternative struct {
	Text   string
	Tokens []int
	Score  float32
}

// Translation is the output for one input sentence. Tokens excludes EOS and
// anything after it.
type Translation struct {
	Index        int
	Text         string
	Tokens       []int
	Score        float32
	Alternatives []Alternative
}

type Result struct {
	Model        string
	Translations []Translation
	Stats        Stats
}

// Stats summarises the work of one Translate call.
type Stats struct {
	Sentences       int
	SourceTokens    int
	TokensGenerated int
	Steps           int
	Batches         int
	Duration        time.Duration
	TPS             float64
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}
