package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samcharles93/rnmt/internal/decode"
	"github.com/samcharles93/rnmt/internal/logger"
	"github.com/samcharles93/rnmt/internal/logits"
	"github.com/samcharles93/rnmt/internal/vocab"
)

// Translator decodes one padded source batch. *nmt.Model implements it.
type Translator interface {
	Translate(ctx context.Context, b vocab.Batch, opts decode.Options) (*decode.Output, error)
}

// EngineOptions bounds the batches handed to the model.
type EngineOptions struct {
	// MaxTokens caps padded source tokens per batch; 0 means no cap.
	MaxTokens int
	// MaxBatch caps sentences per batch; 0 means no cap.
	MaxBatch int
	// MaxSourceLen truncates longer source sentences; 0 means no limit.
	MaxSourceLen int
}

type EngineImpl struct {
	name  string
	model Translator
	src   *vocab.Vocab
	tgt   *vocab.Vocab
	opts  EngineOptions
}

func NewEngine(name string, model Translator, src, tgt *vocab.Vocab, opts EngineOptions) *EngineImpl {
	return &EngineImpl{name: name, model: model, src: src, tgt: tgt, opts: opts}
}

// Name is the model name reported in results.
func (e *EngineImpl) Name() string { return e.name }

func (e *EngineImpl) Close() error {
	if e == nil || e.model == nil {
		return nil
	}
	if c, ok := e.model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DecodeOptions converts a resolved request into decoder settings.
func DecodeOptions(req *Request) (decode.Options, error) {
	opts := decode.DefaultOptions()
	opts.BeamSize = req.BeamSize
	opts.MaxLen = req.MaxLength
	opts.LengthPenalty = req.LengthPenalty
	opts.ReturnAll = req.ReturnAll
	opts.ClipBeam = req.ClipBeam
	opts.FillPad = req.FillPad
	opts.Sample = req.Sample
	if req.Sample {
		seed := req.Seed
		if seed < 0 {
			seed = time.Now().UnixNano()
		}
		opts.Sampling = logits.SamplerConfig{
			Seed:        seed,
			Temperature: float32(req.Temperature),
			TopK:        req.TopK,
			TopP:        float32(req.TopP),
		}
		if opts.BeamSize > 1 {
			return opts, fmt.Errorf("%w: sampling requires beam_size 1", decode.ErrInvalidConfig)
		}
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (e *EngineImpl) Translate(ctx context.Context, req *Request) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := DecodeOptions(req)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With("model", e.name)
	start := time.Now()
	res := &Result{Model: e.name, Translations: make([]Translation, len(req.Inputs))}
	stats := Stats{Sentences: len(req.Inputs)}

	var seqs [][]int
	var owners []int
	for i, text := range req.Inputs {
		res.Translations[i] = Translation{Index: i, Tokens: []int{}}
		ids := e.src.Encode(text)
		if len(ids) == 0 {
			continue
		}
		if limit := e.opts.MaxSourceLen; limit > 0 && len(ids) > limit {
			log.Warn("truncating source sentence", "index", i, "tokens", len(ids), "max", limit)
			ids = ids[:limit]
		}
		stats.SourceTokens += len(ids)
		seqs = append(seqs, ids)
		owners = append(owners, i)
	}

	for _, b := range vocab.Batches(seqs, e.opts.MaxTokens, e.opts.MaxBatch) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := safeTranslate(ctx, e.model, b, opts)
		if err != nil {
			return nil, err
		}
		if len(out.Tokens) != len(b.Tokens) {
			return nil, fmt.Errorf("translate: %d outputs for %d sentences", len(out.Tokens), len(b.Tokens))
		}
		stats.Batches++
		stats.Steps += out.Steps
		for row, pos := range b.Index {
			tr := &res.Translations[owners[pos]]
			e.fill(tr, out, row)
			stats.TokensGenerated += len(tr.Tokens)
		}
		log.Debug("translated batch", "rows", len(b.Tokens), "width", b.Len(), "steps", out.Steps)
	}

	stats.finish(start)
	res.Stats = stats
	return res, nil
}

func (e *EngineImpl) fill(tr *Translation, out *decode.Output, row int) {
	tr.Tokens = append([]int{}, vocab.Trim(out.Tokens[row])...)
	tr.Text = e.tgt.Decode(out.Tokens[row])
	tr.Score = out.Scores[row]
	if out.Beams == nil || len(out.Beams[row]) < 2 {
		return
	}
	for _, h := range out.Beams[row][1:] {
		tr.Alternatives = append(tr.Alternatives, Alternative{
			Text:   e.tgt.Decode(h.Tokens),
			Tokens: append([]int{}, vocab.Trim(h.Tokens)...),
			Score:  h.Score,
		})
	}
}

func safeTranslate(ctx context.Context, m Translator, b vocab.Batch, opts decode.Options) (out *decode.Output, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Translate: %v", rec)
		}
	}()
	out, err = m.Translate(ctx, b, opts)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("translate: %w", err)
	}
	return out, err
}
