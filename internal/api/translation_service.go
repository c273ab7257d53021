package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/rnmt/internal/decode"
	"github.com/samcharles93/rnmt/internal/inference"
)

type TranslationService struct {
	provider  EngineProvider
	maxInputs int
	clock     func() time.Time
}

func NewTranslationService(provider EngineProvider) *TranslationService {
	return &TranslationService{provider: provider, clock: time.Now}
}

// SetMaxInputs caps the sentences accepted per request; 0 disables the cap.
func (s *TranslationService) SetMaxInputs(n int) {
	s.maxInputs = max(n, 0)
}

func (s *TranslationService) Translate(ctx context.Context, req *TranslationRequest) (*TranslationResponse, error) {
	if req.Input == nil || len(req.Input.Sentences) == 0 {
		return nil, newInvalidRequest("input is required")
	}
	if s.maxInputs > 0 && len(req.Input.Sentences) > s.maxInputs {
		return nil, newInvalidRequest(fmt.Sprintf("input has %d sentences, at most %d are allowed", len(req.Input.Sentences), s.maxInputs))
	}

	var resp *TranslationResponse
	err := s.provider.WithEngine(ctx, req.Model, func(name string, engine inference.Engine, defaults inference.Defaults) error {
		ireq := inference.ResolveRequest(toRequestOptions(req), defaults)
		result, err := engine.Translate(ctx, &ireq)
		if err != nil {
			if errors.Is(err, decode.ErrInvalidConfig) {
				return newInvalidRequest(err.Error())
			}
			return err
		}
		resp = buildResponse(name, s.clock(), result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func toRequestOptions(req *TranslationRequest) inference.RequestOptions {
	return inference.RequestOptions{
		Inputs:        req.Input.Sentences,
		BeamSize:      req.BeamSize,
		LengthPenalty: req.LengthPenalty,
		MaxLength:     req.MaxLength,
		ReturnAll:     req.ReturnAll,
		ClipBeam:      req.ClipBeam,
		FillPad:       req.FillPad,
		Sample:        req.Sample,
		Seed:          req.Seed,
		Temperature:   req.Temperature,
		TopK:          req.TopK,
		TopP:          req.TopP,
	}
}

func buildResponse(model string, now time.Time, result *inference.Result) *TranslationResponse {
	resp := &TranslationResponse{
		ID:           newTranslationID(),
		Object:       "translation",
		Created:      now.Unix(),
		Model:        model,
		Translations: make([]TranslationEntry, 0, len(result.Translations)),
		Usage: TranslationUsage{
			SourceTokens:    result.Stats.SourceTokens,
			GeneratedTokens: result.Stats.TokensGenerated,
			Steps:           result.Stats.Steps,
			Batches:         result.Stats.Batches,
			DurationMS:      result.Stats.Duration.Milliseconds(),
			TokensPerSecond: result.Stats.TPS,
		},
	}
	for _, tr := range result.Translations {
		entry := TranslationEntry{
			Index:  tr.Index,
			Text:   tr.Text,
			Tokens: tr.Tokens,
			Score:  tr.Score,
		}
		if entry.Tokens == nil {
			entry.Tokens = []int{}
		}
		for _, alt := range tr.Alternatives {
			entry.Alternatives = append(entry.Alternatives, AlternativeEntry{
				Text:   alt.Text,
				Tokens: alt.Tokens,
				Score:  alt.Score,
			})
		}
		resp.Translations = append(resp.Translations, entry)
	}
	return resp
}
