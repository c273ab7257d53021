package decode

import (
	"context"
	"fmt"

	"github.com/samcharles93/rnmt/internal/logits"
)

// Decode runs beam search when opts.BeamSize is greater than one and greedy
// search otherwise.
func Decode(ctx context.Context, s Stepper, mem Memory, opts Options) (*Output, error) {
	if opts.BeamSize > 1 {
		return Beam(ctx, s, mem, opts)
	}
	return Greedy(ctx, s, mem, opts)
}

// Greedy decodes one token per sequence per step, picking the argmax or a
// sampled token, until every sequence has emitted EOS or MaxLen tokens were
// produced. The output is rectangular: sequences that finish early keep
// receiving tokens (Pad when FillPad is set) while others are still running.
// Scores holds the summed log-probability of each sequence up to and
// including its EOS.
func Greedy(ctx context.Context, s Stepper, mem Memory, opts Options) (*Output, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	bsize := mem.Rows()
	out := &Output{Tokens: make([][]int, bsize), Scores: make([]float32, bsize)}
	if bsize == 0 {
		return out, nil
	}
	sampler := opts.sampler()

	wds := sosTokens(bsize, opts.SOS)
	done := make([]bool, bsize)
	ndone := 0
	var st State
	for step := 0; step < opts.MaxLen; step++ {
		if step > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lp, next, err := s.Step(wds, st, mem)
		if err != nil {
			return nil, fmt.Errorf("decode: greedy step %d: %w", step, err)
		}
		if lp.R != bsize {
			return nil, configErrorf("stepper", "step %d returned %d rows for %d sequences", step, lp.R, bsize)
		}
		st = next
		for b := 0; b < bsize; b++ {
			row := lp.Row(b)
			wd := pick(row, sampler)
			wds[b] = wd
			if done[b] {
				if opts.FillPad {
					wd = opts.Pad
				}
			} else {
				out.Scores[b] += row[wd]
				if wd == opts.EOS {
					done[b] = true
					ndone++
				}
			}
			out.Tokens[b] = append(out.Tokens[b], wd)
		}
		out.Steps = step + 1
		if ndone == bsize {
			break
		}
	}
	if opts.ReturnAll {
		out.Beams = make([][]Hypothesis, bsize)
		for b := range out.Beams {
			out.Beams[b] = []Hypothesis{{Tokens: out.Tokens[b], Score: out.Scores[b], Done: done[b]}}
		}
	}
	return out, nil
}

func pick(row []float32, sampler *logits.Sampler) int {
	if sampler != nil {
		return sampler.Sample(row)
	}
	return logits.Argmax(row)
}

// sosTokens returns n copies of the start token.
func sosTokens(n, sos int) []int {
	t := make([]int, n)
	for i := range t {
		t[i] = sos
	}
	return t
}
