package decode

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/samcharles93/rnmt/internal/logits"
)

// arena holds the hypotheses of a beam search. Slot (b, j), the j-th beam of
// input sequence b, lives at flat index b*k+j. Histories are never shared
// between slots; reparent builds the next arena from copies.
type arena struct {
	bsize, k int

	trans [][]int
	wds   []int     // last predicted token per slot, fed to the next step
	sum   []float32 // cumulative log-probability
	score []float32 // ranking score
	lpv   []float32 // length normaliser, nil without a length penalty
	done  []bool
}

func newArena(bsize, k int, penalty bool) *arena {
	n := bsize * k
	a := &arena{
		bsize: bsize,
		k:     k,
		trans: make([][]int, n),
		wds:   make([]int, n),
		sum:   make([]float32, n),
		score: make([]float32, n),
		done:  make([]bool, n),
	}
	if penalty {
		a.lpv = make([]float32, n)
		for i := range a.lpv {
			a.lpv[i] = 1
		}
	}
	return a
}

// reparent returns the arena after pruning: slot i continues the hypothesis
// in slot parents[i] with words[i]. Histories are copied, never shared.
func (a *arena) reparent(parents, words []int, sum, score []float32, opts Options) *arena {
	nx := newArena(a.bsize, a.k, false)
	copy(nx.wds, words)
	copy(nx.sum, sum)
	copy(nx.score, score)
	if a.lpv != nil {
		nx.lpv = make([]float32, len(parents))
	}
	for i, p := range parents {
		wd := words[i]
		if opts.FillPad && a.done[p] {
			wd = opts.Pad
		}
		h := make([]int, len(a.trans[p]), len(a.trans[p])+1)
		copy(h, a.trans[p])
		nx.trans[i] = append(h, wd)
		nx.done[i] = a.done[p] || words[i] == opts.EOS
		if nx.lpv != nil {
			nx.lpv[i] = a.lpv[p]
		}
	}
	return nx
}

// finished applies the early-stop policy.
func (a *arena) finished(p StopPolicy) bool {
	if p == StopTopDone {
		top := true
		for b := 0; b < a.bsize; b++ {
			if !a.done[b*a.k] {
				top = false
				break
			}
		}
		if top {
			return true
		}
	}
	return !slices.Contains(a.done, false)
}

// Beam runs beam search with opts.BeamSize hypotheses per input sequence.
//
// The first step runs on the unexpanded batch from the start token; its top
// BeamSize tokens seed the beams and the memory and state are tiled so every
// beam owns a private copy. Each later step expands every beam by its top
// BeamSize tokens, adds the beam's running score (done beams contribute
// exactly 0), keeps the best BeamSize of the BeamSize^2 candidates per
// sequence and regathers histories and state by parent slot.
//
// With a length penalty lp the score is divided by ((len+5)/6)^lp, frozen
// once a hypothesis is done. ClipBeam applies the division before each
// pruning; otherwise it is applied once after the search and the beams are
// re-ranked. Hypotheses that reach MaxLen unfinished are returned as is.
func Beam(ctx context.Context, s Stepper, mem Memory, opts Options) (*Output, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	bsize, k := mem.Rows(), opts.BeamSize
	out := &Output{Tokens: make([][]int, bsize), Scores: make([]float32, bsize)}
	if opts.ReturnAll {
		out.Beams = make([][]Hypothesis, bsize)
	}
	if bsize == 0 {
		return out, nil
	}

	lp, st, err := s.Step(sosTokens(bsize, opts.SOS), nil, mem)
	if err != nil {
		return nil, fmt.Errorf("decode: beam step 0: %w", err)
	}
	if lp.R != bsize {
		return nil, configErrorf("stepper", "step 0 returned %d rows for %d sequences", lp.R, bsize)
	}
	if lp.C < k {
		return nil, configErrorf("beam_size", "%d exceeds vocabulary size %d", k, lp.C)
	}
	if st == nil {
		return nil, configErrorf("stepper", "step 0 returned no state")
	}

	penalty := opts.LengthPenalty > 0
	clip := penalty && opts.ClipBeam
	a := newArena(bsize, k, penalty)
	kidx := make([]int, k)
	kval := make([]float32, k)
	for b := 0; b < bsize; b++ {
		logits.TopK(lp.Row(b), k, kidx, kval)
		for j := 0; j < k; j++ {
			r := b*k + j
			a.wds[r] = kidx[j]
			a.sum[r] = kval[j]
			a.score[r] = kval[j]
			a.trans[r] = []int{kidx[j]}
			a.done[r] = kidx[j] == opts.EOS
		}
	}
	tile := make([]int, bsize*k)
	for r := range tile {
		tile[r] = r / k
	}
	mem = mem.Gather(tile)
	st = st.Gather(tile)

	n := bsize * k
	var base float64
	if penalty {
		base = math.Pow(6, opts.LengthPenalty)
	}
	cw := make([]int, n*k)
	cs := make([]float32, n*k)
	cand := make([]float32, k*k)
	sel := make([]float32, k*k)
	parents := make([]int, n)
	words := make([]int, n)
	sums := make([]float32, n)
	scores := make([]float32, n)
	policy := opts.Stop()
	steps := 1

	for step := 1; step < opts.MaxLen && !a.finished(policy); step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lp, next, err := s.Step(a.wds, st, mem)
		if err != nil {
			return nil, fmt.Errorf("decode: beam step %d: %w", step, err)
		}
		if lp.R != n {
			return nil, configErrorf("stepper", "step %d returned %d rows for %d candidates", step, lp.R, n)
		}
		if next == nil {
			return nil, configErrorf("stepper", "step %d returned no state", step)
		}

		var lpv float32
		if penalty {
			lpv = float32(math.Pow(float64(step+6), opts.LengthPenalty) / base)
		}
		for r := 0; r < n; r++ {
			logits.TopK(lp.Row(r), k, cw[r*k:(r+1)*k], cs[r*k:(r+1)*k])
			if penalty && !a.done[r] {
				a.lpv[r] = lpv
			}
		}

		for b := 0; b < bsize; b++ {
			for q := 0; q < k*k; q++ {
				r := b*k + q/k
				c := a.sum[r]
				if !a.done[r] {
					c += cs[r*k+q%k]
				}
				cand[q] = c
				if clip {
					sel[q] = c / a.lpv[r]
				} else {
					sel[q] = c
				}
			}
			logits.TopK(sel, k, kidx, kval)
			for j := 0; j < k; j++ {
				q := kidx[j]
				r := b*k + q/k
				dst := b*k + j
				parents[dst] = r
				words[dst] = cw[r*k+q%k]
				sums[dst] = cand[q]
				scores[dst] = kval[j]
			}
		}

		a = a.reparent(parents, words, sums, scores, opts)
		st = next.Gather(parents)
		steps++
	}

	order := make([]int, k)
	for b := 0; b < bsize; b++ {
		for j := range order {
			order[j] = j
		}
		if penalty && !clip {
			for j := 0; j < k; j++ {
				r := b*k + j
				a.score[r] = a.sum[r] / a.lpv[r]
			}
			slices.SortStableFunc(order, func(x, y int) int {
				return cmp.Compare(a.score[b*k+y], a.score[b*k+x])
			})
		}
		top := b*k + order[0]
		out.Tokens[b] = a.trans[top]
		out.Scores[b] = a.score[top]
		if opts.ReturnAll {
			hyps := make([]Hypothesis, k)
			for j, o := range order {
				r := b*k + o
				hyps[j] = Hypothesis{Tokens: a.trans[r], Score: a.score[r], Done: a.done[r]}
			}
			out.Beams[b] = hyps
		}
	}
	out.Steps = steps
	return out, nil
}
