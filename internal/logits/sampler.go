package logits

import (
	"math"
	"math/rand"
)

// SamplerConfig configures the behaviour of a Sampler.
//
// A zero TopK keeps the whole vocabulary and a zero TopP disables nucleus
// truncation, so SamplerConfig{Temperature: 1} samples from the plain softmax.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
	TopP        float32
}

// Sampler draws token ids from score vectors. It keeps scratch buffers
// between calls and is not safe for concurrent use.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	topIdx []int
	topVal []float32
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
// A non-positive temperature selects greedy arg-max decoding.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if greedy {
		cfg.Temperature = 1
	}
	if cfg.TopK < 0 {
		cfg.TopK = 0
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Greedy reports whether the sampler always returns the arg-max.
func (s *Sampler) Greedy() bool { return s.greedy }

// Sample draws a single index from scores, which may be logits or
// log-probabilities; both give the same distribution after the softmax.
//
//  1. Greedy samplers return the arg-max.
//  2. Scores are scaled by the inverse temperature and the top k kept.
//  3. A softmax over the shortlist is computed relative to its maximum.
//  4. If TopP<1 the shortlist is cut once the cumulative mass reaches TopP.
//  5. A uniform draw in [0,1) picks an index from what remains.
func (s *Sampler) Sample(scores []float32) int {
	if s.greedy {
		return Argmax(scores)
	}
	k := s.cfg.TopK
	if k == 0 || k > len(scores) {
		k = len(scores)
	}
	if cap(s.topIdx) < k {
		s.topIdx = make([]int, k)
		s.topVal = make([]float32, k)
		s.prob = make([]float64, k)
	}
	idx, val := s.topIdx[:k], s.topVal[:k]
	n := TopK(scores, k, idx, val)
	if n == 0 {
		return 0
	}
	idx, val = idx[:n], val[:n]

	invTemp := 1 / float64(s.cfg.Temperature)
	maxv := float64(val[0])
	prob := s.prob[:n]
	var sum float64
	for i, v := range val {
		prob[i] = math.Exp((float64(v) - maxv) * invTemp)
		sum += prob[i]
	}
	if sum == 0 || math.IsNaN(sum) {
		return idx[0]
	}
	for i := range prob {
		prob[i] /= sum
	}

	cut := n
	if s.cfg.TopP < 1 {
		var c float64
		for i, p := range prob {
			c += p
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	// Renormalise the truncated mass so the draw stays inside the cut.
	var kept float64
	for _, p := range prob[:cut] {
		kept += p
	}
	r := s.rng.Float64() * kept
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r < c {
			return idx[i]
		}
	}
	return idx[cut-1]
}
