package logits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSamplerDeterminism ensures that two samplers configured identically
// produce identical results when sampling the same scores.
func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()
	scores := []float32{0, 1, 2, 3, 4, 5}
	s1 := NewSampler(SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, TopP: 0.95})
	s2 := NewSampler(SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, TopP: 0.95})
	for range 20 {
		require.Equal(t, s1.Sample(scores), s2.Sample(scores))
	}
}

func TestSamplerGreedy(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 99})
	assert.True(t, s.Greedy())
	assert.Equal(t, 3, s.Sample([]float32{-1, 5, 3, 7, 2}))
}

// With TopP below the mass of the dominant entry only index 0 survives the cut.
func TestSamplerTopP(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 7, Temperature: 1, TopP: 0.5})
	for range 10 {
		assert.Equal(t, 0, s.Sample([]float32{10, 0, 0, 0, 0}))
	}
}

func TestSamplerTopKRestricts(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 1, Temperature: 1, TopK: 2})
	for range 50 {
		got := s.Sample([]float32{0, 3, 0, 3.1, 0})
		assert.Contains(t, []int{1, 3}, got)
	}
}

func TestSamplerHandlesForbiddenScores(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 5, Temperature: 1})
	for range 50 {
		got := s.Sample([]float32{-1e32, -1e32, -0.5, -1.2})
		assert.Contains(t, []int{2, 3}, got)
	}
}
