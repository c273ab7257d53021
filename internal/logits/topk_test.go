package logits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		x       []float32
		k       int
		wantIdx []int
		wantVal []float32
	}{
		{"literal", []float32{0.1, 0.7, 0.2}, 2, []int{1, 2}, []float32{0.7, 0.2}},
		{"ties keep index order", []float32{1, 3, 3, 1, 3}, 3, []int{1, 2, 4}, []float32{3, 3, 3}},
		{"k larger than input", []float32{2, 1}, 4, []int{0, 1}, []float32{2, 1}},
		{"k equals one", []float32{-3, -1, -2}, 1, []int{1}, []float32{-1}},
		{"descending input", []float32{5, 4, 3, 2}, 3, []int{0, 1, 2}, []float32{5, 4, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			idx := make([]int, tc.k)
			val := make([]float32, tc.k)
			n := TopK(tc.x, tc.k, idx, val)
			assert.Equal(t, tc.wantIdx, idx[:n])
			assert.Equal(t, tc.wantVal, val[:n])
		})
	}
}

func TestTopKEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, TopK(nil, 3, make([]int, 3), make([]float32, 3)))
	assert.Equal(t, 0, TopK([]float32{1}, 0, nil, nil))
}

func TestArgmax(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, Argmax([]float32{0, 2, 2}))
	assert.Panics(t, func() { Argmax(nil) })
}
