package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func TestMatVecMatchesNaive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r, c int
	}{
		{"tiny", 3, 5},
		{"odd", 7, 13},
		{"pooled", 512, 256},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := NewMat(tc.r, tc.c)
			FillRand(&w, 3)
			x := make([]float32, tc.c)
			FillRandSlice(x, 4)

			got := make([]float32, tc.r)
			want := make([]float32, tc.r)
			MatVec(got, &w, x)
			matVecNaive(want, &w, x)
			assert.InDeltaSlice(t, want, got, 1e-6)
		})
	}
}

func TestMatVecShapeMismatchPanics(t *testing.T) {
	t.Parallel()
	w := NewMat(4, 4)
	assert.Panics(t, func() { MatVec(make([]float32, 2), &w, make([]float32, 4)) })
}

func TestLinearApplyRows(t *testing.T) {
	t.Parallel()
	l := NewLinear(2, 3, true)
	copy(l.W.Data, []float32{1, 0, 0, 1, 1, 1})
	copy(l.B, []float32{0.5, -0.5, 0})

	x := NewMatFromData(2, 2, []float32{1, 2, 3, 4})
	y := l.ApplyRows(&x)
	require.Equal(t, 2, y.R)
	require.Equal(t, 3, y.C)
	assert.Equal(t, []float32{1.5, 1.5, 3}, y.Row(0))
	assert.Equal(t, []float32{3.5, 3.5, 7}, y.Row(1))
}

func BenchmarkMatVec(b *testing.B) {
	w := NewMat(2048, 2048)
	x := make([]float32, 2048)
	dst := make([]float32, 2048)
	FillRand(&w, 1)

	for b.Loop() {
		MatVec(dst, &w, x)
	}
}
