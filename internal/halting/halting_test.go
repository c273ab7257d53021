package halting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/rnmt/internal/tensor"
)

// layerOut returns an n x 1 matrix with every row set to v.
func layerOut(n int, v float32) tensor.Mat {
	m := tensor.NewMat(n, 1)
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func weightSums(tr *Trace, pos int) float64 {
	var s float64
	for _, w := range tr.Weights {
		s += float64(w[pos])
	}
	return s
}

func TestWeightsSumToOne(t *testing.T) {
	a := New(3, 0, Inference)
	probs := [][]float32{
		{0.3, 0.9, 0.1},
		{0.3, 0.5, 0.1},
		{0.3, 0.5, 0.1},
	}
	for i, p := range probs {
		_, err := a.Observe(layerOut(3, float32(i+1)), p)
		require.NoError(t, err)
	}
	_, tr, err := a.Finalize()
	require.NoError(t, err)
	for pos := 0; pos < 3; pos++ {
		assert.InDelta(t, 1.0, weightSums(tr, pos), 1e-5, "position %d", pos)
	}
}

func TestClampAndHaltedPositionsGetZero(t *testing.T) {
	a := New(2, 0, Inference)
	_, err := a.Observe(layerOut(2, 1), []float32{0.6, 0.2})
	require.NoError(t, err)
	// Position 0 would overflow, so its weight is clamped to 0.4 and it halts.
	_, err = a.Observe(layerOut(2, 2), []float32{0.9, 0.2})
	require.NoError(t, err)
	_, err = a.Observe(layerOut(2, 3), []float32{0.9, 0.2})
	require.NoError(t, err)

	_, tr, err := a.Finalize()
	require.NoError(t, err)
	assert.InDelta(t, 0.4, tr.Weights[1][0], 1e-6)
	assert.Equal(t, float32(0), tr.Weights[2][0])
	assert.Equal(t, 1, tr.Last[0])
	assert.Equal(t, 2, tr.Last[1])
	assert.InDelta(t, 0.4, tr.Remainder[1], 1e-6)
}

func TestCumulativeMonotonic(t *testing.T) {
	a := New(2, 0, Inference)
	for _, p := range [][]float32{{0.2, 0}, {0.5, 0.1}, {0.7, 0.3}, {0.1, 0.1}} {
		_, err := a.Observe(layerOut(2, 0), p)
		require.NoError(t, err)
	}
	_, tr, err := a.Finalize()
	require.NoError(t, err)
	for pos := 0; pos < 2; pos++ {
		prev := float32(0)
		for _, c := range tr.Cumulative {
			assert.GreaterOrEqual(t, c[pos], prev)
			assert.LessOrEqual(t, c[pos], float32(1))
			prev = c[pos]
		}
	}
}

func TestMixture(t *testing.T) {
	a := New(1, 0, Inference)
	_, err := a.Observe(layerOut(1, 10), []float32{0.25})
	require.NoError(t, err)
	_, err = a.Observe(layerOut(1, 20), []float32{0.25})
	require.NoError(t, err)
	mix, tr, err := a.Finalize()
	require.NoError(t, err)
	// The second layer absorbs the 0.5 remainder: 0.25*10 + 0.75*20.
	assert.InDelta(t, 17.5, mix.Data[0], 1e-4)
	assert.InDelta(t, 0.5, tr.Remainder[0], 1e-6)
}

func TestEarlyStop(t *testing.T) {
	a := New(2, 0, Inference)
	done, err := a.Observe(layerOut(2, 1), []float32{0.995, 0.5})
	require.NoError(t, err)
	assert.False(t, done)
	done, err = a.Observe(layerOut(2, 1), []float32{0.5, 0.6})
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, a.AllDone())
}

func TestPenaltiesOnlyInTraining(t *testing.T) {
	inf := New(2, 0, Inference)
	_, err := inf.Observe(layerOut(2, 0), []float32{1, 0.1})
	require.NoError(t, err)
	_, tr, err := inf.Finalize()
	require.NoError(t, err)
	assert.Nil(t, tr.Penalties)

	train := New(2, 0, Training)
	_, err = train.Observe(layerOut(2, 0), []float32{1, 0.1})
	require.NoError(t, err)
	_, err = train.Observe(layerOut(2, 0), []float32{0.5, 0.1})
	require.NoError(t, err)
	_, tr, err = train.Finalize()
	require.NoError(t, err)
	require.Len(t, tr.Penalties, 2)
	assert.Equal(t, []float32{0, -1}, tr.Penalties[0])
	assert.Equal(t, []float32{0, -1}, tr.Penalties[1])
}

func TestZeroPositions(t *testing.T) {
	a := New(0, 0, Inference)
	assert.True(t, a.AllDone())
	done, err := a.Observe(tensor.NewMat(0, 4), nil)
	require.NoError(t, err)
	assert.True(t, done)
	mix, tr, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 0, mix.R)
	assert.Equal(t, 1, tr.Layers())
}

func TestErrors(t *testing.T) {
	a := New(2, 0, Inference)
	_, err := a.Observe(layerOut(3, 0), []float32{0.1, 0.1})
	assert.ErrorIs(t, err, ErrShape)

	_, _, err = a.Finalize()
	assert.ErrorIs(t, err, ErrNoLayers)

	_, err = a.Observe(layerOut(2, 0), []float32{0.1, 0.1})
	require.NoError(t, err)
	_, _, err = a.Finalize()
	require.NoError(t, err)
	_, _, err = a.Finalize()
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "inference", Inference.String())
	assert.Equal(t, "training", Training.String())
}
