package decode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greedyOptions(maxLen int) Options {
	opts := DefaultOptions()
	opts.MaxLen = maxLen
	return opts
}

func TestGreedyEarlyStopAndFillPad(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	opts := greedyOptions(5)
	opts.FillPad = true

	out, err := Greedy(context.Background(), s, newFakeMemory(2), opts)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Steps)
	assert.Equal(t, [][]int{{3, 3, 2, 0, 0}, {3, 3, 3, 3, 3}}, out.Tokens)
	assert.InDelta(t, -0.3, out.Scores[0], 1e-6)
	assert.Len(t, s.tokens, 5)
	// The real prediction is still fed back after a sequence is done.
	assert.Equal(t, []int{2, 3}, s.tokens[3])
}

func TestGreedyWithoutFillPad(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	out, err := Greedy(context.Background(), s, newFakeMemory(2), greedyOptions(5))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 2, 2, 2}, out.Tokens[0])
}

func TestGreedyStopsWhenAllDone(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	out, err := Greedy(context.Background(), s, newFakeMemory(1), greedyOptions(10))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Steps)
	assert.Equal(t, [][]int{{3, 3, 2}}, out.Tokens)
}

func TestGreedyShapeBound(t *testing.T) {
	for _, maxLen := range []int{1, 2, 7} {
		s := &scriptStepper{vocab: 5, score: earlyStopScript}
		out, err := Greedy(context.Background(), s, newFakeMemory(3), greedyOptions(maxLen))
		require.NoError(t, err)
		require.Len(t, out.Tokens, 3)
		for _, row := range out.Tokens {
			assert.Len(t, row, out.Steps)
			assert.LessOrEqual(t, len(row), maxLen)
		}
	}
}

func TestGreedyFirstStepUsesSentinel(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	_, err := Greedy(context.Background(), s, newFakeMemory(2), greedyOptions(2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, s.tokens[0])
	assert.Equal(t, [][]int{nil, nil}, s.states[0].hist)
	assert.Equal(t, [][]int{{1}, {1}}, s.states[1].hist)
}

func TestGreedySample(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: func(int, []int) map[int]float32 {
		return map[int]float32{3: 0}
	}}
	opts := greedyOptions(4)
	opts.Sample = true
	opts.Sampling.Seed = 7
	out, err := Greedy(context.Background(), s, newFakeMemory(2), opts)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{3, 3, 3, 3}, {3, 3, 3, 3}}, out.Tokens)
}

func TestGreedyReturnAll(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	opts := greedyOptions(5)
	opts.ReturnAll = true
	out, err := Greedy(context.Background(), s, newFakeMemory(2), opts)
	require.NoError(t, err)
	require.Len(t, out.Beams, 2)
	assert.True(t, out.Beams[0][0].Done)
	assert.False(t, out.Beams[1][0].Done)
	assert.Equal(t, out.Tokens[1], out.Beams[1][0].Tokens)
}

func TestGreedyEmptyBatch(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	out, err := Greedy(context.Background(), s, newFakeMemory(0), greedyOptions(5))
	require.NoError(t, err)
	assert.Empty(t, out.Tokens)
	assert.Zero(t, out.Steps)
	assert.Empty(t, s.tokens)
}

func TestGreedyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scriptStepper{vocab: 5, score: earlyStopScript}
	_, err := Greedy(ctx, s, newFakeMemory(1), greedyOptions(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.tokens, 1)
}

func TestGreedyStepperErrors(t *testing.T) {
	s := &scriptStepper{vocab: 5, score: earlyStopScript, fail: errBoom}
	_, err := Greedy(context.Background(), s, newFakeMemory(1), greedyOptions(5))
	assert.ErrorIs(t, err, errBoom)

	s = &scriptStepper{vocab: 5, score: earlyStopScript, rows: 1}
	_, err = Greedy(context.Background(), s, newFakeMemory(2), greedyOptions(5))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
