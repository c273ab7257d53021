package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samcharles93/rnmt/internal/nmt"
)

func TestResolveRequestBaseValues(t *testing.T) {
	req := ResolveRequest(RequestOptions{Inputs: []string{"a"}}, Defaults{})
	assert.Equal(t, []string{"a"}, req.Inputs)
	assert.Equal(t, 4, req.BeamSize)
	assert.Equal(t, 512, req.MaxLength)
	assert.Zero(t, req.LengthPenalty)
	assert.True(t, req.FillPad)
	assert.Equal(t, int64(-1), req.Seed)
	assert.Equal(t, 1.0, req.Temperature)
	assert.False(t, req.Sample)
}

func TestResolveRequestDefaultsAndOverrides(t *testing.T) {
	cfg := nmt.DefaultConfig()
	cfg.BeamSize = 6
	cfg.LengthPenalty = 0.8
	cfg.MaxDecodeLen = 100
	defaults := DefaultsFromConfig(cfg)

	req := ResolveRequest(RequestOptions{}, defaults)
	assert.Equal(t, 6, req.BeamSize)
	assert.Equal(t, 0.8, req.LengthPenalty)
	assert.Equal(t, 100, req.MaxLength)

	beam, lp, fill, seed := 1, 0.0, false, int64(9)
	req = ResolveRequest(RequestOptions{
		BeamSize:      &beam,
		LengthPenalty: &lp,
		FillPad:       &fill,
		Seed:          &seed,
	}, defaults)
	assert.Equal(t, 1, req.BeamSize)
	assert.Zero(t, req.LengthPenalty)
	assert.False(t, req.FillPad)
	assert.Equal(t, int64(9), req.Seed)
	assert.Equal(t, 100, req.MaxLength)
}
