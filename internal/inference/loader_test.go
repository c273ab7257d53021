package inference

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/rnmt/internal/nmt"
	"github.com/samcharles93/rnmt/internal/vocab"
)

func tinyConfig() nmt.Config {
	cfg := nmt.DefaultConfig()
	cfg.ISize = 8
	cfg.FFHSize = 16
	cfg.NHead = 2
	cfg.EncLayers = 2
	cfg.DecLayers = 2
	cfg.MaxSeqLen = 8
	cfg.BeamSize = 2
	cfg.MaxDecodeLen = 5
	return cfg
}

func createModel(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tiny-en-de")
	src := vocab.New([]string{"the", "cat", "sat", "down"})
	tgt := vocab.New([]string{"die", "katze", "sass"})
	_, err := Create(dir, tinyConfig(), src, tgt, 3)
	require.NoError(t, err)
	return dir
}

func TestCreateWritesModelDirectory(t *testing.T) {
	dir := createModel(t)
	for _, name := range []string{ConfigFile, WeightsFile, SourceVocabFile, TargetVocabFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	cfg, err := nmt.LoadConfig(filepath.Join(dir, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.SrcVocabSize)
	assert.Equal(t, 7, cfg.TgtVocabSize)
}

func TestLoaderLoadAndTranslate(t *testing.T) {
	dir := createModel(t)
	res, err := Loader{MaxBatch: 1}.Load(dir)
	require.NoError(t, err)
	defer func() { _ = res.Engine.Close() }()

	assert.Equal(t, "tiny-en-de", res.Name)
	assert.Equal(t, Defaults{BeamSize: 2, MaxLength: 5}, res.Defaults)
	assert.Equal(t, 8, res.Source.Size())

	req := ResolveRequest(RequestOptions{Inputs: []string{"the cat sat", "", "down"}}, res.Defaults)
	out, err := res.Engine.Translate(context.Background(), &req)
	require.NoError(t, err)
	require.Len(t, out.Translations, 3)
	for i, tr := range out.Translations {
		assert.Equal(t, i, tr.Index)
		assert.LessOrEqual(t, len(tr.Tokens), 5)
		for _, id := range tr.Tokens {
			assert.NotEqual(t, vocab.PadID, id)
			assert.NotEqual(t, vocab.SOSID, id)
		}
	}
	assert.Empty(t, out.Translations[1].Text)
	assert.Equal(t, 2, out.Stats.Batches)

	// Same weights, same request: decoding is deterministic.
	again, err := res.Engine.Translate(context.Background(), &req)
	require.NoError(t, err)
	for i := range out.Translations {
		assert.Equal(t, out.Translations[i].Tokens, again.Translations[i].Tokens)
	}
}

func TestLoaderErrors(t *testing.T) {
	_, err := Loader{}.Load("  ")
	assert.Error(t, err)

	_, err = Loader{}.Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := createModel(t)
	require.NoError(t, os.Remove(filepath.Join(dir, WeightsFile)))
	_, err = Loader{}.Load(dir)
	assert.ErrorContains(t, err, "load weights")
}

func TestLoaderRejectsOversizedVocab(t *testing.T) {
	dir := createModel(t)
	big := vocab.New([]string{"a", "b", "c", "d", "e", "f", "g", "h"})
	require.NoError(t, writeVocab(filepath.Join(dir, TargetVocabFile), big))
	_, err := Loader{}.Load(dir)
	assert.ErrorContains(t, err, "target vocabulary")
}
