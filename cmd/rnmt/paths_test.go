package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/rnmt/internal/inference"
)

func mkModel(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, inference.ConfigFile), []byte("isize: 8\n"), 0o644))
	return dir
}

func withTTY(t *testing.T, v bool) {
	t.Helper()
	prev := stdinIsTTY
	stdinIsTTY = func() bool { return v }
	t.Cleanup(func() { stdinIsTTY = prev })
}

func TestDiscoverModelDirsSorted(t *testing.T) {
	dir := t.TempDir()
	b := mkModel(t, dir, "b")
	a := mkModel(t, dir, "a")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-model"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("x"), 0o644))

	got, err := discoverModelDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)

	_, err = discoverModelDirs("")
	assert.Error(t, err)
	_, err = discoverModelDirs(filepath.Join(dir, "ignore.txt"))
	assert.Error(t, err)
}

func TestResolveModelDir(t *testing.T) {
	t.Run("model flag bypasses env", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		got, err := resolveModelDir("/tmp/de-en/", "", bytes.NewBuffer(nil), io.Discard)
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean("/tmp/de-en"), got)
	})

	t.Run("model flag names a model under the models path", func(t *testing.T) {
		dir := t.TempDir()
		want := mkModel(t, dir, "de-en")
		got, err := resolveModelDir("de-en", dir, bytes.NewBuffer(nil), io.Discard)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		_, err := resolveModelDir("", "", bytes.NewBuffer(nil), io.Discard)
		assert.ErrorContains(t, err, envModelsDir)
	})

	t.Run("single model selects automatically", func(t *testing.T) {
		dir := t.TempDir()
		only := mkModel(t, dir, "only")
		t.Setenv(envModelsDir, dir)
		withTTY(t, false)

		got, err := resolveModelDir("", "", bytes.NewBuffer(nil), io.Discard)
		require.NoError(t, err)
		assert.Equal(t, only, got)
	})

	t.Run("multiple models requires tty", func(t *testing.T) {
		dir := t.TempDir()
		mkModel(t, dir, "a")
		mkModel(t, dir, "b")
		t.Setenv(envModelsDir, dir)
		withTTY(t, false)

		_, err := resolveModelDir("", "", bytes.NewBuffer(nil), io.Discard)
		assert.Error(t, err)
	})

	t.Run("interactive selection chooses sorted index", func(t *testing.T) {
		dir := t.TempDir()
		b := mkModel(t, dir, "b")
		mkModel(t, dir, "a")
		withTTY(t, true)

		var stderr bytes.Buffer
		got, err := resolveModelDir("", dir, bytes.NewBufferString("9\n2\n"), &stderr)
		require.NoError(t, err)
		assert.Equal(t, b, got)
		assert.Contains(t, stderr.String(), `invalid selection "9"`)
	})

	t.Run("interactive selection at eof", func(t *testing.T) {
		dir := t.TempDir()
		mkModel(t, dir, "a")
		mkModel(t, dir, "b")
		withTTY(t, true)

		_, err := resolveModelDir("", dir, bytes.NewBuffer(nil), io.Discard)
		assert.ErrorContains(t, err, "no selection")
	})
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models_dir: /srv/models\nbeam_size: 6\nlog_format: json\n"), 0o644))

	cfg := loadConfigFile(path)
	assert.Equal(t, "/srv/models", cfg.ModelsDir)
	require.NotNil(t, cfg.BeamSize)
	assert.Equal(t, int64(6), *cfg.BeamSize)
	assert.Nil(t, cfg.LengthPenalty)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.Equal(t, Config{}, loadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.NoError(t, os.WriteFile(path, []byte("beam_size: [\n"), 0o644))
	assert.Equal(t, Config{}, loadConfigFile(path))

	t.Setenv(envConfigPath, "/etc/rnmt.yaml")
	assert.Equal(t, "/etc/rnmt.yaml", configPath())
}
