package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(context.Background(), append([]string{"rnmt", "--log-level", "error"}, args...)))
	return out.String()
}

func TestInitTranslateInspect(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "none.yaml"))
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.txt")
	tgt := filepath.Join(tmp, "tgt.txt")
	require.NoError(t, os.WriteFile(src, []byte("the 9\ncat 7\nsat 3\n"), 0o644))
	require.NoError(t, os.WriteFile(tgt, []byte("die 9\nkatze 8\nsass 2\n"), 0o644))
	model := filepath.Join(tmp, "models", "en-de")

	runApp(t, "init", "--out", model, "--src-vocab", src, "--tgt-vocab", tgt,
		"--isize", "8", "--ff-hsize", "16", "--nhead", "2", "--enc-layers", "2", "--dec-layers", "1")

	out := runApp(t, "translate", "--model", model, "--max-length", "4", "--scores", "the cat", "sat")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "\t")
	}

	input := filepath.Join(tmp, "in.txt")
	output := filepath.Join(tmp, "out.txt")
	require.NoError(t, os.WriteFile(input, []byte("the\ncat sat\n\n"), 0o644))
	runApp(t, "translate", "--model", model, "-k", "1", "--max-length", "3", "--input", input, "--output", output)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))

	out = runApp(t, "inspect", "--model", model, "--tensors", "--tensor-filter", "dec.", "--halting", "the dog")
	assert.Contains(t, out, "Model: en-de")
	assert.Contains(t, out, "source:         7 entries")
	assert.Contains(t, out, "dec.classifier")
	assert.NotContains(t, out, "enc.emb")
	assert.Contains(t, out, "dog -> <unk>")
}

func TestVersionCommand(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "none.yaml"))
	out := runApp(t, "version")
	assert.Contains(t, out, "version:")
	assert.Contains(t, out, "go:")
}

func TestSetupLoggingRejectsUnknownFormat(t *testing.T) {
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "none.yaml"))
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run(context.Background(), []string{"rnmt", "--log-format", "xml", "version"})
	assert.ErrorContains(t, err, "xml")
}
