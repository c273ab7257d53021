package safetensors

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRaw creates a safetensors file from a header map and a data payload.
func writeRaw(t *testing.T, header map[string]any, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	buf.Write(data)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func tensorEntry(dtype string, shape []int, start, end int64) map[string]any {
	return map[string]any{"dtype": dtype, "shape": shape, "data_offsets": []int64{start, end}}
}

func TestOpenValidFile(t *testing.T) {
	t.Parallel()
	path := writeRaw(t, map[string]any{"weight": tensorEntry("F32", []int{2, 3}, 0, 24)}, make([]byte, 24))

	f, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, path, f.Path)
	require.Len(t, f.Tensors, 1)
	info, ok := f.Tensor("weight")
	require.True(t, ok)
	assert.Equal(t, "F32", info.DType)
	assert.Equal(t, []int{2, 3}, info.Shape)
	assert.Equal(t, int64(24), f.Size())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := Open("/nonexistent/file.safetensors")
	assert.Error(t, err)

	dir := t.TempDir()
	short := filepath.Join(dir, "short.safetensors")
	require.NoError(t, os.WriteFile(short, []byte{0, 0, 0, 0}, 0o644))
	_, err = Open(short)
	assert.ErrorIs(t, err, ErrCorruptFile)

	bad := filepath.Join(dir, "bad.safetensors")
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 12)
	buf.Write(lenBuf[:])
	buf.WriteString("not valid js")
	require.NoError(t, os.WriteFile(bad, buf.Bytes(), 0o644))
	_, err = Open(bad)
	assert.ErrorIs(t, err, ErrCorruptFile)

	huge := filepath.Join(dir, "huge.safetensors")
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<40)
	require.NoError(t, os.WriteFile(huge, lenBuf[:], 0o644))
	_, err = Open(huge)
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestInvalidDataOffsets(t *testing.T) {
	t.Parallel()
	path := writeRaw(t, map[string]any{
		"bad_tensor": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
	}, nil)
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrCorruptFile)

	// Offsets past the end of the payload.
	path = writeRaw(t, map[string]any{"t": tensorEntry("F32", []int{4}, 0, 16)}, make([]byte, 8))
	_, err = Open(path)
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	path := writeRaw(t, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"tensor1":      tensorEntry("F32", []int{4}, 0, 16),
	}, make([]byte, 16))

	sf, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = sf.Close() }()
	assert.Len(t, sf.Tensors, 1)
	assert.Equal(t, map[string]string{"format": "pt"}, sf.Metadata)
}

func TestTensorNotFound(t *testing.T) {
	t.Parallel()
	path := writeRaw(t, map[string]any{"a": tensorEntry("F32", []int{1}, 0, 4)}, make([]byte, 4))
	f, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, ok := f.Tensor("nonexistent")
	assert.False(t, ok)
	_, _, err = f.ReadTensor("nonexistent")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestReadTensorDTypes(t *testing.T) {
	t.Parallel()

	f32 := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		binary.LittleEndian.PutUint32(f32[i*4:], math.Float32bits(v))
	}
	bf16 := make([]byte, 4)
	binary.LittleEndian.PutUint16(bf16[0:], 0x3F80)
	binary.LittleEndian.PutUint16(bf16[2:], 0x4000)
	f16 := make([]byte, 4)
	binary.LittleEndian.PutUint16(f16[0:], 0x3C00)
	binary.LittleEndian.PutUint16(f16[2:], 0xC000)

	cases := []struct {
		name  string
		dtype string
		data  []byte
		want  []float32
	}{
		{"f32", "F32", f32, []float32{1, 2, 3, 4}},
		{"bf16", "BF16", bf16, []float32{1, 2}},
		{"f16", "F16", f16, []float32{1, -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRaw(t, map[string]any{"test": tensorEntry(tc.dtype, []int{len(tc.want)}, 0, int64(len(tc.data)))}, tc.data)
			sf, err := Open(path)
			require.NoError(t, err)
			defer func() { _ = sf.Close() }()

			got, info, err := sf.ReadTensorF32("test")
			require.NoError(t, err)
			assert.Equal(t, tc.dtype, info.DType)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadTensorRejects(t *testing.T) {
	t.Parallel()
	path := writeRaw(t, map[string]any{
		"ints":  tensorEntry("I32", []int{2}, 0, 8),
		"short": tensorEntry("F32", []int{4}, 8, 16),
	}, make([]byte, 16))
	sf, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = sf.Close() }()

	_, _, err = sf.ReadTensorF32("ints")
	assert.ErrorIs(t, err, ErrUnsupportedDType)
	_, _, err = sf.ReadTensorF32("short")
	assert.Error(t, err)

	dst := make([]float32, 3)
	assert.Error(t, sf.ReadInto("ints", dst))
}

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	w := NewWriter()
	w.SetMetadata("format", "rnmt")
	require.NoError(t, w.AddF32("a", []int{2, 2}, []float32{1, 2, 3, 4}))
	require.NoError(t, w.AddF32("b", []int{3}, []float32{-1, 0.5, 7}))
	assert.Error(t, w.AddF32("a", []int{1}, []float32{0}))
	assert.Error(t, w.AddF32("c", []int{2}, []float32{0}))
	require.NoError(t, w.WriteFile(path))

	sf, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = sf.Close() }()

	assert.Equal(t, []string{"a", "b"}, sf.Names())
	assert.Equal(t, "rnmt", sf.Metadata["format"])
	assert.Zero(t, sf.dataStart%8)

	got, _, err := sf.ReadTensorF32("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)

	dst := make([]float32, 3)
	require.NoError(t, sf.ReadInto("b", dst))
	assert.Equal(t, []float32{-1, 0.5, 7}, dst)
	assert.Error(t, sf.ReadInto("b", make([]float32, 2)))
}

func TestClose(t *testing.T) {
	t.Parallel()
	path := writeRaw(t, map[string]any{"a": tensorEntry("F32", []int{1}, 0, 4)}, make([]byte, 4))
	sf, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, sf.Close())
	require.NoError(t, sf.Close())
	_, _, err = sf.ReadTensor("a")
	assert.Error(t, err)
}
