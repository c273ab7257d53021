package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	json "github.com/goccy/go-json"
)

type entry struct {
	name  string
	shape []int
	data  []float32
}

// Writer collects F32 tensors and serialises them in insertion order.
type Writer struct {
	entries []entry
	seen    map[string]struct{}
	meta    map[string]string
}

func NewWriter() *Writer {
	return &Writer{seen: make(map[string]struct{})}
}

// SetMetadata records a free-form string pair in the header.
func (w *Writer) SetMetadata(key, value string) {
	if w.meta == nil {
		w.meta = make(map[string]string)
	}
	w.meta[key] = value
}

// AddF32 queues a tensor. data is read when the file is written.
func (w *Writer) AddF32(name string, shape []int, data []float32) error {
	if _, dup := w.seen[name]; dup {
		return fmt.Errorf("safetensors: duplicate tensor %s", name)
	}
	n, err := numElements(shape)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	if n != len(data) {
		return fmt.Errorf("tensor %s: shape %v holds %d elements, got %d", name, shape, n, len(data))
	}
	w.seen[name] = struct{}{}
	w.entries = append(w.entries, entry{name: name, shape: append([]int(nil), shape...), data: data})
	return nil
}

func (w *Writer) header() ([]byte, error) {
	h := make(map[string]any, len(w.entries)+1)
	var off int64
	for _, e := range w.entries {
		end := off + int64(len(e.data))*4
		h[e.name] = tensorHeader{DType: "F32", Shape: e.shape, DataOffsets: []int64{off, end}}
		off = end
	}
	if len(w.meta) > 0 {
		h[metadataKey] = w.meta
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	// Pad with spaces so tensor data starts 8-byte aligned.
	for len(b)%8 != 0 {
		b = append(b, ' ')
	}
	return b, nil
}

// WriteTo writes the complete file to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	hdr, err := w.header()
	if err != nil {
		return 0, fmt.Errorf("safetensors: header: %w", err)
	}
	bw := bufio.NewWriter(out)
	var written int64
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	n, err := bw.Write(lenBuf[:])
	written += int64(n)
	if err != nil {
		return written, err
	}
	n, err = bw.Write(hdr)
	written += int64(n)
	if err != nil {
		return written, err
	}
	var buf [4]byte
	for _, e := range w.entries {
		for _, v := range e.data {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			n, err = bw.Write(buf[:])
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
	}
	return written, bw.Flush()
}

// WriteFile writes the tensors to path, replacing any existing file.
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
