package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrEmptyVocab = errors.New("vocab: no entries")

// Vocab maps words to ids and back. It is immutable after Load and safe for
// concurrent use.
type Vocab struct {
	ids   map[string]int
	words []string
}

// LoadOptions bounds what Load keeps. MinFreq drops entries whose frequency
// column is below it; MaxSize caps the total size including specials. Zero
// disables a limit.
type LoadOptions struct {
	MinFreq int
	MaxSize int
}

// New builds a vocabulary from words in id order after the specials.
func New(words []string) *Vocab {
	v := &Vocab{
		ids:   make(map[string]int, len(Specials)+len(words)),
		words: make([]string, 0, len(Specials)+len(words)),
	}
	for _, w := range Specials {
		v.add(w)
	}
	for _, w := range words {
		v.add(w)
	}
	return v
}

func (v *Vocab) add(w string) bool {
	if _, ok := v.ids[w]; ok {
		return false
	}
	v.ids[w] = len(v.words)
	v.words = append(v.words, w)
	return true
}

// LoadFile reads a vocabulary file, see Read.
func LoadFile(path string, opts LoadOptions) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	v, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("vocab %s: %w", path, err)
	}
	return v, nil
}

// Read parses one entry per line: a word optionally followed by whitespace and
// an integer frequency. Entries are expected in decreasing frequency order, so
// reading stops at the first entry under MinFreq. Reserved tokens in the file
// are skipped.
func Read(r io.Reader, opts LoadOptions) (*Vocab, error) {
	v := New(nil)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if opts.MaxSize > 0 && v.Size() >= opts.MaxSize {
			break
		}
		if len(fields) > 1 && opts.MinFreq > 0 {
			freq, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad frequency %q", line, fields[1])
			}
			if freq < opts.MinFreq {
				break
			}
		}
		v.add(fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if v.Size() == len(Specials) {
		return nil, ErrEmptyVocab
	}
	return v, nil
}

// Write emits the non-reserved words one per line.
func (v *Vocab) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, word := range v.words[FirstWordID:] {
		if _, err := bw.WriteString(word + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Size is the number of ids including the specials.
func (v *Vocab) Size() int { return len(v.words) }

// ID returns the id of w or UNKID.
func (v *Vocab) ID(w string) int {
	if id, ok := v.ids[w]; ok {
		return id
	}
	return UNKID
}

// Word returns the surface form of id or "<unk>" when out of range.
func (v *Vocab) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return Specials[UNKID]
	}
	return v.words[id]
}

// Encode splits a whitespace-tokenised sentence into ids. No <sos>/<eos> is
// added; the encoder consumes bare source ids.
func (v *Vocab) Encode(sentence string) []int {
	fields := strings.Fields(sentence)
	ids := make([]int, len(fields))
	for i, f := range fields {
		ids[i] = v.ID(f)
	}
	return ids
}

// Decode turns decoder output into text. It stops at the first <eos> and drops
// padding and <sos>.
func (v *Vocab) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range Trim(ids) {
		if id == PadID || id == SOSID {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.Word(id))
	}
	return sb.String()
}

// Trim returns ids up to, not including, the first <eos>.
func Trim(ids []int) []int {
	for i, id := range ids {
		if id == EOSID {
			return ids[:i]
		}
	}
	return ids
}
