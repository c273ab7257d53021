package decode

import (
	"errors"

	"github.com/samcharles93/rnmt/internal/tensor"
)

const blocked = -1e9

// fakeMemory records which input sequence each candidate row belongs to.
type fakeMemory struct{ seq []int }

func newFakeMemory(bsize int) fakeMemory {
	m := fakeMemory{seq: make([]int, bsize)}
	for i := range m.seq {
		m.seq[i] = i
	}
	return m
}

func (m fakeMemory) Rows() int { return len(m.seq) }

func (m fakeMemory) Gather(rows []int) Memory {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = m.seq[r]
	}
	return fakeMemory{seq: out}
}

// fakeState is the full input history of each candidate row, SOS included.
type fakeState struct{ hist [][]int }

func (s fakeState) Rows() int { return len(s.hist) }

func (s fakeState) Gather(rows []int) State {
	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = append([]int(nil), s.hist[r]...)
	}
	return fakeState{hist: out}
}

// scriptStepper scores a row from its sequence id and the tokens it has
// generated so far. It records the tokens and state of every call.
type scriptStepper struct {
	vocab  int
	score  func(seq int, prefix []int) map[int]float32
	tokens [][]int
	states []fakeState
	rows   int // forces a wrong row count when non-zero
	fail   error
}

func (s *scriptStepper) Step(tokens []int, st State, mem Memory) (tensor.Mat, State, error) {
	if s.fail != nil {
		return tensor.Mat{}, nil, s.fail
	}
	m := mem.(fakeMemory)
	prev := fakeState{hist: make([][]int, len(tokens))}
	if st != nil {
		prev = st.Gather(identity(st.Rows())).(fakeState)
	}
	s.tokens = append(s.tokens, append([]int(nil), tokens...))
	s.states = append(s.states, prev)

	rows := len(tokens)
	if s.rows != 0 {
		rows = s.rows
	}
	out := tensor.NewMat(rows, s.vocab)
	next := fakeState{hist: make([][]int, len(tokens))}
	for r, t := range tokens {
		h := append(append([]int(nil), prev.hist[r]...), t)
		next.hist[r] = h
		if r >= rows {
			continue
		}
		row := out.Row(r)
		for i := range row {
			row[i] = blocked
		}
		for id, v := range s.score(m.seq[r], h[1:]) {
			if id < len(row) {
				row[id] = v
			}
		}
	}
	return out, next, nil
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

var errBoom = errors.New("boom")

// earlyStopScript: sequence 0 prefers token 3 twice and then EOS; sequence 1
// never prefers EOS. Scores are chosen so sequence 0 never sees a tie.
func earlyStopScript(seq int, prefix []int) map[int]float32 {
	if seq != 0 {
		return map[int]float32{3: -0.1, 4: -1, 2: -9}
	}
	switch len(prefix) {
	case 0:
		return map[int]float32{3: -0.1, 4: -1.5, 2: -5}
	case 1:
		return map[int]float32{3: -0.1, 4: -1, 2: -5}
	default:
		return map[int]float32{2: -0.1, 3: -0.5, 4: -2}
	}
}
