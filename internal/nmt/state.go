package nmt

import (
	"fmt"

	"github.com/samcharles93/rnmt/internal/decode"
	"github.com/samcharles93/rnmt/internal/tensor"
)

// ErrStateLayers reports a recurrent state whose layer count does not match
// the decoder.
var ErrStateLayers = fmt.Errorf("%w: recurrent state layer count mismatch", decode.ErrInvalidConfig)

// StepState is the (hidden, cell) pair of one recurrent layer, one row per
// candidate.
type StepState struct {
	Hidden tensor.Mat
	Cell   tensor.Mat
}

// State holds one StepState per decoder layer, index 0 being the first
// layer.
type State struct {
	Layers []StepState
}

func newState(layers, rows, width int) *State {
	s := &State{Layers: make([]StepState, layers)}
	for i := range s.Layers {
		s.Layers[i] = StepState{Hidden: tensor.NewMat(rows, width), Cell: tensor.NewMat(rows, width)}
	}
	return s
}

// Rows is the number of candidates.
func (s *State) Rows() int {
	if len(s.Layers) == 0 {
		return 0
	}
	return s.Layers[0].Hidden.R
}

// Gather copies the selected candidate rows into a new State.
func (s *State) Gather(rows []int) decode.State {
	out := &State{Layers: make([]StepState, len(s.Layers))}
	for i, l := range s.Layers {
		out.Layers[i] = StepState{Hidden: l.Hidden.GatherRows(rows), Cell: l.Cell.GatherRows(rows)}
	}
	return out
}

// Memory is the decoder-side view of an encoded batch: per candidate row the
// projected encoder output, the attention keys and values computed from it,
// and the source pad mask.
type Memory struct {
	Enc    []tensor.Mat
	Keys   []tensor.Mat
	Values []tensor.Mat
	Mask   [][]bool
}

func (m *Memory) Rows() int { return len(m.Enc) }

// Gather copies the selected rows into a new Memory.
func (m *Memory) Gather(rows []int) decode.Memory {
	out := &Memory{
		Enc:    make([]tensor.Mat, len(rows)),
		Keys:   make([]tensor.Mat, len(rows)),
		Values: make([]tensor.Mat, len(rows)),
		Mask:   make([][]bool, len(rows)),
	}
	for i, r := range rows {
		out.Enc[i] = m.Enc[r].Clone()
		out.Keys[i] = m.Keys[r].Clone()
		out.Values[i] = m.Values[r].Clone()
		out.Mask[i] = append([]bool(nil), m.Mask[r]...)
	}
	return out
}
