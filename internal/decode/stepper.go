// Package decode drives an incremental decoder to produce target sequences.
// It owns the greedy and beam search state machines: per-candidate
// recurrent state threading, beam fan-out, scoring, pruning, reparenting and
// termination. The neural network itself is an opaque Stepper.
package decode

import "github.com/samcharles93/rnmt/internal/tensor"

// State is the recurrent state of a batch of decoding candidates, one row
// per candidate. Gather must return a copy: row i of the result holds the
// contents of row rows[i] and later writes to either value must not be
// visible through the other.
type State interface {
	Rows() int
	Gather(rows []int) State
}

// Memory is the encoder output (and its pad mask) for a batch of candidates.
// Gather has the same copy semantics as State.Gather.
type Memory interface {
	Rows() int
	Gather(rows []int) Memory
}

// Stepper computes one decoding step. tokens holds the previous token of
// every candidate row. A nil st is the sentinel for "start from the learned
// initial state". The returned matrix holds log-probabilities, one row per
// candidate, and the returned state is the state after consuming tokens.
// Implementations must not mutate st or mem.
type Stepper interface {
	Step(tokens []int, st State, mem Memory) (tensor.Mat, State, error)
}
