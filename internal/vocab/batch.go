package vocab

import (
	"slices"
)

// Batch is a rectangular block of right-padded source sequences.
// Mask[i][j] is true where Tokens[i][j] is padding, matching the
// (batch, 1, seq_len) pad mask of the encoder and cross attention.
type Batch struct {
	Tokens [][]int
	Mask   [][]bool
	// Index maps each row back to its position in the caller's input.
	Index []int
}

// Len is the padded sequence length.
func (b *Batch) Len() int {
	if len(b.Tokens) == 0 {
		return 0
	}
	return len(b.Tokens[0])
}

// Pad right-pads seqs with PadID to the longest length and derives the mask.
func Pad(seqs [][]int) Batch {
	width := 0
	for _, s := range seqs {
		width = max(width, len(s))
	}
	b := Batch{
		Tokens: make([][]int, len(seqs)),
		Mask:   make([][]bool, len(seqs)),
		Index:  make([]int, len(seqs)),
	}
	for i, s := range seqs {
		row := make([]int, width)
		copy(row, s)
		mask := make([]bool, width)
		for j := range mask {
			mask[j] = row[j] == PadID
		}
		b.Tokens[i] = row
		b.Mask[i] = mask
		b.Index[i] = i
	}
	return b
}

// Batches groups seqs by length so little padding is wasted. A batch holds at
// most maxBatch rows and at most maxTokens padded tokens (a single sequence
// longer than maxTokens still gets its own batch). Zero disables a limit.
// Index on every batch refers to positions in seqs.
func Batches(seqs [][]int, maxTokens, maxBatch int) []Batch {
	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return len(seqs[a]) - len(seqs[b])
	})

	var out []Batch
	var cur []int
	flush := func() {
		if len(cur) == 0 {
			return
		}
		group := make([][]int, len(cur))
		for i, idx := range cur {
			group[i] = seqs[idx]
		}
		b := Pad(group)
		b.Index = append([]int(nil), cur...)
		out = append(out, b)
		cur = cur[:0]
	}
	for _, idx := range order {
		// Sorted ascending, so the incoming sequence sets the padded width.
		width := len(seqs[idx])
		rows := len(cur) + 1
		if len(cur) > 0 {
			if maxBatch > 0 && rows > maxBatch {
				flush()
			} else if maxTokens > 0 && rows*width > maxTokens {
				flush()
			}
		}
		cur = append(cur, idx)
	}
	flush()
	return out
}
