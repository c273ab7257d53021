package decode

// Hypothesis is one final beam entry.
type Hypothesis struct {
	Tokens []int
	Score  float32
	Done   bool
}

// Output is the result of a decode call. Tokens has one row per input
// sequence and every row has length Steps. Scores holds the score of each
// row in Tokens. Beams is only set when Options.ReturnAll was requested and
// lists every hypothesis of a sequence ordered best first, so Beams[b][0]
// is Tokens[b].
type Output struct {
	Tokens [][]int
	Scores []float32
	Beams  [][]Hypothesis
	Steps  int
}
