// Package vocab holds the reserved token ids shared by the encoder, decoder
// and classifier, and the vocabulary and padding helpers around them.
package vocab

// Reserved ids. Every component uses this single convention; regular words
// start at FirstWordID.
const (
	PadID = 0
	SOSID = 1
	EOSID = 2
	UNKID = 3

	FirstWordID = 4
)

// Reserved tokens in id order.
var Specials = []string{"<pad>", "<sos>", "<eos>", "<unk>"}

// DefaultForbidden lists the ids a classifier must never emit: padding and
// start-of-sequence. Add UNKID when the training data carries <unk>.
func DefaultForbidden() []int {
	return []int{PadID, SOSID}
}
