package api

import (
	"fmt"

	"github.com/goccy/go-json"
)

// InputValue is the "input" field: a single sentence or a list of them.
type InputValue struct {
	Sentences []string
	List      bool
}

func (v *InputValue) UnmarshalJSON(b []byte) error {
	if v == nil {
		return fmt.Errorf("input value: nil receiver")
	}
	if len(b) == 0 || string(b) == "null" {
		*v = InputValue{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("input value: %w", err)
		}
		*v = InputValue{Sentences: []string{s}}
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("input value: expected an array of strings")
		}
		*v = InputValue{Sentences: items, List: true}
		return nil
	default:
		return fmt.Errorf("input value: expected string or array")
	}
}

func (v InputValue) MarshalJSON() ([]byte, error) {
	if !v.List && len(v.Sentences) == 1 {
		return json.Marshal(v.Sentences[0])
	}
	if v.Sentences == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v.Sentences)
}
