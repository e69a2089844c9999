package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Truncator bounds an input document to a token budget before it reaches the
// provider, so a long transcript never blows a fixed-context model's limit
// mid-call and fails expensively after the network round trip.
type Truncator struct {
	enc *tiktoken.Tiktoken
}

func NewTruncator(encoding string) (*Truncator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Truncator{enc: enc}, nil
}

// Truncate drops tokens from the end of input past maxTokens, returning the
// re-decoded string and whether truncation actually happened.
func (t *Truncator) Truncate(input string, maxTokens int) (string, bool) {
	tokens := t.enc.Encode(input, nil, nil)
	if len(tokens) <= maxTokens {
		return input, false
	}
	return t.enc.Decode(tokens[:maxTokens]), true
}

func (t *Truncator) Count(input string) int {
	return len(t.enc.Encode(input, nil, nil))
}
