// Package tokenize prepares raw text datasets for retriever training: it
// encodes the query and doc text columns into token-id and attention-mask
// columns, persists the result as a dataset directory and optionally zips it.
package tokenize

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder converts text into token ids.
type Encoder interface {
	Encode(text string) []int
}

// DefaultEncoding is used when Options.Encoding is empty.
const DefaultEncoding = "cl100k_base"

type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns an Encoder backed by the named tiktoken encoding.
func NewTiktoken(encoding string) (Encoder, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenize: encoding %q: %w", encoding, err)
	}
	return &tiktokenEncoder{enc: enc}, nil
}

func (t *tiktokenEncoder) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}
