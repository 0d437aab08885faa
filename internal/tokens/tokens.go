// Package tokens provides approximate token counting for chunk budgeting and
// per-call logging.
package tokens

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator returns an approximate token count for a piece of text.
type Estimator interface {
	Estimate(text string) int
}

// Heuristic counts roughly one token per four runes of every
// whitespace-separated word, with a minimum of one token per word.
// Whitespace costs nothing, so estimates are additive across word boundaries.
type Heuristic struct{}

// Estimate implements Estimator.
func (Heuristic) Estimate(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		n += (utf8.RuneCountInString(w) + 3) / 4
	}
	return n
}

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts tokens with an OpenAI BPE encoding.
type Tiktoken struct {
	tke *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding ("cl100k_base", "o200k_base", ...).
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}
	return &Tiktoken{tke: tke}, nil
}

// Estimate implements Estimator.
func (t *Tiktoken) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.tke.Encode(text, nil, nil))
}

// New builds an estimator by name: "heuristic" (or empty) or "tiktoken".
func New(name, encoding string) (Estimator, error) {
	switch name {
	case "", "heuristic":
		return Heuristic{}, nil
	case "tiktoken":
		return NewTiktoken(encoding)
	default:
		return nil, fmt.Errorf("unknown token estimator %q", name)
	}
}
