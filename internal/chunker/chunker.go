// Package chunker splits a corpus into ordered, token-bounded, overlapping
// chunks.
//
// Text is first segmented into units: a run of non-whitespace plus the
// whitespace that follows it. Units tile the text exactly, so chunk texts
// minus their overlaps always reassemble the original corpus byte for byte.
package chunker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/tokens"
)

// ErrInvalidProfile is returned for non-positive budgets or an overlap that
// does not fit inside the budget.
var ErrInvalidProfile = errors.New("invalid chunking profile")

// Chunk is one ordered span of a corpus.
type Chunk struct {
	Index      int               `json:"index"`
	Text       string            `json:"text"`
	TokenCount int               `json:"token_count"`
	Start      int               `json:"start"`   // byte offset of Text in the corpus
	End        int               `json:"end"`     // exclusive
	Overlap    int               `json:"overlap"` // leading bytes repeated from the previous chunk
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Fresh returns the part of the chunk not already covered by its predecessor.
func (c Chunk) Fresh() string { return c.Text[c.Overlap:] }

// Profile bounds chunk size and overlap in estimated tokens.
type Profile struct {
	MaxTokens int `mapstructure:"max_tokens" json:"max_tokens"`
	Overlap   int `mapstructure:"overlap" json:"overlap"`
}

var (
	// RAGProfile produces small chunks for retrieval precision.
	RAGProfile = Profile{MaxTokens: 500, Overlap: 100}
	// MapReduceProfile produces near-context-window chunks to keep the number
	// of map calls low.
	MapReduceProfile = Profile{MaxTokens: 100000, Overlap: 100}
)

// Validate checks that the profile can make progress.
func (p Profile) Validate() error {
	if p.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidProfile, p.MaxTokens)
	}
	if p.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidProfile, p.Overlap)
	}
	if p.Overlap >= p.MaxTokens {
		return fmt.Errorf("%w: overlap (%d) must be smaller than max tokens (%d)", ErrInvalidProfile, p.Overlap, p.MaxTokens)
	}
	return nil
}

// Chunker splits text with a fixed profile and token estimator.
type Chunker struct {
	est     tokens.Estimator
	profile Profile
}

// New creates a Chunker. A nil estimator means tokens.Heuristic.
func New(est tokens.Estimator, p Profile) (*Chunker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if est == nil {
		est = tokens.Heuristic{}
	}
	return &Chunker{est: est, profile: p}, nil
}

// Profile returns the profile the chunker was built with.
func (c *Chunker) Profile() Profile { return c.profile }

// Split splits a corpus with the heuristic estimator.
func Split(doc corpus.Corpus, maxTokens, overlapTokens int) ([]Chunk, error) {
	c, err := New(tokens.Heuristic{}, Profile{MaxTokens: maxTokens, Overlap: overlapTokens})
	if err != nil {
		return nil, err
	}
	return c.Split(doc), nil
}

type unit struct {
	start, end int
	cost       int
	boundary   bool // ends a sentence or a line
}

// Split returns the chunks of doc in corpus order. An empty or
// whitespace-only corpus yields no chunks; any other corpus yields at least
// one.
func (c *Chunker) Split(doc corpus.Corpus) []Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	units := c.segment(doc.Text)
	pre := make([]int, len(units)+1)
	for i, u := range units {
		pre[i+1] = pre[i] + u.cost
	}
	cost := func(a, b int) int { return pre[b] - pre[a] }

	limit := c.profile.MaxTokens
	var chunks []Chunk
	start, fresh := 0, 0
	for fresh < len(units) {
		for start < fresh && cost(start, fresh+1) > limit {
			start++
		}

		end := fresh + 1
		for end < len(units) && cost(start, end+1) <= limit {
			end++
		}

		// Prefer cutting at a sentence or line end when that keeps the chunk
		// at least half full.
		if end < len(units) && !units[end-1].boundary {
			for b := end - 2; b >= fresh; b-- {
				if 2*cost(start, b+1) < limit {
					break
				}
				if units[b].boundary {
					end = b + 1
					break
				}
			}
		}

		from, to := units[start].start, units[end-1].end
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       doc.Text[from:to],
			TokenCount: cost(start, end),
			Start:      from,
			End:        to,
			Overlap:    units[fresh].start - from,
			Metadata:   chunkMetadata(doc, len(chunks)),
		})

		next := start + 1
		for next < end && cost(next, end) > c.profile.Overlap {
			next++
		}
		start, fresh = next, end
	}
	return chunks
}

// segment tiles text into units. Leading whitespace joins the first unit.
func (c *Chunker) segment(text string) []unit {
	var units []unit
	i := skip(text, 0, true)
	from := 0
	for i < len(text) {
		i = skip(text, i, false)
		i = skip(text, i, true)
		units = append(units, c.fit(text, from, i)...)
		from = i
	}
	return units
}

// fit returns text[from:to] as one unit, or as several rune-aligned pieces
// when the word alone exceeds the budget. A single rune is never split.
func (c *Chunker) fit(text string, from, to int) []unit {
	s := text[from:to]
	limit := c.profile.MaxTokens
	if cost := c.est.Estimate(s); cost <= limit {
		return []unit{{start: from, end: to, cost: cost, boundary: isBoundary(s)}}
	}

	offs := make([]int, 0, len(s)+1)
	for i := range s {
		offs = append(offs, i)
	}
	offs = append(offs, len(s))

	var pieces []unit
	for lo := 0; lo < len(offs)-1; {
		best := lo + 1
		l, h := lo+2, len(offs)-1
		for l <= h {
			mid := (l + h) / 2
			if c.est.Estimate(s[offs[lo]:offs[mid]]) <= limit {
				best, l = mid, mid+1
			} else {
				h = mid - 1
			}
		}
		pieces = append(pieces, unit{
			start: from + offs[lo],
			end:   from + offs[best],
			cost:  c.est.Estimate(s[offs[lo]:offs[best]]),
		})
		lo = best
	}
	pieces[len(pieces)-1].boundary = isBoundary(s)
	return pieces
}

func skip(text string, i int, space bool) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) != space {
			break
		}
		i += size
	}
	return i
}

func isBoundary(s string) bool {
	if strings.ContainsRune(s, '\n') {
		return true
	}
	word := strings.TrimRightFunc(s, unicode.IsSpace)
	if word == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(word)
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func chunkMetadata(doc corpus.Corpus, index int) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	if doc.ID != "" {
		meta["corpus_id"] = doc.ID
	}
	meta["chunk_index"] = strconv.Itoa(index)
	return meta
}
