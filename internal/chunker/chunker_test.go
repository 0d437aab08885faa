package chunker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/tokens"
)

func reassemble(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Fresh())
	}
	return b.String()
}

func sampleText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Message %d from user%d mentions the deployment window and ticket #%d. ", i, i%7, i*13)
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{"rag defaults", RAGProfile, false},
		{"map-reduce defaults", MapReduceProfile, false},
		{"zero overlap", Profile{MaxTokens: 10, Overlap: 0}, false},
		{"zero max", Profile{MaxTokens: 0, Overlap: 0}, true},
		{"negative max", Profile{MaxTokens: -5, Overlap: 0}, true},
		{"negative overlap", Profile{MaxTokens: 10, Overlap: -1}, true},
		{"overlap equals max", Profile{MaxTokens: 10, Overlap: 10}, true},
		{"overlap exceeds max", Profile{MaxTokens: 10, Overlap: 20}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("expected ErrInvalidProfile, got %v", err)
			}
		})
	}
}

func TestSplit_EmptyCorpus(t *testing.T) {
	chunks, err := Split(corpus.Corpus{}, 10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplit_WhitespaceOnlyCorpus(t *testing.T) {
	for _, text := range []string{" ", " \n\t ", "\n\n\n"} {
		chunks, err := Split(corpus.Corpus{Text: text}, 10, 2)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("%q: expected no chunks, got %d", text, len(chunks))
		}
	}
}

func TestSplit_SmallCorpusSingleChunk(t *testing.T) {
	text := "  The release moved to Friday.\n"
	chunks, err := Split(corpus.Corpus{Text: text}, 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != text || c.Start != 0 || c.End != len(text) || c.Overlap != 0 {
		t.Errorf("unexpected chunk %+v", c)
	}
	if want := (tokens.Heuristic{}).Estimate(text); c.TokenCount != want {
		t.Errorf("expected token count %d, got %d", want, c.TokenCount)
	}
}

func TestSplit_InvalidProfile(t *testing.T) {
	if _, err := Split(corpus.Corpus{Text: "x"}, 5, 5); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestSplit_Coverage(t *testing.T) {
	texts := map[string]string{
		"sentences":   sampleText(120),
		"no boundary": strings.Repeat("lorem ipsum dolor sit amet ", 300),
		"long word":   "start " + strings.Repeat("x", 500) + " end",
		"multibyte":   strings.Repeat("Привет, как дела? Всё хорошо. ", 80),
		"leading ws":  "\n\n   " + sampleText(30),
	}
	profiles := []Profile{
		{MaxTokens: 20, Overlap: 0},
		{MaxTokens: 20, Overlap: 5},
		{MaxTokens: 50, Overlap: 49},
		{MaxTokens: 7, Overlap: 3},
		{MaxTokens: 1, Overlap: 0},
	}

	for name, text := range texts {
		for _, p := range profiles {
			t.Run(fmt.Sprintf("%s/%d-%d", name, p.MaxTokens, p.Overlap), func(t *testing.T) {
				chunks, err := Split(corpus.Corpus{Text: text}, p.MaxTokens, p.Overlap)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(chunks) < 2 {
					t.Fatalf("expected several chunks, got %d", len(chunks))
				}
				if got := reassemble(chunks); got != text {
					t.Fatalf("reassembled text differs from corpus (len %d vs %d)", len(got), len(text))
				}

				var h tokens.Heuristic
				for i, c := range chunks {
					if c.Index != i {
						t.Errorf("chunk %d has index %d", i, c.Index)
					}
					if c.TokenCount > p.MaxTokens {
						t.Errorf("chunk %d has %d tokens, budget %d", i, c.TokenCount, p.MaxTokens)
					}
					if h.Estimate(c.Text) > c.TokenCount {
						t.Errorf("chunk %d estimate %d exceeds recorded count %d", i, h.Estimate(c.Text), c.TokenCount)
					}
					if text[c.Start:c.End] != c.Text {
						t.Errorf("chunk %d offsets do not match its text", i)
					}
					if i == 0 {
						if c.Overlap != 0 {
							t.Errorf("first chunk has overlap %d", c.Overlap)
						}
						continue
					}
					prev := chunks[i-1]
					if !strings.HasSuffix(prev.Text, c.Text[:c.Overlap]) {
						t.Errorf("chunk %d overlap is not a suffix of chunk %d", i, i-1)
					}
					if c.Start < prev.Start {
						t.Errorf("chunk %d starts before chunk %d", i, i-1)
					}
					if c.Start+c.Overlap != prev.End {
						t.Errorf("chunk %d fresh text does not continue chunk %d", i, i-1)
					}
					if h.Estimate(c.Text[:c.Overlap]) > p.Overlap {
						t.Errorf("chunk %d overlap exceeds %d tokens", i, p.Overlap)
					}
				}
			})
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	doc := corpus.Corpus{ID: "chat-1", Text: sampleText(200), Metadata: map[string]string{"source": "chat"}}

	first, err := Split(doc, 40, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Split(doc, 40, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical chunk sequences for identical input")
	}
}

func TestSplit_OneChunkPerParagraph(t *testing.T) {
	text := "Paragraph A talks about apples.\n\n" +
		"Paragraph B talks about bikes.\n\n" +
		"Paragraph C talks about cars."

	chunks, err := Split(corpus.Corpus{Text: text}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"Paragraph A talks about apples.\n\n",
		"Paragraph B talks about bikes.\n\n",
		"Paragraph C talks about cars.",
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Text != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, c.Text, want[i])
		}
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta eta theta"
	chunks, err := Split(corpus.Corpus{Text: text}, 8, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks[0].Text != "Alpha beta gamma. " {
		t.Errorf("expected first chunk to end at the sentence, got %q", chunks[0].Text)
	}
	if reassemble(chunks) != text {
		t.Error("reassembled text differs from corpus")
	}
}

func TestSplit_Metadata(t *testing.T) {
	doc := corpus.Corpus{ID: "doc", Text: sampleText(40), Metadata: map[string]string{"source": "file"}}
	chunks, err := Split(doc, 30, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks {
		if c.Metadata["source"] != "file" || c.Metadata["corpus_id"] != "doc" {
			t.Errorf("chunk %d lost corpus metadata: %v", i, c.Metadata)
		}
		if c.Metadata["chunk_index"] != fmt.Sprint(i) {
			t.Errorf("chunk %d has chunk_index %q", i, c.Metadata["chunk_index"])
		}
	}
	if _, ok := doc.Metadata["chunk_index"]; ok {
		t.Error("corpus metadata was mutated")
	}
}

type runeEstimator struct{}

func (runeEstimator) Estimate(s string) int { return len([]rune(strings.TrimSpace(s))) }

func TestChunker_CustomEstimator(t *testing.T) {
	c, err := New(runeEstimator{}, Profile{MaxTokens: 5, Overlap: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := c.Split(corpus.Corpus{Text: "abcdefghijkl"})
	want := []string{"abcde", "fghij", "kl"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, ch := range chunks {
		if ch.Text != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, ch.Text, want[i])
		}
	}
}
