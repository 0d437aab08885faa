package answer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/vector"
)

// fakeCompleter answers through respond and records every call.
type fakeCompleter struct {
	respond func(p *llm.Prompt) (string, error)
	delay   func(p *llm.Prompt) time.Duration

	mu          sync.Mutex
	prompts     []*llm.Prompt
	opts        []*llm.RequestOptions
	inFlight    int
	maxInFlight int
}

func (f *fakeCompleter) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.opts = append(f.opts, opts)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(p)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	text, err := f.respond(p)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: text}, nil
}

// calls counts recorded prompts with the given system prompt.
func (f *fakeCompleter) calls(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if p.SystemPrompt == system {
			n++
		}
	}
	return n
}

func (f *fakeCompleter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func userText(p *llm.Prompt) string { return p.Messages[0].Content }

// paragraphs builds n paragraphs of exactly ten heuristic tokens each, so a
// ten-token profile yields one chunk per paragraph.
func paragraphs(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Paragraph %c talks about item%c.", 'A'+i, 'A'+i)
	}
	return b.String()
}

var paragraphProfile = chunker.Profile{MaxTokens: 10, Overlap: 0}

// fakeIndex stores added chunks and answers queries through order.
type fakeIndex struct {
	order    func(added []chunker.Chunk) []chunker.Chunk
	addErr   error
	queryErr error

	added  []chunker.Chunk
	topK   int
	closed bool
}

func (x *fakeIndex) Add(_ context.Context, chunks []chunker.Chunk) error {
	if x.addErr != nil {
		return x.addErr
	}
	x.added = append(x.added, chunks...)
	return nil
}

func (x *fakeIndex) Query(_ context.Context, _ string, topK int) ([]chunker.Chunk, error) {
	x.topK = topK
	if x.queryErr != nil {
		return nil, x.queryErr
	}
	out := x.added
	if x.order != nil {
		out = x.order(x.added)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (x *fakeIndex) Close() error {
	x.closed = true
	return nil
}

// indexRecorder is a vector.Factory handing out fakeIndexes built by make.
type indexRecorder struct {
	make    func() *fakeIndex
	err     error
	created []*fakeIndex
}

func (r *indexRecorder) factory() vector.Factory {
	return func(context.Context) (vector.Index, error) {
		if r.err != nil {
			return nil, r.err
		}
		x := &fakeIndex{}
		if r.make != nil {
			x = r.make()
		}
		r.created = append(r.created, x)
		return x, nil
	}
}
