// Package metrics collects a per-question report: what was fetched, how it was
// chunked, and every model call made while answering.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Run collects statistics for one answering run. A nil *Run ignores every
// call, so code can record unconditionally.
type Run struct {
	mu sync.Mutex

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Strategy   string        `json:"strategy"`
	Provider   string        `json:"provider,omitempty"`
	Source     SourceMetrics `json:"source"`
	Chunks     int           `json:"chunks"`
	Retrieved  int           `json:"retrieved,omitempty"`
	Findings   int           `json:"findings,omitempty"`
	Calls      []CallMetrics `json:"calls"`
	Found      bool          `json:"found"`
	Errors     []string      `json:"errors,omitempty"`
}

// SourceMetrics describes the corpus a run answered from.
type SourceMetrics struct {
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
	Bytes  int    `json:"bytes"`
	Tokens int    `json:"tokens"`
}

// CallMetrics records one completion call.
type CallMetrics struct {
	Scenario   string        `json:"scenario"`
	ChunkIndex int           `json:"chunk_index"`
	Tokens     int           `json:"tokens"`
	Duration   time.Duration `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// New starts tracking a run.
func New(strategy, provider string) *Run {
	return &Run{StartedAt: time.Now(), Strategy: strategy, Provider: provider}
}

type ctxKey struct{}

// WithRun attaches r to ctx.
func WithRun(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the run attached to ctx, or nil.
func FromContext(ctx context.Context) *Run {
	r, _ := ctx.Value(ctxKey{}).(*Run)
	return r
}

// SetSource records the fetched corpus.
func (r *Run) SetSource(s SourceMetrics) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Source = s
}

// SetChunks records how many chunks the corpus was split into.
func (r *Run) SetChunks(n int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Chunks = n
}

// SetRetrieved records how many chunks a similarity query returned.
func (r *Run) SetRetrieved(n int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Retrieved = n
}

// SetFindings records how many map results were relevant.
func (r *Run) SetFindings(n int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Findings = n
}

// AddCall records a completion call. Safe for concurrent use.
func (r *Run) AddCall(c CallMetrics) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, c)
}

// TotalTokens sums the estimated tokens of every call.
func (r *Run) TotalTokens() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Calls {
		n += c.Tokens
	}
	return n
}

// Finish marks the run as complete.
func (r *Run) Finish(found bool, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.Found = found
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// PrintSummary writes a human-readable summary.
func (r *Run) PrintSummary(w io.Writer) {
	if r == nil {
		return
	}
	tokens := r.TotalTokens()

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║          SIFT ANSWER REPORT          ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Strategy:    %-23s║\n", r.Strategy)
	fmt.Fprintf(w, "║ Provider:    %-23s║\n", r.Provider)
	fmt.Fprintf(w, "║ Found:       %-23t║\n", r.Found)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ SOURCE (%s)\n", r.Source.Kind)
	if r.Source.ID != "" {
		fmt.Fprintf(w, "║   ID:          %s\n", r.Source.ID)
	}
	fmt.Fprintf(w, "║   Size:        %s\n", formatBytes(r.Source.Bytes))
	fmt.Fprintf(w, "║   Tokens:      ~%d\n", r.Source.Tokens)
	fmt.Fprintf(w, "║   Chunks:      %d\n", r.Chunks)
	if r.Retrieved > 0 {
		fmt.Fprintf(w, "║   Retrieved:   %d\n", r.Retrieved)
	}
	if r.Findings > 0 {
		fmt.Fprintf(w, "║   Findings:    %d\n", r.Findings)
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ LLM CALLS (%d, ~%d tokens)\n", len(r.Calls), tokens)
	for _, c := range r.Calls {
		status := "OK"
		if c.Error != "" {
			status = "FAILED"
		}
		label := c.Scenario
		if c.ChunkIndex >= 0 {
			label = fmt.Sprintf("%s #%d", c.Scenario, c.ChunkIndex)
		}
		fmt.Fprintf(w, "║   %-16s %8s  %6d tok  %s\n", label, c.Duration.Round(time.Millisecond), c.Tokens, status)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (r *Run) JSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r, "", "  ")
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
