package answer

import (
	"errors"
	"fmt"
)

var (
	// ErrChunkBudgetExceeded reports that more chunks produced findings than
	// the reduce stage accepts. It is a capacity error and must not be retried.
	ErrChunkBudgetExceeded = errors.New("chunk budget exceeded")

	// ErrPortFailure marks failures of the completion model or the similarity
	// index.
	ErrPortFailure = errors.New("port failure")
)

// BudgetError is returned when the number of relevant findings exceeds the
// reduce limit.
type BudgetError struct {
	Findings int
	Limit    int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s: %d chunks produced findings, reduce accepts at most %d (raise the chunk size or use the rag strategy)",
		ErrChunkBudgetExceeded, e.Findings, e.Limit)
}

func (e *BudgetError) Is(target error) bool { return target == ErrChunkBudgetExceeded }

// Stage names the step of an answering run that failed.
type Stage string

const (
	StageMap    Stage = "map_chunk"
	StageReduce Stage = "reduce"
	StageIndex  Stage = "index"
	StageRAG    Stage = "rag_answer"
)

// PortError wraps a failure from the completion model or the index.
// ChunkIndex is -1 when the failure is not tied to one chunk.
type PortError struct {
	Stage      Stage
	ChunkIndex int
	Err        error
}

func (e *PortError) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("%s (chunk %d): %v", e.Stage, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

func (e *PortError) Is(target error) bool { return target == ErrPortFailure }
