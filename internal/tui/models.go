package tui

import (
	"time"

	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/pipeline"
)

// ExchangeStatus is the outcome of one question.
type ExchangeStatus int

const (
	StatusPending ExchangeStatus = iota
	StatusAnswered
	StatusNoInfo
	StatusFailed
)

// String returns the string representation of ExchangeStatus
func (s ExchangeStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAnswered:
		return "answered"
	case StatusNoInfo:
		return "no_info"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name in transcripts.
func (s ExchangeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Exchange is one question and its outcome.
type Exchange struct {
	Question string         `json:"question"`
	Answer   string         `json:"answer,omitempty"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Status   ExchangeStatus `json:"status"`
	Chunks   int            `json:"chunks"`
	Tokens   int            `json:"tokens"`
	Duration time.Duration  `json:"duration_ns"`
	AskedAt  time.Time      `json:"asked_at"`
}

// newExchange records the outcome of an Ask call.
func newExchange(question string, reply pipeline.Reply, err error, askedAt time.Time, took time.Duration) *Exchange {
	ex := &Exchange{Question: question, AskedAt: askedAt, Duration: took}
	if reply.Run != nil {
		ex.Chunks = reply.Run.Chunks
		ex.Tokens = reply.Run.TotalTokens()
	}
	switch {
	case err != nil:
		ex.Status = StatusFailed
		ex.Error = err.Error()
	case reply.Found:
		ex.Status = StatusAnswered
		ex.Answer = reply.Answer
	default:
		ex.Status = StatusNoInfo
		ex.Message = reply.Message
	}
	return ex
}

// Text is what the transcript shows under the question.
func (e *Exchange) Text() string {
	switch e.Status {
	case StatusAnswered:
		return e.Answer
	case StatusFailed:
		return "Error: " + e.Error
	default:
		return e.Message
	}
}

// Session is one chat against a single corpus.
type Session struct {
	// Label describes the corpus in the header, e.g. a file name.
	Label     string         `json:"label"`
	Source    corpus.Request `json:"source"`
	Exchanges []*Exchange    `json:"exchanges"`
	StartedAt time.Time      `json:"started_at"`
}

// NewSession starts a chat over the corpus selected by src.
func NewSession(label string, src corpus.Request) *Session {
	return &Session{Label: label, Source: src, StartedAt: time.Now()}
}

// SessionStats summarizes a session.
type SessionStats struct {
	Total    int `json:"total"`
	Answered int `json:"answered"`
	NoInfo   int `json:"no_info"`
	Failed   int `json:"failed"`
	Tokens   int `json:"tokens"`
}

// Stats counts exchanges by status.
func (s *Session) Stats() SessionStats {
	var st SessionStats
	for _, e := range s.Exchanges {
		st.Total++
		st.Tokens += e.Tokens
		switch e.Status {
		case StatusAnswered:
			st.Answered++
		case StatusNoInfo:
			st.NoInfo++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}
