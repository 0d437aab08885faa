// Package corpus loads the raw text that questions are answered against.
package corpus

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by a Source when the corpus cannot be loaded.
// Callers translate it into a user-facing message instead of answering.
var ErrUnavailable = errors.New("corpus unavailable")

// Corpus is the immutable text of one request plus provenance metadata.
type Corpus struct {
	ID       string            `json:"id,omitempty"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Empty reports whether the corpus has no text at all.
func (c Corpus) Empty() bool { return c.Text == "" }

// Request identifies the corpus to load. Exactly one of Path or ChatID is
// expected to be set.
type Request struct {
	// Path is a local file (.txt, .md, .json, .pdf).
	Path string `json:"path,omitempty"`

	// ChatID, TopicID and From select a chat history from the collector service.
	ChatID  int64     `json:"chat_id,omitempty"`
	TopicID int64     `json:"topic_id,omitempty"`
	From    time.Time `json:"from,omitempty"`
}

// Source fetches a corpus for a request.
type Source interface {
	Fetch(ctx context.Context, req Request) (Corpus, error)
}

// Router dispatches a request to the file or chat source depending on which
// fields are set.
type Router struct {
	Files Source
	Chats Source
}

// Fetch implements Source.
func (r *Router) Fetch(ctx context.Context, req Request) (Corpus, error) {
	switch {
	case req.Path != "" && r.Files != nil:
		return r.Files.Fetch(ctx, req)
	case req.ChatID != 0 && r.Chats != nil:
		return r.Chats.Fetch(ctx, req)
	default:
		return Corpus{}, ErrUnavailable
	}
}

// Static always returns the same corpus. Used when the text is already in hand.
type Static Corpus

// Fetch implements Source.
func (s Static) Fetch(_ context.Context, _ Request) (Corpus, error) {
	return Corpus(s), nil
}
