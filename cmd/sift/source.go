package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/sift/internal/corpus"
)

const dateLayout = "2006-01-02"

// sourceFlags selects the corpus: a local file or a chat history.
type sourceFlags struct {
	file    string
	chatID  int64
	topicID int64
	from    string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Local document (.txt, .md, .json, .pdf)")
	cmd.Flags().Int64Var(&f.chatID, "chat-id", 0, "Chat to load from the chats service")
	cmd.Flags().Int64Var(&f.topicID, "topic-id", 0, "Restrict the chat history to one topic")
	cmd.Flags().StringVar(&f.from, "from", "", "Only chat messages on or after this date (YYYY-MM-DD)")
}

// request validates the flags and converts them to a corpus request.
func (f *sourceFlags) request() (corpus.Request, error) {
	switch {
	case f.file != "" && f.chatID != 0:
		return corpus.Request{}, errors.New("--file and --chat-id are mutually exclusive")
	case f.file == "" && f.chatID == 0:
		return corpus.Request{}, errors.New("one of --file or --chat-id is required")
	case f.file != "" && (f.topicID != 0 || f.from != ""):
		return corpus.Request{}, errors.New("--topic-id and --from only apply to --chat-id")
	}

	req := corpus.Request{Path: f.file, ChatID: f.chatID, TopicID: f.topicID}
	if f.from != "" {
		t, err := time.Parse(dateLayout, f.from)
		if err != nil {
			return corpus.Request{}, fmt.Errorf("--from %q: want YYYY-MM-DD", f.from)
		}
		req.From = t
	}
	return req, nil
}

// label names the corpus for display.
func (f *sourceFlags) label() string {
	if f.file != "" {
		return filepath.Base(f.file)
	}
	s := fmt.Sprintf("chat %d", f.chatID)
	if f.topicID != 0 {
		s += fmt.Sprintf(" / topic %d", f.topicID)
	}
	if f.from != "" {
		s += " since " + f.from
	}
	return s
}
