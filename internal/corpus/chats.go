package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const chatHistoryPath = "/tg-chats-collector/api/v1/search-chat-history"

// ChatsSource loads a chat transcript from the chats collector service. The
// messages array is re-serialized as JSON and used verbatim as corpus text.
type ChatsSource struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewChatsSource creates a chat-history source for the collector at baseURL.
func NewChatsSource(baseURL string, timeout time.Duration, logger *slog.Logger) *ChatsSource {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ChatsSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type commonRequest[T any] struct {
	Body T `json:"body"`
}

type commonResponse[T any] struct {
	Body *T `json:"body"`
}

type chatHistoryRequest struct {
	ChatID   int64  `json:"chatId"`
	TopicID  *int64 `json:"topicId,omitempty"`
	DateFrom string `json:"dateFrom,omitempty"`
}

type chatHistoryResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// Fetch implements Source. Every failure is reported as ErrUnavailable.
func (s *ChatsSource) Fetch(ctx context.Context, req Request) (Corpus, error) {
	s.logger.Info("loading chat history", "chat_id", req.ChatID, "topic_id", req.TopicID, "from", req.From)

	history, err := s.searchChatHistory(ctx, req)
	if err != nil {
		s.logger.Error("loading chat history", "chat_id", req.ChatID, "error", err)
		return Corpus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text, err := json.Marshal(history.Messages)
	if err != nil {
		return Corpus{}, fmt.Errorf("%w: encoding messages: %v", ErrUnavailable, err)
	}
	if len(history.Messages) == 0 {
		text = nil
	}

	meta := map[string]string{
		"source":   "chat",
		"chat_id":  strconv.FormatInt(req.ChatID, 10),
		"messages": strconv.Itoa(len(history.Messages)),
	}
	if req.TopicID != 0 {
		meta["topic_id"] = strconv.FormatInt(req.TopicID, 10)
	}
	return Corpus{
		ID:       "chat-" + meta["chat_id"],
		Text:     string(text),
		Metadata: meta,
	}, nil
}

func (s *ChatsSource) searchChatHistory(ctx context.Context, req Request) (*chatHistoryResponse, error) {
	body := chatHistoryRequest{ChatID: req.ChatID}
	if req.TopicID != 0 {
		topic := req.TopicID
		body.TopicID = &topic
	}
	if !req.From.IsZero() {
		y, m, d := req.From.Date()
		body.DateFrom = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05")
	}

	data, err := json.Marshal(commonRequest[chatHistoryRequest]{Body: body})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+chatHistoryPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chats collector: %s: %s", resp.Status, respBody)
	}

	var out commonResponse[chatHistoryResponse]
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding chat history: %w", err)
	}
	if out.Body == nil {
		return nil, fmt.Errorf("chats collector returned no body")
	}
	return out.Body, nil
}
