package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("first line\nsecond line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewFileSource(nil).Fetch(context.Background(), Request{Path: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text != "first line\nsecond line\n" {
		t.Errorf("unexpected text %q", c.Text)
	}
	if c.ID != "notes.txt" {
		t.Errorf("expected ID notes.txt, got %q", c.ID)
	}
	if c.Metadata["source"] != "file" {
		t.Errorf("expected source=file metadata, got %v", c.Metadata)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(nil).Fetch(context.Background(), Request{Path: "/does/not/exist.txt"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestChatsSource_Fetch(t *testing.T) {
	var captured map[string]map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatHistoryPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"body": map[string]any{
				"messages": []map[string]any{
					{"author": "alice", "text": "release is on friday"},
					{"author": "bob", "text": "ok"},
				},
			},
		})
	}))
	defer server.Close()

	src := NewChatsSource(server.URL+"/", time.Second, nil)
	from := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)
	c, err := src.Fetch(context.Background(), Request{ChatID: 42, TopicID: 7, From: from})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := captured["body"]
	if req["chatId"] != float64(42) {
		t.Errorf("expected chatId 42, got %v", req["chatId"])
	}
	if req["topicId"] != float64(7) {
		t.Errorf("expected topicId 7, got %v", req["topicId"])
	}
	if req["dateFrom"] != "2024-03-15T00:00:00" {
		t.Errorf("expected start-of-day dateFrom, got %v", req["dateFrom"])
	}

	var msgs []map[string]string
	if err := json.Unmarshal([]byte(c.Text), &msgs); err != nil {
		t.Fatalf("corpus text is not the message array: %v", err)
	}
	if len(msgs) != 2 || msgs[0]["author"] != "alice" {
		t.Errorf("unexpected messages %v", msgs)
	}
	if c.Metadata["chat_id"] != "42" || c.Metadata["topic_id"] != "7" {
		t.Errorf("unexpected metadata %v", c.Metadata)
	}
}

func TestChatsSource_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"missing body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewChatsSource(server.URL, time.Second, nil).Fetch(context.Background(), Request{ChatID: 1})
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestChatsSource_NoMessagesIsEmptyCorpus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"body":{"messages":[]}}`))
	}))
	defer server.Close()

	c, err := NewChatsSource(server.URL, time.Second, nil).Fetch(context.Background(), Request{ChatID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Empty() {
		t.Errorf("expected empty corpus, got %q", c.Text)
	}
}

func TestRouter_Fetch(t *testing.T) {
	files := Static{Text: "from file"}
	chats := Static{Text: "from chat"}
	r := &Router{Files: files, Chats: chats}

	c, err := r.Fetch(context.Background(), Request{Path: "x.txt"})
	if err != nil || c.Text != "from file" {
		t.Errorf("expected file source, got %q, %v", c.Text, err)
	}

	c, err = r.Fetch(context.Background(), Request{ChatID: 5})
	if err != nil || c.Text != "from chat" {
		t.Errorf("expected chat source, got %q, %v", c.Text, err)
	}

	if _, err := r.Fetch(context.Background(), Request{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for empty request, got %v", err)
	}
}
