package tui

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/metrics"
	"github.com/efebarandurmaz/sift/internal/pipeline"
)

type fakeAsker struct {
	mu    sync.Mutex
	reqs  []pipeline.Request
	reply pipeline.Reply
	err   error
}

func (f *fakeAsker) Ask(_ context.Context, req pipeline.Request) (pipeline.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func sized(t *testing.T, m ChatModel) ChatModel {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(ChatModel)
}

// findAnswer runs the commands produced by a submit until an answerMsg
// appears.
func findAnswer(t *testing.T, cmd tea.Cmd) answerMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if am, ok := c().(answerMsg); ok {
				return am
			}
		}
		t.Fatal("batch produced no answer")
	}
	am, ok := msg.(answerMsg)
	if !ok {
		t.Fatalf("expected answerMsg, got %T", msg)
	}
	return am
}

func submit(t *testing.T, m ChatModel, question string) (ChatModel, tea.Cmd) {
	t.Helper()
	m.input.SetValue(question)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(ChatModel), cmd
}

func TestChat_AskRecordsAnswer(t *testing.T) {
	run := metrics.New("rag", "fake")
	run.SetChunks(3)
	asker := &fakeAsker{reply: pipeline.Reply{Answer: "The deploy moved to Friday.", Found: true, Run: run}}
	src := corpus.Request{Path: "notes.txt"}
	m := sized(t, NewChatModel(context.Background(), asker, NewSession("notes.txt", src)))

	m, cmd := submit(t, m, "  When is the deploy?  ")
	if !m.busy {
		t.Fatal("expected model to be busy after submit")
	}
	if m.input.Value() != "" {
		t.Errorf("expected input to be cleared, got %q", m.input.Value())
	}
	if !strings.Contains(m.View(), "When is the deploy?") {
		t.Error("expected pending question in view")
	}

	next, _ := m.Update(findAnswer(t, cmd))
	m = next.(ChatModel)

	if m.busy {
		t.Error("expected model to be idle after answer")
	}
	if len(asker.reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(asker.reqs))
	}
	req := asker.reqs[0]
	if req.Question != "When is the deploy?" || req.Strategy != pipeline.StrategyRAG || req.Source != src {
		t.Errorf("unexpected request %+v", req)
	}

	ex := m.Session().Exchanges
	if len(ex) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(ex))
	}
	if ex[0].Status != StatusAnswered || ex[0].Answer != "The deploy moved to Friday." || ex[0].Chunks != 3 {
		t.Errorf("unexpected exchange %+v", ex[0])
	}
	if !strings.Contains(m.View(), "Friday") {
		t.Error("expected answer in view")
	}
}

func TestChat_NoInformation(t *testing.T) {
	asker := &fakeAsker{reply: pipeline.Reply{Message: pipeline.MsgNoInformation}}
	m := sized(t, NewChatModel(context.Background(), asker, NewSession("chat 7", corpus.Request{ChatID: 7})))

	m, cmd := submit(t, m, "Who won the match?")
	next, _ := m.Update(findAnswer(t, cmd))
	m = next.(ChatModel)

	ex := m.Session().Exchanges[0]
	if ex.Status != StatusNoInfo || ex.Text() != pipeline.MsgNoInformation {
		t.Errorf("unexpected exchange %+v", ex)
	}
}

func TestChat_Error(t *testing.T) {
	asker := &fakeAsker{err: errors.New("provider down")}
	m := sized(t, NewChatModel(context.Background(), asker, NewSession("x", corpus.Request{Path: "x"})))

	m, cmd := submit(t, m, "Anything?")
	next, _ := m.Update(findAnswer(t, cmd))
	m = next.(ChatModel)

	ex := m.Session().Exchanges[0]
	if ex.Status != StatusFailed || ex.Error != "provider down" {
		t.Errorf("unexpected exchange %+v", ex)
	}
	if !strings.Contains(m.View(), "provider down") {
		t.Error("expected error in view")
	}
}

func TestChat_IgnoresEmptyInputAndBusy(t *testing.T) {
	asker := &fakeAsker{reply: pipeline.Reply{Answer: "a", Found: true}}
	m := sized(t, NewChatModel(context.Background(), asker, NewSession("x", corpus.Request{Path: "x"})))

	m, cmd := submit(t, m, "   ")
	if cmd != nil || m.busy {
		t.Fatal("expected empty input to be ignored")
	}

	m, cmd = submit(t, m, "first")
	if cmd == nil {
		t.Fatal("expected a command for the first question")
	}
	m, cmd = submit(t, m, "second")
	if cmd != nil {
		t.Error("expected second question to be ignored while busy")
	}
	if m.pending != "first" {
		t.Errorf("expected pending question %q, got %q", "first", m.pending)
	}
}

func TestChat_Quit(t *testing.T) {
	m := sized(t, NewChatModel(context.Background(), &fakeAsker{}, NewSession("x", corpus.Request{Path: "x"})))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if next.(ChatModel).View() != "" {
		t.Error("expected empty view after quit")
	}
}

func TestChat_ViewBeforeSize(t *testing.T) {
	m := NewChatModel(context.Background(), &fakeAsker{}, NewSession("x", corpus.Request{Path: "x"}))
	if m.View() != "Loading..." {
		t.Errorf("unexpected view %q", m.View())
	}
}

func sessionWithExchanges() *Session {
	s := NewSession("notes.txt", corpus.Request{Path: "notes.txt"})
	s.Exchanges = []*Exchange{
		{Question: "a", Answer: "yes", Status: StatusAnswered, Tokens: 100},
		{Question: "b", Message: pipeline.MsgNoInformation, Status: StatusNoInfo, Tokens: 50},
		{Question: "c", Error: "timeout", Status: StatusFailed},
	}
	return s
}

func TestSession_Stats(t *testing.T) {
	st := sessionWithExchanges().Stats()
	want := SessionStats{Total: 3, Answered: 1, NoInfo: 1, Failed: 1, Tokens: 150}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(sessionWithExchanges(), nil)
	for _, want := range []string{"Chat Summary", "notes.txt", "Questions asked:       3", "Failed questions:", "timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSaveTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	if err := SaveTranscript(sessionWithExchanges(), path); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}

	var got struct {
		Label     string `json:"label"`
		Exchanges []struct {
			Question string `json:"question"`
			Status   string `json:"status"`
		} `json:"exchanges"`
		Summary SessionStats `json:"summary"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Label != "notes.txt" || len(got.Exchanges) != 3 {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if got.Exchanges[1].Status != "no_info" {
		t.Errorf("expected status by name, got %q", got.Exchanges[1].Status)
	}
	if got.Summary.Total != 3 {
		t.Errorf("unexpected summary %+v", got.Summary)
	}
}
