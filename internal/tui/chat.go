package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/sift/internal/pipeline"
)

// Asker answers one request. *pipeline.Orchestrator implements it.
type Asker interface {
	Ask(ctx context.Context, req pipeline.Request) (pipeline.Reply, error)
}

// answerMsg carries the result of an asynchronous Ask.
type answerMsg struct {
	question string
	reply    pipeline.Reply
	err      error
	askedAt  time.Time
	took     time.Duration
}

type keyMap struct {
	Ask      key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Ask, km.PageUp, km.PageDown, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{km.Ask, km.Quit}, {km.PageUp, km.PageDown}}
}

func newKeyMap() keyMap {
	return keyMap{
		Ask: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c", "ctrl+d"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// ChatModel asks questions about one corpus with the RAG strategy. Each
// question is answered independently from a freshly built index.
type ChatModel struct {
	ctx      context.Context
	asker    Asker
	session  *Session
	styles   *Styles
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	width    int
	height   int
	ready    bool
	busy     bool
	pending  string
	quitting bool
}

// NewChatModel creates a chat over session's corpus.
func NewChatModel(ctx context.Context, asker Asker, session *Session) ChatModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the corpus and press Enter"
	ti.CharLimit = 0
	ti.Focus()

	styles := DefaultStyles()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return ChatModel{
		ctx:      ctx,
		asker:    asker,
		session:  session,
		styles:   styles,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		help:     help.New(),
		keys:     newKeyMap(),
		width:    80,
		height:   24,
	}
}

// Session returns the chat session.
func (m ChatModel) Session() *Session { return m.session }

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		_, th := m.styles.Transcript.GetFrameSize()
		_, ih := m.styles.Input.GetFrameSize()
		// header, status line and help
		reserved := 3 + th + ih + 1
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-8)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case answerMsg:
		m.busy = false
		m.pending = ""
		m.session.Exchanges = append(m.session.Exchanges, newExchange(msg.question, msg.reply, msg.err, msg.askedAt, msg.took))
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Ask):
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.pending = q
			m.input.SetValue("")
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) ask(question string) tea.Cmd {
	ctx, asker, src := m.ctx, m.asker, m.session.Source
	return func() tea.Msg {
		start := time.Now()
		reply, err := asker.Ask(ctx, pipeline.Request{
			Question: question,
			Strategy: pipeline.StrategyRAG,
			Source:   src,
		})
		return answerMsg{question: question, reply: reply, err: err, askedAt: start, took: time.Since(start)}
	}
}

func (m *ChatModel) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Title.Render("sift chat"),
		"  ",
		m.styles.Subtitle.Render(m.session.Label),
	)
	status := m.styles.Subtitle.Render(m.statusLine())
	helpView := m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp()))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.styles.Transcript.Render(m.viewport.View()),
		m.styles.Input.Render(m.input.View()),
		status,
		helpView,
	)
}

func (m ChatModel) statusLine() string {
	st := m.session.Stats()
	if m.busy {
		return "Searching the corpus..."
	}
	return fmt.Sprintf("%d asked · %d answered · %d tokens", st.Total, st.Answered, st.Tokens)
}

func (m ChatModel) renderTranscript() string {
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	if len(m.session.Exchanges) == 0 && !m.busy {
		return m.styles.Help.Render("No questions yet.")
	}

	var b strings.Builder
	for _, e := range m.session.Exchanges {
		b.WriteString(m.styles.Question.Render("> "+e.Question) + " " + m.styles.StatusBadge(e.Status))
		b.WriteString("\n")
		b.WriteString(m.styles.Answer.Render(wrap.Render(e.Text())))
		b.WriteString("\n")
		b.WriteString(m.styles.Meta.Render(fmt.Sprintf("%d chunks · %d tokens · %s", e.Chunks, e.Tokens, e.Duration.Round(time.Millisecond))))
		b.WriteString("\n\n")
	}
	if m.busy {
		b.WriteString(m.styles.Question.Render("> "+m.pending) + " " + m.styles.StatusBadge(StatusPending))
		b.WriteString("\n")
		b.WriteString(m.styles.Answer.Render(m.spinner.View() + " thinking"))
		b.WriteString("\n")
	}
	return b.String()
}
