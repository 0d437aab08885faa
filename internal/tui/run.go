package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// RunChat starts the interactive chat and returns the session once the user
// quits.
func RunChat(ctx context.Context, asker Asker, session *Session) (*Session, error) {
	p := tea.NewProgram(NewChatModel(ctx, asker, session), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}
	return final.(ChatModel).Session(), nil
}

// SaveTranscript writes the session as indented JSON.
func SaveTranscript(session *Session, path string) error {
	report := struct {
		*Session
		Summary SessionStats `json:"summary"`
	}{session, session.Stats()}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
