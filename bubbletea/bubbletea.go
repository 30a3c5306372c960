// Package bubbletea provides the Bubble Tea TUI for the askdb client.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/askdb/askdb"
)

// TurnFunc runs one turn against the session. The onEvent callback is called
// for each streaming event after it has been applied to the store. The
// function blocks until the turn resolves or the context is cancelled.
type TurnFunc func(ctx context.Context, prompt string, files []string, onEvent func(askdb.Event)) error

// Run creates and runs the Bubble Tea TUI program. It blocks until the
// program exits. The context is used for graceful shutdown: when cancelled,
// the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamEventMsg wraps a streaming event for delivery to the Bubble Tea model.
type StreamEventMsg struct {
	Event askdb.Event
}

// TurnDoneMsg signals that a turn has resolved.
type TurnDoneMsg struct {
	Err error
}

// ClearedMsg reports the outcome of a bulk conversation delete.
type ClearedMsg struct {
	Count int
	Err   error
}
