package bubbletea

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/askdb/askdb"
	"github.com/askdb/askdb/markdown"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the askdb TUI. It renders the
// Conversation Store and drives turns through a TurnFunc; all conversation
// state lives in the store, never in the model.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	run    TurnFunc
	store  *askdb.Store
	svc    askdb.ConversationService
	theme  askdb.Theme
	styles Styles

	// pending holds attachment paths staged with /attach for the next send.
	pending []string

	running bool
	cancel  context.CancelFunc
	eventCh chan askdb.Event
	doneCh  chan error
	err     error
	info    string
	ready   bool
}

// New creates a TUI Model bound to the given turn runner, store, and backend
// CRUD surface.
func New(run TurnFunc, store *askdb.Store, svc askdb.ConversationService, theme askdb.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about your data..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		Input:  ti,
		run:    run,
		store:  store,
		svc:    svc,
		theme:  theme,
		styles: NewStyles(theme),
	}
}

// Running returns whether a turn is currently in flight.
func (m Model) Running() bool { return m.running }

// Err returns the last UI-level error, if any.
func (m Model) Err() error { return m.err }

// Pending returns the attachment paths staged for the next send.
func (m Model) Pending() []string { return m.pending }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamEventMsg:
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case TurnDoneMsg:
		m.running = false
		m.cancel = nil
		m.eventCh = nil
		m.doneCh = nil
		if msg.Err != nil {
			m.err = msg.Err
		}
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		cmd := m.Input.Focus()
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case ClearedMsg:
		if msg.Err != nil {
			m.err = msg.Err
		} else {
			m.info = fmt.Sprintf("deleted %d conversations", msg.Count)
		}
		m.Viewport.SetContent(m.renderContent())
		return m, nil
	}

	// Pass remaining messages to sub-components.
	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusHeight - borderHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		if strings.HasPrefix(text, "/") {
			return m.handleCommand(text)
		}
		return m.submitInput(text)
	}

	// When idle, pass keys to both input (for typing) and viewport (for
	// scrolling). Only forward non-character keys to viewport to avoid
	// conflicts (e.g. 'j'/'k' are viewport scroll AND text characters).
	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// handleCommand processes slash commands typed into the input.
func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil
	m.info = ""

	cmd, arg, _ := strings.Cut(text, " ")
	switch cmd {
	case "/attach":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			m.info = "usage: /attach <file or glob>"
			return m, nil
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			m.err = fmt.Errorf("attach: %w", err)
			return m, nil
		}
		if len(matches) == 0 {
			m.info = "no files match " + arg
			return m, nil
		}
		m.pending = append(m.pending, matches...)
		m.info = fmt.Sprintf("%d file(s) staged", len(m.pending))
		return m, nil

	case "/new":
		// An id outside the known set clears the selection; the next turn
		// makes the server create a fresh conversation.
		m.store.SelectConversation("")
		m.Viewport.SetContent(m.renderContent())
		return m, nil

	case "/clear":
		return m, clearAll(m.svc, m.store)

	default:
		m.info = "unknown command " + cmd
		return m, nil
	}
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil
	m.info = ""

	files := m.pending
	m.pending = nil

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan askdb.Event, 256)
	m.doneCh = make(chan error, 1)
	m.running = true

	m.Input.Blur()

	return m, tea.Batch(
		startTurn(m.run, ctx, text, files, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
	)
}

// renderContent renders the store's active message list.
func (m Model) renderContent() string {
	msgs := m.store.Messages()
	if len(msgs) == 0 {
		return m.styles.Muted.Render("No messages yet.")
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	return b.String()
}

func (m Model) renderMessage(msg askdb.Message) string {
	width := m.Viewport.Width
	var b strings.Builder

	switch msg.Role {
	case askdb.RoleUser:
		b.WriteString(m.styles.UserMsg.Render("> " + msg.Content))
		if n := len(msg.Attachments); n > 0 {
			b.WriteString("\n")
			b.WriteString(m.styles.Muted.Render(fmt.Sprintf("(%d attachment(s))", n)))
		}

	case askdb.RoleAssistant:
		switch {
		case strings.HasPrefix(msg.Content, "Error: "):
			b.WriteString(m.styles.Error.Render(msg.Content))
		case msg.Content == "" && msg.Streaming:
			b.WriteString(m.styles.Muted.Render("…"))
		default:
			b.WriteString(markdown.Render(msg.Content, width, m.theme))
			if msg.Streaming {
				b.WriteString(m.styles.Muted.Render("▌"))
			}
		}
		if msg.Metadata != nil {
			b.WriteString(m.renderMetadata(*msg.Metadata, width))
		}

	default:
		b.WriteString(m.styles.Muted.Render(msg.Content))
	}

	return b.String()
}

func (m Model) renderMetadata(md askdb.QueryMetadata, width int) string {
	var b strings.Builder

	if md.GeneratedQuery != "" {
		b.WriteString("\n\n")
		b.WriteString(m.styles.Query.Render("query"))
		b.WriteString("\n")
		gutter := m.styles.Muted.Render("│") + " "
		for _, line := range strings.Split(strings.TrimRight(md.GeneratedQuery, "\n"), "\n") {
			b.WriteString(gutter + line + "\n")
		}
	}

	if table := markdown.RenderRows(md, width, m.theme); table != "" {
		b.WriteString("\n")
		b.WriteString(table)
		b.WriteString("\n")
	}

	var facts []string
	if md.Confidence > 0 {
		facts = append(facts, fmt.Sprintf("confidence %.0f%%", md.Confidence*100))
	}
	if md.ExecutionTimeMS > 0 {
		facts = append(facts, fmt.Sprintf("%.0fms", md.ExecutionTimeMS))
	}
	if md.Model != "" {
		facts = append(facts, md.Model)
	}
	if len(facts) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render(strings.Join(facts, " · ")))
	}

	for _, w := range md.Warnings {
		b.WriteString("\n")
		b.WriteString(m.styles.Query.Render("warning: " + w))
	}
	if md.NeedsClarification {
		b.WriteString("\n")
		b.WriteString(m.styles.Accent.Render("needs clarification"))
	}

	return b.String()
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.running {
		return m.styles.Muted.Render("Generating... (Ctrl+C to stop)")
	}
	if m.info != "" {
		return m.styles.Muted.Render(m.info)
	}
	if n := len(m.pending); n > 0 {
		return m.styles.Muted.Render(fmt.Sprintf("%d file(s) staged · Enter to send", n))
	}
	return m.styles.Muted.Render("Enter to send · /attach /new /clear · Ctrl+C to quit")
}

// startTurn runs the turn in a goroutine and signals completion.
func startTurn(run TurnFunc, ctx context.Context, prompt string, files []string, eventCh chan<- askdb.Event, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := run(ctx, prompt, files, func(e askdb.Event) {
			select {
			case eventCh <- e:
			case <-ctx.Done():
			}
		})
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event from the channel. When the channel
// closes, it reads the error from doneCh and returns TurnDoneMsg.
func listenForEvent(ch <-chan askdb.Event, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			err := <-doneCh
			return TurnDoneMsg{Err: err}
		}
		return StreamEventMsg{Event: evt}
	}
}

// clearAll bulk-deletes every conversation on the server and resets the
// store on success.
func clearAll(svc askdb.ConversationService, store *askdb.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := svc.DeleteAllConversations(ctx)
		if err == nil {
			store.ClearAll()
		}
		return ClearedMsg{Count: n, Err: err}
	}
}
