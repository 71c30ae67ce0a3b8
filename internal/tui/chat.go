package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charmbracelet/lipgloss"

	"github.com/tether-dev/tether/internal/channel"
	"github.com/tether-dev/tether/internal/coordinator"
	"github.com/tether-dev/tether/internal/session"
)

// Messages injected into the program from outside the TUI loop.

// RefreshMsg signals that the active session's transcript changed on disk.
type RefreshMsg struct{}

// NoticeMsg carries a transient status line.
type NoticeMsg struct {
	Kind string
	Text string
}

// StateMsg carries a connection state transition.
type StateMsg struct {
	State channel.State
}

// SessionsMsg carries a fresh snapshot of the stored session list.
type SessionsMsg struct {
	Sessions []session.Session
}

// viewMode selects which screen the model renders.
type viewMode int

const (
	modeChat viewMode = iota
	modePicker
)

// ChatModel is the top-level TUI model: the transcript of the active
// session plus a session picker overlay.
type ChatModel struct {
	co    *coordinator.Coordinator
	store *session.Store

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	mode     viewMode
	sessions []session.Session
	cursor   int

	state  channel.State
	notice string
	errMsg string

	// atBottom gates autoscroll: a refresh only jumps to the newest output
	// when the user was already reading the tail.
	atBottom bool

	width  int
	height int
	ready  bool
}

// NewChatModel creates the top-level model bound to a coordinator and its
// store.
func NewChatModel(co *coordinator.Coordinator, store *session.Store) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Type a message, or /help for commands"
	ta.CharLimit = 5000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline = key.NewBinding(
		key.WithKeys("shift+enter", "ctrl+j"),
		key.WithHelp("shift+enter", "new line"),
	)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor))

	return ChatModel{
		co:       co,
		store:    store,
		textarea: ta,
		spinner:  sp,
		atBottom: true,
		state:    channel.State{Phase: channel.Connecting},
	}
}

// Init returns the initial command for the chat view.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles messages for the chat view.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 8
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(m.width - 2)
		m.reloadTranscript()
		return m, nil

	case tea.KeyMsg:
		if m.mode == modePicker {
			return m.updatePicker(msg)
		}
		return m.updateChat(msg)

	case RefreshMsg:
		m.reloadTranscript()
		return m, nil

	case NoticeMsg:
		m.notice = fmt.Sprintf("[%s] %s", msg.Kind, msg.Text)
		return m, nil

	case StateMsg:
		m.state = msg.State
		return m, nil

	case SessionsMsg:
		m.sessions = msg.Sessions
		if m.cursor >= len(m.sessions) {
			m.cursor = 0
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit

	case KeyEnter:
		content := strings.TrimSpace(m.textarea.Value())
		if content == "" {
			return m, nil
		}
		m.textarea.Reset()
		m.errMsg = ""
		if strings.HasPrefix(content, "/") {
			return m.runCommand(content)
		}
		if err := m.co.SendText(content); err != nil {
			m.errMsg = err.Error()
		}
		m.atBottom = true
		m.reloadTranscript()
		return m, nil

	case KeyUp, KeyDown, "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.atBottom = m.viewport.AtBottom()
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m, tea.Quit
	case KeyEsc:
		m.mode = modeChat
		return m, nil
	case KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case KeyDown:
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
		}
	case KeyEnter:
		if m.cursor < len(m.sessions) {
			if _, err := m.co.Switch(m.sessions[m.cursor].ID); err != nil {
				m.errMsg = err.Error()
			}
			m.mode = modeChat
			m.atBottom = true
			m.reloadTranscript()
		}
	}
	return m, nil
}

// runCommand dispatches a slash command typed into the input.
func (m ChatModel) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return m, tea.Quit

	case "/new":
		m.co.NewChat()
		m.reloadTranscript()

	case "/sessions":
		sessions, err := m.store.ListSessions()
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.sessions = sessions
		m.cursor = 0
		m.mode = modePicker

	case "/build":
		if err := m.co.Build(); err != nil {
			m.errMsg = err.Error()
		}

	case "/push":
		message := "update from tether"
		if len(fields) > 1 {
			message = strings.Join(fields[1:], " ")
		}
		if err := m.co.GitPush(message); err != nil {
			m.errMsg = err.Error()
		}

	case "/clone":
		if len(fields) < 3 {
			m.errMsg = "usage: /clone <repo-url> <name> [token]"
			return m, nil
		}
		token := ""
		if len(fields) > 3 {
			token = fields[3]
		}
		if err := m.co.GitClone(fields[1], fields[2], token); err != nil {
			m.errMsg = err.Error()
		}

	case "/init":
		if len(fields) < 3 {
			m.errMsg = "usage: /init <repo-url> <name> [token]"
			return m, nil
		}
		token := ""
		if len(fields) > 3 {
			token = fields[3]
		}
		if err := m.co.GitInit(fields[1], fields[2], token); err != nil {
			m.errMsg = err.Error()
		}

	case "/help":
		m.notice = "/new /sessions /build /push [msg] /clone /init /quit"

	default:
		m.errMsg = fmt.Sprintf("unknown command %s", fields[0])
	}
	return m, nil
}

// reloadTranscript re-renders the active session's messages into the
// viewport.
func (m *ChatModel) reloadTranscript() {
	if !m.ready {
		return
	}
	active := m.co.Active()
	if active == nil {
		m.viewport.SetContent(DimStyle.Render("No active session. Say something to start one."))
		return
	}
	msgs, err := m.store.ListMessages(active.ID)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.viewport.SetContent(renderTranscript(msgs, m.viewport.Width))
	if m.atBottom {
		m.viewport.GotoBottom()
	}
}

// renderTranscript formats stored messages for display.
func renderTranscript(msgs []session.Message, width int) string {
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Kind {
		case session.KindUserInput:
			b.WriteString(UserStyle.Render("you") + "  " + msg.Content)
		case session.KindAssistantOutput:
			b.WriteString(AssistantStyle.Render(msg.Content))
		case session.KindToolUse:
			b.WriteString(ToolStyle.Render("⚙ " + msg.Content))
		case session.KindBuildLog:
			b.WriteString(DimStyle.Render(msg.Content))
		case session.KindSystem:
			b.WriteString(DimStyle.Render("· " + msg.Content))
		default:
			b.WriteString(msg.Content)
		}
		b.WriteString("\n\n")
	}
	out := b.String()
	if width > 0 {
		out = lipgloss.NewStyle().Width(width).Render(out)
	}
	return out
}

// View renders the current screen.
func (m ChatModel) View() string {
	if !m.ready {
		return "loading..."
	}
	if m.mode == modePicker {
		return m.viewPicker()
	}

	var b strings.Builder
	title := "tether"
	if active := m.co.Active(); active != nil {
		title = active.Title
	}
	b.WriteString(TitleStyle.Render(title) + "\n")
	b.WriteString(m.viewport.View() + "\n")

	if m.co.Streaming() {
		b.WriteString(m.spinner.View() + DimStyle.Render(" assistant is working") + "\n")
	} else if m.errMsg != "" {
		b.WriteString(ErrorStyle.Render(m.errMsg) + "\n")
	} else if m.notice != "" {
		b.WriteString(DimStyle.Render(m.notice) + "\n")
	} else {
		b.WriteString("\n")
	}

	b.WriteString(m.textarea.View() + "\n")
	b.WriteString(m.statusBar())
	return b.String()
}

func (m ChatModel) viewPicker() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("sessions") + "\n\n")
	if len(m.sessions) == 0 {
		b.WriteString(DimStyle.Render("no stored sessions") + "\n")
	}
	for i, sess := range m.sessions {
		line := fmt.Sprintf("%s  %s", sess.Title, DimStyle.Render(sess.UpdatedAt.Format("Jan 2 15:04")))
		if i == m.cursor {
			line = SelectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + DimStyle.Render("enter: open   esc: back"))
	return b.String()
}

// statusBar renders one line of connection state.
func (m ChatModel) statusBar() string {
	var label string
	switch m.state.Phase {
	case channel.Connected:
		label = SuccessStyle.Render("● connected")
	case channel.Connecting:
		label = WarningStyle.Render("● connecting")
	case channel.Reconnecting:
		label = WarningStyle.Render(fmt.Sprintf("● reconnecting (attempt %d)", m.state.Attempt))
	case channel.Failed:
		label = ErrorStyle.Render("● " + m.state.Reason)
	default:
		label = DimStyle.Render("● offline")
	}
	return StatusBarStyle.Width(m.width).Render(label)
}
