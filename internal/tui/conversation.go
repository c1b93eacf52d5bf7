package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/capitalize-ai/chatbot/internal/chat"
	"github.com/capitalize-ai/chatbot/internal/model"
)

type openedMsg struct{}

type sentMsg struct {
	err error
}

type conversationScreen struct {
	app      *App
	view     *chat.ConversationView
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	md       *markdown
	notice   string
}

func newConversationScreen(app *App, id string) *conversationScreen {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	// Enter submits; the newline binding is handled explicitly.
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	s := &conversationScreen{
		app:      app,
		view:     chat.NewConversationView(app.gw, id, app.logger),
		input:    ta,
		viewport: viewport.New(app.width, max(app.height-9, 3)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	s.resize()
	s.view.OnChange(app.changed)
	return s
}

func (s *conversationScreen) init() tea.Cmd {
	return tea.Batch(func() tea.Msg {
		_ = s.view.Open(s.app.ctx)
		return openedMsg{}
	}, s.spinner.Tick)
}

func (s *conversationScreen) close() {
	s.view.Close()
}

func (s *conversationScreen) resize() {
	s.input.SetWidth(s.app.width)
	s.viewport.Width = s.app.width
	s.viewport.Height = max(s.app.height-9, 3)
	s.md = newMarkdown(s.app.width - 4)
	s.refresh()
}

// refresh re-renders the messages and scrolls to the newest one.
func (s *conversationScreen) refresh() {
	s.viewport.SetContent(renderMessages(s.view.Messages(), s.md))
	s.viewport.GotoBottom()
}

func (s *conversationScreen) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return cmd

	case openedMsg, changedMsg:
		s.refresh()
		return nil

	case sentMsg:
		s.input.SetValue(s.view.Input())
		s.input.Focus()
		s.notice = ""
		if msg.err != nil && !errors.Is(msg.err, chat.ErrEmptyInput) {
			s.notice = msg.err.Error()
		}
		s.refresh()
		return nil

	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return nil
}

func (s *conversationScreen) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, keys.Back) {
		return back
	}

	state := s.view.State()
	if state != chat.StateReady {
		return nil
	}

	switch msg.Type {
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		s.viewport, cmd = s.viewport.Update(msg)
		return cmd
	}

	if s.view.SendState() == chat.SendSending {
		return nil
	}

	if k, ok := toKey(msg); ok {
		s.view.SetInput(s.input.Value())
		if k.Newline {
			_ = s.view.Key(s.app.ctx, k)
			s.input.InsertString("\n")
			return nil
		}
		s.input.Blur()
		return func() tea.Msg {
			return sentMsg{err: s.view.Key(s.app.ctx, k)}
		}
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	s.view.SetInput(s.input.Value())
	return cmd
}

func (s *conversationScreen) render() string {
	var b strings.Builder

	switch s.view.State() {
	case chat.StateLoading:
		b.WriteString(s.spinner.View() + " Loading conversation...\n")
		return b.String()
	case chat.StateNotFound:
		b.WriteString(errorStyle.Render("Conversation not found.") + "\n")
		b.WriteString(helpStyle.Render("esc back to conversations"))
		return b.String()
	case chat.StateLoadError:
		b.WriteString(errorStyle.Render("Could not load conversation: "+s.view.Err().Error()) + "\n")
		b.WriteString(helpStyle.Render("esc back to conversations"))
		return b.String()
	}

	b.WriteString(titleStyle.Render(s.view.Title()))
	b.WriteString("\n")
	b.WriteString(s.viewport.View())
	b.WriteString("\n")

	if s.view.SendState() == chat.SendSending {
		b.WriteString(s.spinner.View() + dimStyle.Render(" Thinking...") + "\n")
	} else if s.notice != "" {
		b.WriteString(errorStyle.Render(s.notice) + "\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(s.input.View())
	b.WriteString(helpStyle.Render("enter send · alt+enter newline · pgup/pgdn scroll · esc back"))
	return b.String()
}

func renderMessages(msgs []model.Message, md *markdown) string {
	if len(msgs) == 0 {
		return dimStyle.Render("No messages yet. Say hello!")
	}

	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch m.Role {
		case model.RoleAssistant:
			b.WriteString(assistantLabelStyle.Render("Assistant") + "\n")
			b.WriteString(strings.TrimRight(md.render(m.Content), "\n") + "\n")
		default:
			b.WriteString(userLabelStyle.Render("You") + "\n")
			b.WriteString(m.Content + "\n")
		}
	}
	return b.String()
}
