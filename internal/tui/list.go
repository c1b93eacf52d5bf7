package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/capitalize-ai/chatbot/internal/chat"
)

type listLoadedMsg struct{}

type createdMsg struct {
	err error
}

type listScreen struct {
	app      *App
	view     *chat.ListView
	title    textinput.Model
	spinner  spinner.Model
	cursor   int
	creating bool
	notice   string
}

func newListScreen(app *App) *listScreen {
	ti := textinput.New()
	ti.Placeholder = "New conversation title"
	ti.CharLimit = 256

	s := &listScreen{
		app:     app,
		view:    chat.NewListView(app.gw, app.logger),
		title:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	s.view.OnChange(app.changed)
	return s
}

func (s *listScreen) init() tea.Cmd {
	return tea.Batch(s.load, s.spinner.Tick)
}

func (s *listScreen) load() tea.Msg {
	_ = s.view.Load(s.app.ctx)
	return listLoadedMsg{}
}

func (s *listScreen) resize() {
	s.title.Width = s.app.width - 4
}

func (s *listScreen) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return cmd

	case listLoadedMsg, changedMsg:
		if n := len(s.view.Conversations()); s.cursor >= n {
			s.cursor = max(n-1, 0)
		}
		return nil

	case createdMsg:
		s.creating = false
		if msg.err != nil {
			s.notice = msg.err.Error()
			return nil
		}
		s.notice = ""
		s.title.SetValue(s.view.Title())
		s.title.Blur()
		s.cursor = 0
		return nil

	case tea.KeyMsg:
		if s.title.Focused() {
			return s.updateTitle(msg)
		}
		return s.updateList(msg)
	}
	return nil
}

func (s *listScreen) updateTitle(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Back), key.Matches(msg, keys.Focus):
		s.title.Blur()
		return nil
	case msg.Type == tea.KeyEnter:
		if s.creating {
			return nil
		}
		s.view.SetTitle(s.title.Value())
		s.creating = true
		return func() tea.Msg {
			_, err := s.view.Create(s.app.ctx)
			return createdMsg{err: err}
		}
	}

	var cmd tea.Cmd
	s.title, cmd = s.title.Update(msg)
	return cmd
}

func (s *listScreen) updateList(msg tea.KeyMsg) tea.Cmd {
	convs := s.view.Conversations()
	switch {
	case key.Matches(msg, keys.Up):
		if s.cursor > 0 {
			s.cursor--
		}
	case key.Matches(msg, keys.Down):
		if s.cursor < len(convs)-1 {
			s.cursor++
		}
	case key.Matches(msg, keys.Focus):
		s.notice = ""
		return s.title.Focus()
	case key.Matches(msg, keys.Retry) && s.view.State() == chat.ListError:
		return func() tea.Msg {
			_ = s.view.Retry(s.app.ctx)
			return listLoadedMsg{}
		}
	case key.Matches(msg, keys.Open):
		if s.cursor < len(convs) {
			id := convs[s.cursor].ID
			return func() tea.Msg { return openMsg{id: id} }
		}
	case msg.String() == "q":
		return tea.Quit
	}
	return nil
}

func (s *listScreen) render() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Conversations"))
	b.WriteString("\n")

	switch s.view.State() {
	case chat.ListLoading:
		b.WriteString(s.spinner.View() + " Loading conversations...\n")
	case chat.ListError:
		b.WriteString(errorStyle.Render("Could not load conversations: "+s.view.Err().Error()) + "\n")
		b.WriteString(dimStyle.Render("Press r to try again.") + "\n")
	case chat.ListReady:
		convs := s.view.Conversations()
		if len(convs) == 0 {
			b.WriteString(dimStyle.Render("No conversations yet. Press tab to start one.") + "\n")
		}
		for i, c := range convs {
			line := fmt.Sprintf("%s  %s", c.Title,
				dimStyle.Render(fmt.Sprintf("%d messages · %s", c.MessageCount, c.UpdatedAt.Local().Format("Jan 2 15:04"))))
			if i == s.cursor && !s.title.Focused() {
				b.WriteString(selectedStyle.Render("> ") + line + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(s.title.View())
	if s.creating {
		b.WriteString(" " + s.spinner.View())
	}
	b.WriteString("\n")
	if s.notice != "" {
		b.WriteString(errorStyle.Render(s.notice) + "\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ move · enter open · tab new · r retry · q quit"))
	return b.String()
}
