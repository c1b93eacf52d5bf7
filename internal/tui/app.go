package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/capitalize-ai/chatbot/internal/gateway"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

type screen int

const (
	screenList screen = iota
	screenConversation
)

// changedMsg tells the program that a view's state changed off the UI
// goroutine.
type changedMsg struct{}

// App is the root bubbletea model: the conversation list and, when one is
// open, the conversation screen.
type App struct {
	ctx    context.Context
	gw     gateway.Gateway
	logger *logger.Logger
	notify func(tea.Msg)

	screen screen
	list   *listScreen
	conv   *conversationScreen

	width  int
	height int
}

// New creates the app. Call SetNotifier with the program's Send before
// running it so background updates reach the UI.
func New(ctx context.Context, gw gateway.Gateway, log *logger.Logger) *App {
	a := &App{ctx: ctx, gw: gw, logger: log, width: 80, height: 24}
	a.list = newListScreen(a)
	return a
}

// SetNotifier sets the function used to wake the program.
func (a *App) SetNotifier(send func(tea.Msg)) {
	a.notify = send
}

func (a *App) changed() {
	if a.notify != nil {
		a.notify(changedMsg{})
	}
}

// Init loads the conversation list.
func (a *App) Init() tea.Cmd {
	return a.list.init()
}

// Update routes messages to the active screen.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if a.conv != nil {
				a.conv.close()
			}
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.list.resize()
		if a.conv != nil {
			a.conv.resize()
		}
		return a, nil
	case openMsg:
		a.conv = newConversationScreen(a, msg.id)
		a.screen = screenConversation
		return a, a.conv.init()
	case backMsg:
		if a.conv != nil {
			a.conv.close()
			a.conv = nil
		}
		a.screen = screenList
		return a, a.list.init()
	}

	if a.screen == screenConversation && a.conv != nil {
		return a, a.conv.update(msg)
	}
	return a, a.list.update(msg)
}

// View renders the active screen.
func (a *App) View() string {
	if a.screen == screenConversation && a.conv != nil {
		return a.conv.render()
	}
	return a.list.render()
}

type openMsg struct{ id string }

type backMsg struct{}

func back() tea.Msg { return backMsg{} }
