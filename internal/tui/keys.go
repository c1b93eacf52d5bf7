package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/capitalize-ai/chatbot/internal/chat"
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Focus   key.Binding
	Retry   key.Binding
	Back    key.Binding
	Send    key.Binding
	Newline key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "new conversation"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "try again"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Newline: key.NewBinding(
		key.WithKeys("alt+enter", "ctrl+j"),
		key.WithHelp("alt+enter", "newline"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// toKey translates the message box keys the chat core cares about. Other
// keys are left to the textarea.
func toKey(msg tea.KeyMsg) (chat.Key, bool) {
	switch {
	case key.Matches(msg, keys.Newline):
		return chat.Key{Enter: true, Newline: true}, true
	case key.Matches(msg, keys.Send):
		return chat.Key{Enter: true}, true
	default:
		return chat.Key{}, false
	}
}
