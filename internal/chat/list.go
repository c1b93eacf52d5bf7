// Package chat holds the client-side state machines for the conversation
// list and for a single conversation. They talk to the backend only through
// gateway.Gateway and know nothing about presentation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/gateway"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// ErrEmptyTitle is returned when a conversation title is blank.
var ErrEmptyTitle = errors.New("title cannot be empty")

// ListState is the load state of the conversation list.
type ListState int

const (
	ListLoading ListState = iota
	ListReady
	ListError
)

func (s ListState) String() string {
	switch s {
	case ListLoading:
		return "loading"
	case ListReady:
		return "ready"
	case ListError:
		return "error"
	default:
		return fmt.Sprintf("ListState(%d)", int(s))
	}
}

// ListView lists the user's conversations and creates new ones.
type ListView struct {
	gw     gateway.Gateway
	logger *logger.Logger

	mu       sync.Mutex
	state    ListState
	convs    []model.Conversation
	err      error
	title    string
	onChange func()
}

// NewListView creates a list view. Call Load to populate it. A nil log uses
// the global logger.
func NewListView(gw gateway.Gateway, log *logger.Logger) *ListView {
	if log == nil {
		log = logger.Global()
	}
	return &ListView{gw: gw, logger: log}
}

// OnChange registers fn to be called after every state change.
func (v *ListView) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Load fetches the conversations. A failure is kept as a retryable error.
func (v *ListView) Load(ctx context.Context) error {
	v.update(func() {
		v.state = ListLoading
		v.err = nil
	})

	convs, err := v.gw.ListConversations(ctx)
	v.update(func() {
		if err != nil {
			v.state = ListError
			v.err = err
			return
		}
		v.state = ListReady
		v.convs = convs
	})
	if err != nil {
		v.logger.Warn("failed to load conversations", zap.Error(err))
	}
	return err
}

// Retry re-issues the load after a failure.
func (v *ListView) Retry(ctx context.Context) error {
	return v.Load(ctx)
}

// State returns the load state.
func (v *ListView) State() ListState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the last load error, if the list is in ListError.
func (v *ListView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Conversations returns the loaded conversations, most recently updated
// first.
func (v *ListView) Conversations() []model.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.Conversation(nil), v.convs...)
}

// SetTitle sets the new-conversation title input.
func (v *ListView) SetTitle(title string) {
	v.mu.Lock()
	v.title = title
	v.mu.Unlock()
}

// Title returns the new-conversation title input.
func (v *ListView) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title
}

// Create creates a conversation from the title input. On success the input
// is cleared and the list reloaded; on failure the input is kept.
func (v *ListView) Create(ctx context.Context) (*model.Conversation, error) {
	title := strings.TrimSpace(v.Title())
	if title == "" {
		return nil, ErrEmptyTitle
	}

	conv, err := v.gw.CreateConversation(ctx, title)
	if err != nil {
		v.logger.Error("failed to create conversation", zap.Error(err))
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	v.update(func() { v.title = "" })
	_ = v.Load(ctx)
	return conv, nil
}

func (v *ListView) update(fn func()) {
	v.mu.Lock()
	fn()
	notify := v.onChange
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
}
