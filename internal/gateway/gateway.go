// Package gateway is the client side of the data gateway: the port the chat
// core consumes and an HTTP implementation of it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/capitalize-ai/chatbot/internal/model"
)

// Gateway is everything the chat views need from the backend.
type Gateway interface {
	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context) ([]model.Conversation, error)

	// GetConversation returns a conversation with its messages, or nil and
	// no error when it does not exist.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)
	RenameConversation(ctx context.Context, id, title string) (*model.Conversation, error)
	CreateMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error)

	// SubscribeMessages delivers the complete message list of a
	// conversation after every change. The channel is closed when ctx ends.
	SubscribeMessages(ctx context.Context, conversationID string) (<-chan []model.Message, error)

	// SendMessage invokes the inference action. It never persists anything.
	SendMessage(ctx context.Context, conversationID, message string) (*model.SendMessageResult, error)
}

// ErrNotFound matches gateway errors for missing resources.
var ErrNotFound = errors.New("not found")

// Error is a failed gateway operation.
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Op, http.StatusText(e.Status))
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrNotFound for 404 responses.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}
