package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chatbot/internal/live"
)

const (
	// StreamName is the name of the conversation change stream.
	StreamName = "CHATS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "chat"
)

// Bus is a live.Bus over NATS. Change signals are published through
// JetStream so they are retained for replay and audit; subscribers listen on
// plain NATS subjects because they only care about changes from now on.
type Bus struct {
	client *Client
}

var _ live.Bus = (*Bus)(nil)

// NewBus creates a NATS-backed bus.
func NewBus(client *Client) *Bus {
	return &Bus{client: client}
}

// ChangeSubject returns the subject for change signals of a conversation.
func ChangeSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s.changed", SubjectPrefix, conversationID)
}

// EnsureStream ensures the change stream exists with proper configuration.
func (b *Bus) EnsureStream(ctx context.Context) error {
	js := b.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
		Description: "Conversation change signals",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Publish records a change signal for conversationID.
func (b *Bus) Publish(ctx context.Context, conversationID string) error {
	if _, err := b.client.JetStream().Publish(ctx, ChangeSubject(conversationID), []byte(conversationID)); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Subscribe listens for change signals for conversationID until ctx ends.
func (b *Bus) Subscribe(ctx context.Context, conversationID string) (<-chan struct{}, error) {
	sig := live.NewSignal()

	sub, err := b.client.Conn().Subscribe(ChangeSubject(conversationID), func(*nats.Msg) {
		sig.Notify()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		sig.Close()
	}()

	return sig.C(), nil
}

// Close is a no-op; the connection is owned by Client.
func (b *Bus) Close() error {
	return nil
}
