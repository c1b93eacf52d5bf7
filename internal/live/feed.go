package live

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/metrics"
)

// MessageSource reads the authoritative message list of a conversation.
type MessageSource interface {
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Feed turns bus signals into full re-snapshots of a conversation.
type Feed struct {
	bus    Bus
	source MessageSource
	logger *logger.Logger
}

// NewFeed creates a feed reading from source and listening on bus.
func NewFeed(bus Bus, source MessageSource, log *logger.Logger) *Feed {
	return &Feed{bus: bus, source: source, logger: log}
}

// Notify announces a change to conversationID's messages.
func (f *Feed) Notify(ctx context.Context, conversationID string) error {
	return f.bus.Publish(ctx, conversationID)
}

// Subscribe delivers the complete, ordered message list of conversationID
// immediately and again after every change. The channel is closed when ctx
// ends or the bus subscription ends.
func (f *Feed) Subscribe(ctx context.Context, conversationID string) (<-chan []model.Message, error) {
	// Subscribe before the first read so no change slips between them.
	changes, err := f.bus.Subscribe(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	out := make(chan []model.Message, 1)
	go func() {
		defer close(out)

		if !f.deliver(ctx, conversationID, out) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if !f.deliver(ctx, conversationID, out) {
					return
				}
			}
		}
	}()

	return out, nil
}

// deliver reads and sends one snapshot. It reports false once ctx is done.
func (f *Feed) deliver(ctx context.Context, conversationID string, out chan<- []model.Message) bool {
	msgs, err := f.source.ListMessages(ctx, conversationID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		f.logger.Warn("failed to read snapshot",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return true
	}

	select {
	case out <- msgs:
		metrics.LiveSnapshotsTotal.Inc()
		return true
	case <-ctx.Done():
		return false
	}
}
