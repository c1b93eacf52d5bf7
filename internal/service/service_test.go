package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot/internal/live"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/store"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

func newServices(t *testing.T) (*ConversationService, *MessageService) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := logger.Nop()
	bus := live.NewMemoryBus(log)
	t.Cleanup(func() { _ = bus.Close() })

	return NewConversationService(st, log), NewMessageService(st, live.NewFeed(bus, st, log), log)
}

func TestConversationService_CreateTrimsTitle(t *testing.T) {
	convs, _ := newServices(t)

	conv, err := convs.Create(context.Background(), "u1", &model.CreateConversationRequest{Title: "  Trip Planning "})
	require.NoError(t, err)
	assert.Equal(t, "Trip Planning", conv.Title)
	assert.Equal(t, 0, conv.MessageCount)
}

func TestConversationService_GetIncludesMessages(t *testing.T) {
	convs, msgs := newServices(t)
	ctx := context.Background()

	conv, err := convs.Create(ctx, "u1", &model.CreateConversationRequest{Title: "Trip Planning"})
	require.NoError(t, err)

	_, err = msgs.Create(ctx, "u1", conv.ID, &model.CreateMessageRequest{Role: model.RoleUser, Content: "Plan 3 days in Lisbon"})
	require.NoError(t, err)
	_, err = msgs.Create(ctx, "u1", conv.ID, &model.CreateMessageRequest{Role: model.RoleAssistant, Content: "Day 1: Alfama..."})
	require.NoError(t, err)

	got, err := convs.Get(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, 2, got.MessageCount)
}

func TestConversationService_OtherUserSeesNothing(t *testing.T) {
	convs, msgs := newServices(t)
	ctx := context.Background()

	conv, err := convs.Create(ctx, "u1", &model.CreateConversationRequest{Title: "Private"})
	require.NoError(t, err)

	_, err = convs.Get(ctx, "u2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = msgs.List(ctx, "u2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = msgs.Create(ctx, "u2", conv.ID, &model.CreateMessageRequest{Role: model.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := convs.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list.Conversations)
	assert.Equal(t, 0, list.Total)
}

func TestConversationService_Update(t *testing.T) {
	convs, _ := newServices(t)
	ctx := context.Background()

	conv, err := convs.Create(ctx, "u1", &model.CreateConversationRequest{Title: "Old"})
	require.NoError(t, err)

	updated, err := convs.Update(ctx, "u1", conv.ID, &model.UpdateConversationRequest{Title: " New "})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)

	_, err = convs.Update(ctx, "u2", conv.ID, &model.UpdateConversationRequest{Title: "Stolen"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageService_SubscribeSeesNewMessages(t *testing.T) {
	convs, msgs := newServices(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv, err := convs.Create(ctx, "u1", &model.CreateConversationRequest{Title: "Live"})
	require.NoError(t, err)

	snapshots, err := msgs.Subscribe(ctx, "u1", conv.ID)
	require.NoError(t, err)

	select {
	case snap := <-snapshots:
		assert.Empty(t, snap)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err = msgs.Create(ctx, "u1", conv.ID, &model.CreateMessageRequest{Role: model.RoleUser, Content: "hello"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snap := <-snapshots:
			return len(snap) == 1 && snap[0].Content == "hello"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMessageService_SubscribeRequiresOwnership(t *testing.T) {
	convs, msgs := newServices(t)
	ctx := context.Background()

	conv, err := convs.Create(ctx, "u1", &model.CreateConversationRequest{Title: "Mine"})
	require.NoError(t, err)

	_, err = msgs.Subscribe(ctx, "u2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
