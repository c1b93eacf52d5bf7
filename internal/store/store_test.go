package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stepClock returns a clock that advances by one second per call.
func stepClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestStore_CreateConversationStartsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "Trip Planning")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	convs, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Trip Planning", convs[0].Title)
	assert.Equal(t, 0, convs[0].MessageCount)
}

func TestStore_ListOrderedByUpdatedAtWithCounts(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := s.CreateConversation(ctx, "u1", "first")
	require.NoError(t, err)
	second, err := s.CreateConversation(ctx, "u1", "second")
	require.NoError(t, err)

	// Appending to the older conversation moves it to the top.
	_, err = s.CreateMessage(ctx, "u1", first.ID, model.RoleUser, "hello")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, "u1", first.ID, model.RoleAssistant, "hi")
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, 2, convs[0].MessageCount)
	assert.Equal(t, second.ID, convs[1].ID)
	assert.Equal(t, 0, convs[1].MessageCount)
	assert.True(t, convs[0].UpdatedAt.After(convs[0].CreatedAt))
}

func TestStore_ConversationsAreScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "mine")
	require.NoError(t, err)

	others, err := s.ListConversations(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = s.GetConversation(ctx, "u2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateMessage(ctx, "u2", conv.ID, model.RoleUser, "intrude")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetMissingConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "u1", "0190b7a4-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MessagesInCreationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	frozen := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	conv, err := s.CreateConversation(ctx, "u1", "ties")
	require.NoError(t, err)
	for _, text := range []string{"a", "b", "c"} {
		_, err := s.CreateMessage(ctx, "u1", conv.ID, model.RoleUser, text)
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "b", msgs[1].Content)
	assert.Equal(t, "c", msgs[2].Content)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestStore_RejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "roles")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, "u1", conv.ID, model.Role("system"), "nope")
	require.Error(t, err)

	got, err := s.GetConversation(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
}

func TestStore_Rename(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "old")
	require.NoError(t, err)

	renamed, err := s.RenameConversation(ctx, "u1", conv.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", renamed.Title)
	assert.True(t, renamed.UpdatedAt.After(conv.UpdatedAt))

	_, err = s.RenameConversation(ctx, "u2", conv.ID, "stolen")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "u1", "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetConversation(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}
