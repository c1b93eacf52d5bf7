package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot/internal/chat"
	"github.com/capitalize-ai/chatbot/internal/gateway"
	"github.com/capitalize-ai/chatbot/internal/handler"
	"github.com/capitalize-ai/chatbot/internal/live"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/internal/session"
	"github.com/capitalize-ai/chatbot/internal/store"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

const secret = "e2e-secret"

type scriptedAction struct {
	mu     sync.Mutex
	result *model.SendMessageResult
	err    error
}

func (a *scriptedAction) Name() string { return "scripted" }

func (a *scriptedAction) SendMessage(context.Context, string, *model.SendMessageRequest) (*model.SendMessageResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.err
}

func (a *scriptedAction) set(result *model.SendMessageResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result, a.err = result, err
}

type env struct {
	server *httptest.Server
	action *scriptedAction
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := logger.Nop()
	bus := live.NewMemoryBus(log)
	t.Cleanup(func() { _ = bus.Close() })

	action := &scriptedAction{result: model.Reply("ok")}
	srv := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Conversations: service.NewConversationService(st, log),
		Messages:      service.NewMessageService(st, live.NewFeed(bus, st, log), log),
		Action:        action,
		JWTSecret:     secret,
		Logger:        log,
	}))
	t.Cleanup(srv.Close)

	return &env{server: srv, action: action}
}

func (e *env) client(t *testing.T, userID string) *gateway.Client {
	t.Helper()
	tok, err := session.Issue(secret, userID, time.Hour)
	require.NoError(t, err)

	sess := session.NewTokenSession("", tok)
	_, err = sess.Resolve()
	require.NoError(t, err)

	c, err := gateway.NewClient(e.server.URL, sess, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsScheme(t *testing.T) {
	_, err := gateway.NewClient("ftp://example.com", session.NewTokenSession("", ""), logger.Nop())
	assert.Error(t, err)
}

func TestClient_CRUD(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "u1")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "Trip Planning")
	require.NoError(t, err)
	assert.Equal(t, "Trip Planning", conv.Title)

	_, err = c.CreateMessage(ctx, conv.ID, model.RoleUser, "hello")
	require.NoError(t, err)

	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)

	renamed, err := c.RenameConversation(ctx, conv.ID, "Lisbon")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", renamed.Title)

	convs, err := c.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].MessageCount)
}

func TestClient_GetMissingConversationIsNil(t *testing.T) {
	e := newEnv(t)
	owner := e.client(t, "u1")
	other := e.client(t, "u2")
	ctx := context.Background()

	conv, err := owner.CreateConversation(ctx, "Private")
	require.NoError(t, err)

	got, err := other.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = other.CreateMessage(ctx, conv.ID, model.RoleUser, "hi")
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusNotFound, gwErr.Status)
	assert.Equal(t, "conversation not found", gwErr.Message)
}

func TestClient_SignedOutFailsFast(t *testing.T) {
	e := newEnv(t)
	sess := session.NewTokenSession("", "")
	_, err := sess.Resolve()
	require.NoError(t, err)

	c, err := gateway.NewClient(e.server.URL, sess, logger.Nop())
	require.NoError(t, err)

	_, err = c.ListConversations(context.Background())
	assert.ErrorIs(t, err, session.ErrUnauthenticated)
}

func TestClient_SendMessageTransportFailure(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "u1")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "Chat")
	require.NoError(t, err)

	e.action.set(nil, errors.New("unreachable"))
	_, err = c.SendMessage(ctx, conv.ID, "hello")
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadGateway, gwErr.Status)
}

func TestClient_SubscribeMessages(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())

	conv, err := c.CreateConversation(ctx, "Live")
	require.NoError(t, err)

	snapshots, err := c.SubscribeMessages(ctx, conv.ID)
	require.NoError(t, err)

	next := func() []model.Message {
		t.Helper()
		select {
		case msgs, ok := <-snapshots:
			require.True(t, ok)
			return msgs
		case <-time.After(5 * time.Second):
			t.Fatal("no snapshot")
			return nil
		}
	}

	first := next()
	assert.NotNil(t, first)
	assert.Empty(t, first)

	_, err = c.CreateMessage(ctx, conv.ID, model.RoleUser, "hello")
	require.NoError(t, err)
	assert.Len(t, next(), 1)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-snapshots:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClient_SubscribeMissingConversation(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "u1")

	_, err := c.SubscribeMessages(context.Background(), "0190b9a4-7c1e-7d2a-9d3e-5f6a7b8c9d0e")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

// The chat core against the real server: list, create, open, send.
func TestEndToEnd_TripPlanning(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "u1")
	ctx := context.Background()
	e.action.set(model.Reply("Try Portugal."), nil)

	list := chat.NewListView(c, logger.Nop())
	require.NoError(t, list.Load(ctx))
	list.SetTitle("Trip Planning")
	conv, err := list.Create(ctx)
	require.NoError(t, err)

	convs := list.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "Trip Planning", convs[0].Title)
	assert.Equal(t, 0, convs[0].MessageCount)

	view := chat.NewConversationView(c, conv.ID, logger.Nop())
	defer view.Close()
	require.NoError(t, view.Open(ctx))
	require.Equal(t, chat.StateReady, view.State())

	view.SetInput("Where should I go in June?")
	require.NoError(t, view.Send(ctx))
	assert.Empty(t, view.Input())

	require.Eventually(t, func() bool { return len(view.Messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	msgs := view.Messages()
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Where should I go in June?", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Try Portugal.", msgs[1].Content)

	require.NoError(t, list.Load(ctx))
	assert.Equal(t, 2, list.Conversations()[0].MessageCount)
}

func TestEndToEnd_NetworkErrorStoresFallback(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "u1")
	ctx := context.Background()
	e.action.set(nil, errors.New("network error"))

	conv, err := c.CreateConversation(ctx, "Chat")
	require.NoError(t, err)

	view := chat.NewConversationView(c, conv.ID, logger.Nop())
	defer view.Close()
	require.NoError(t, view.Open(ctx))

	view.SetInput("hello")
	require.NoError(t, view.Send(ctx))
	assert.Empty(t, view.Input())

	got, err := c.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chat.FallbackReply, got.Messages[1].Content)
}
