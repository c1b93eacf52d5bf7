package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/chatbot/internal/model"
)

// fakeGateway is an in-memory gateway whose subscriptions re-snapshot on
// every message write, like the real server.
type fakeGateway struct {
	mu    sync.Mutex
	clock time.Time
	seq   int
	convs map[string]*model.Conversation
	msgs  map[string][]model.Message
	subs  map[string][]chan []model.Message

	listErr        error
	getErr         error
	subscribeErr   error
	createErr      error
	userMsgErr     error
	sendResult     *model.SendMessageResult
	sendErr        error
	sendGate       chan struct{}
	sendCalls      int
	subscribeCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		clock:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		convs:      map[string]*model.Conversation{},
		msgs:       map[string][]model.Message{},
		subs:       map[string][]chan []model.Message{},
		sendResult: model.Reply("ok"),
	}
}

func (g *fakeGateway) tick() time.Time {
	g.clock = g.clock.Add(time.Second)
	return g.clock
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%d", prefix, g.seq)
}

func (g *fakeGateway) addConversation(title string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.tick()
	id := g.nextID("conv")
	g.convs[id] = &model.Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	return id
}

func (g *fakeGateway) messages(id string) []model.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Message(nil), g.msgs[id]...)
}

func (g *fakeGateway) ListConversations(context.Context) ([]model.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]model.Conversation, 0, len(g.convs))
	for _, c := range g.convs {
		cp := *c
		cp.MessageCount = len(g.msgs[c.ID])
		out = append(out, cp)
	}
	// Most recently updated first.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].UpdatedAt.After(out[j-1].UpdatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (g *fakeGateway) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	c, ok := g.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Messages = append([]model.Message(nil), g.msgs[id]...)
	cp.MessageCount = len(cp.Messages)
	return &cp, nil
}

func (g *fakeGateway) CreateConversation(_ context.Context, title string) (*model.Conversation, error) {
	g.mu.Lock()
	createErr := g.createErr
	g.mu.Unlock()
	if createErr != nil {
		return nil, createErr
	}
	id := g.addConversation(title)
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *g.convs[id]
	return &cp, nil
}

func (g *fakeGateway) RenameConversation(_ context.Context, id, title string) (*model.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.convs[id]
	if !ok {
		return nil, fmt.Errorf("rename: not found")
	}
	c.Title = title
	c.UpdatedAt = g.tick()
	cp := *c
	return &cp, nil
}

func (g *fakeGateway) CreateMessage(_ context.Context, id string, role model.Role, content string) (*model.Message, error) {
	g.mu.Lock()
	if role == model.RoleUser && g.userMsgErr != nil {
		g.mu.Unlock()
		return nil, g.userMsgErr
	}
	c, ok := g.convs[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("create message: not found")
	}
	now := g.tick()
	msg := model.Message{ID: g.nextID("msg"), ConversationID: id, Role: role, Content: content, CreatedAt: now}
	g.msgs[id] = append(g.msgs[id], msg)
	c.UpdatedAt = now
	snapshot := append([]model.Message(nil), g.msgs[id]...)
	subs := append([]chan []model.Message(nil), g.subs[id]...)
	g.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return &msg, nil
}

func (g *fakeGateway) SubscribeMessages(ctx context.Context, id string) (<-chan []model.Message, error) {
	g.mu.Lock()
	g.subscribeCalls++
	if g.subscribeErr != nil {
		g.mu.Unlock()
		return nil, g.subscribeErr
	}
	in := make(chan []model.Message, 16)
	in <- append([]model.Message{}, g.msgs[id]...)
	g.subs[id] = append(g.subs[id], in)
	g.mu.Unlock()

	out := make(chan []model.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msgs := <-in:
				select {
				case out <- msgs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (g *fakeGateway) SendMessage(ctx context.Context, _ string, _ string) (*model.SendMessageResult, error) {
	g.mu.Lock()
	g.sendCalls++
	gate := g.sendGate
	result, err := g.sendResult, g.sendErr
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, err
}

// push delivers msgs to every subscriber of id as one snapshot.
func (g *fakeGateway) push(id string, msgs []model.Message) {
	g.mu.Lock()
	subs := append([]chan []model.Message(nil), g.subs[id]...)
	g.mu.Unlock()
	for _, ch := range subs {
		ch <- msgs
	}
}

func (g *fakeGateway) subscribers(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs[id])
}

func (g *fakeGateway) setSubscribeErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribeErr = err
}

func (g *fakeGateway) subscribeAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribeCalls
}
