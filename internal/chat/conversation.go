package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/gateway"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// FallbackReply is stored as the assistant's answer when the inference
// action fails without an explanation or cannot be reached.
const FallbackReply = "Sorry, I encountered an error. Please try again."

var (
	// ErrEmptyInput is returned by Send when the trimmed input is empty.
	ErrEmptyInput = errors.New("message cannot be empty")
	// ErrSendInProgress is returned by Send while another send is running.
	ErrSendInProgress = errors.New("a message is already being sent")
)

// State is the load state of a conversation view.
type State int

const (
	StateLoading State = iota
	StateReady
	StateNotFound
	StateLoadError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateNotFound:
		return "not found"
	case StateLoadError:
		return "load error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SendState is the send sub-state of a ready view.
type SendState int

const (
	SendIdle SendState = iota
	SendSending
)

func (s SendState) String() string {
	if s == SendSending {
		return "sending"
	}
	return "idle"
}

// Key is one input event for the message box.
type Key struct {
	// Enter is the submit key.
	Enter bool
	// Newline is the modifier that turns Enter into a line break.
	Newline bool
	// Text is appended to the input for non-Enter keys.
	Text string
}

// ConversationView loads one conversation, follows its live snapshots and
// runs the send protocol. One view exists per open conversation.
type ConversationView struct {
	gw     gateway.Gateway
	id     string
	logger *logger.Logger

	mu          sync.Mutex
	state       State
	send        SendState
	title       string
	loadErr     error
	history     []model.Message
	snapshot    []model.Message
	hasSnapshot bool
	input       string
	closed      bool
	cancel      context.CancelFunc
	onChange    func()
	retryDelay  time.Duration
}

// NewConversationView creates a view for conversationID. Call Open to load.
func NewConversationView(gw gateway.Gateway, conversationID string, log *logger.Logger) *ConversationView {
	if log == nil {
		log = logger.Global()
	}
	return &ConversationView{
		gw:         gw,
		id:         conversationID,
		logger:     log.With(zap.String("conversation_id", conversationID)),
		retryDelay: time.Second,
	}
}

// ID returns the conversation ID.
func (v *ConversationView) ID() string {
	return v.id
}

// OnChange registers fn to be called after every change to the rendered
// messages or view state. It is called outside the view's lock.
func (v *ConversationView) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// Open starts the live subscription and, independently, queries the
// conversation. It returns once the query has settled; the returned error
// is the load error, if any.
func (v *ConversationView) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.closed || v.cancel != nil {
		v.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	v.mu.Unlock()

	go v.follow(subCtx)

	conv, err := v.gw.GetConversation(ctx, v.id)
	v.update(func() {
		switch {
		case err != nil:
			v.state = StateLoadError
			v.loadErr = err
		case conv == nil:
			v.state = StateNotFound
		default:
			v.state = StateReady
			v.title = conv.Title
			v.history = conv.Messages
		}
	})
	if err != nil {
		v.logger.Error("failed to load conversation", zap.Error(err))
	}
	return err
}

const maxSubscribeBackoff = 30 * time.Second

// follow keeps the live subscription open. A failed subscribe is retried
// with backoff until the view closes; only a missing conversation stops it.
func (v *ConversationView) follow(ctx context.Context) {
	backoff := v.retryDelay
	for {
		snapshots, err := v.gw.SubscribeMessages(ctx, v.id)
		if err == nil {
			v.consume(snapshots)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, gateway.ErrNotFound) {
			v.logger.Warn("live subscription refused: conversation not found", zap.Error(err))
			return
		}

		v.logger.Warn("live subscription failed; showing loaded history",
			zap.Error(err),
			zap.Duration("retry_in", backoff),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, maxSubscribeBackoff)
	}
}

func (v *ConversationView) consume(snapshots <-chan []model.Message) {
	for msgs := range snapshots {
		v.update(func() {
			v.snapshot = msgs
			v.hasSnapshot = true
		})
	}
}

// Close tears down the live subscription. Completions that arrive later,
// including those of an in-flight send, no longer change the view.
func (v *ConversationView) Close() {
	v.mu.Lock()
	v.closed = true
	cancel := v.cancel
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// State returns the load state.
func (v *ConversationView) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SendState returns the send sub-state.
func (v *ConversationView) SendState() SendState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.send
}

// Title returns the conversation title once loaded.
func (v *ConversationView) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title
}

// Err returns the load error in StateLoadError.
func (v *ConversationView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr
}

// Messages returns the messages to render in creation order: the latest
// live snapshot once one has arrived, even an empty one, and the queried
// history before that.
func (v *ConversationView) Messages() []model.Message {
	v.mu.Lock()
	src := v.history
	if v.hasSnapshot {
		src = v.snapshot
	}
	out := append([]model.Message(nil), src...)
	v.mu.Unlock()

	model.SortByCreatedAt(out)
	return out
}

// Input returns the message box content.
func (v *ConversationView) Input() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.input
}

// SetInput replaces the message box content. It is ignored while sending.
func (v *ConversationView) SetInput(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.send == SendSending || v.closed {
		return
	}
	v.input = text
}

// Key applies one key event: Enter submits, Enter with the newline
// modifier inserts a line break, anything else appends its text.
func (v *ConversationView) Key(ctx context.Context, k Key) error {
	switch {
	case k.Enter && !k.Newline:
		return v.Send(ctx)
	case k.Enter:
		v.SetInput(v.Input() + "\n")
	default:
		v.SetInput(v.Input() + k.Text)
	}
	return nil
}

// Send runs the send protocol for the current input: persist the user
// message, ask the inference action for a reply, persist exactly one
// assistant message, then clear the input. New messages become visible
// through the live subscription only.
func (v *ConversationView) Send(ctx context.Context) error {
	v.mu.Lock()
	if v.closed || v.state != StateReady {
		v.mu.Unlock()
		return nil
	}
	if v.send == SendSending {
		v.mu.Unlock()
		return ErrSendInProgress
	}
	text := strings.TrimSpace(v.input)
	if text == "" {
		v.mu.Unlock()
		return ErrEmptyInput
	}
	v.send = SendSending
	notify := v.onChange
	v.mu.Unlock()
	if notify != nil {
		notify()
	}

	if _, err := v.gw.CreateMessage(ctx, v.id, model.RoleUser, text); err != nil {
		v.logger.Error("failed to persist user message", zap.Error(err))
		v.update(func() { v.send = SendIdle })
		return fmt.Errorf("persist user message: %w", err)
	}

	result, err := v.gw.SendMessage(ctx, v.id, text)
	if err != nil {
		v.logger.Error("send-message action failed", zap.Error(err))
	}
	reply := ReplyText(result, err)

	var persistErr error
	if _, err := v.gw.CreateMessage(ctx, v.id, model.RoleAssistant, reply); err != nil {
		v.logger.Error("failed to persist assistant message", zap.Error(err))
		persistErr = fmt.Errorf("persist assistant message: %w", err)
	}

	v.update(func() {
		v.input = ""
		v.send = SendIdle
	})
	return persistErr
}

// Rename changes the conversation title.
func (v *ConversationView) Rename(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	conv, err := v.gw.RenameConversation(ctx, v.id, title)
	if err != nil {
		v.logger.Error("failed to rename conversation", zap.Error(err))
		return fmt.Errorf("rename conversation: %w", err)
	}

	v.update(func() { v.title = conv.Title })
	return nil
}

// ReplyText picks the assistant message for an inference outcome: the
// reply on success, else the reported error, else FallbackReply. A call
// that failed outright (err != nil) always yields FallbackReply.
func ReplyText(result *model.SendMessageResult, err error) string {
	if err != nil || result == nil {
		return FallbackReply
	}
	if result.Success && result.Response != nil && *result.Response != "" {
		return *result.Response
	}
	if result.Error != nil && *result.Error != "" {
		return *result.Error
	}
	return FallbackReply
}

// update applies fn under the lock unless the view is closed, then
// notifies the observer.
func (v *ConversationView) update(fn func()) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	fn()
	notify := v.onChange
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
}
