package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// TokenSource supplies the bearer token for each call.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the gateway server over HTTP and websockets.
type Client struct {
	http    *resty.Client
	dialer  *websocket.Dialer
	wsBase  string
	tokens  TokenSource
	logger  *logger.Logger
	backoff time.Duration
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, tokens TokenSource, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway URL: %w", err)
	}

	ws := *u
	switch u.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return nil, fmt.Errorf("gateway URL must be http or https, got %q", u.Scheme)
	}

	return &Client{
		http: resty.New().
			SetBaseURL(u.String()).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		wsBase:  ws.String(),
		tokens:  tokens,
		logger:  log,
		backoff: time.Second,
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) request(ctx context.Context, op string) (*resty.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &Error{Op: op, Status: http.StatusUnauthorized, Err: err}
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetError(&errorBody{}), nil
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if resp.IsError() {
		e := &Error{Op: op, Status: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body != nil {
			e.Message = body.Error
		}
		return e
	}
	return nil
}

// ListConversations returns the user's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	const op = "list conversations"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out model.ListConversationsResponse
	resp, err := req.SetResult(&out).Get("/api/v1/conversations")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation returns a conversation with its messages, or nil when it
// does not exist.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	const op = "get conversation"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out model.Conversation
	resp, err := req.SetResult(&out).
		SetPathParam("id", id).
		Get("/api/v1/conversations/{id}")
	if err := c.check(op, resp, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// CreateConversation creates an empty conversation.
func (c *Client) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	const op = "create conversation"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out model.Conversation
	resp, err := req.SetResult(&out).
		SetBody(model.CreateConversationRequest{Title: title}).
		Post("/api/v1/conversations")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameConversation changes a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) (*model.Conversation, error) {
	const op = "rename conversation"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out model.Conversation
	resp, err := req.SetResult(&out).
		SetPathParam("id", id).
		SetBody(model.UpdateConversationRequest{Title: title}).
		Put("/api/v1/conversations/{id}")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMessage persists one message.
func (c *Client) CreateMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	const op = "create message"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out model.Message
	resp, err := req.SetResult(&out).
		SetPathParam("id", conversationID).
		SetBody(model.CreateMessageRequest{Role: role, Content: content}).
		Post("/api/v1/conversations/{id}/messages")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage invokes the send-message action.
func (c *Client) SendMessage(ctx context.Context, conversationID, message string) (*model.SendMessageResult, error) {
	const op = "send message"
	req, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var out model.SendMessageResult
	resp, err := req.SetResult(&out).
		SetBody(model.SendMessageRequest{ConversationID: conversationID, Message: message}).
		Post("/api/v1/actions/send-message")
	if err := c.check(op, resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}
