package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/model"
)

const (
	maxBackoff = 30 * time.Second
	// readWait must exceed the server's ping period.
	readWait = 90 * time.Second
)

// SubscribeMessages opens the websocket subscription. The first connection
// is made before returning so authorization and missing conversations are
// reported to the caller; later drops are redialed with backoff.
func (c *Client) SubscribeMessages(ctx context.Context, conversationID string) (<-chan []model.Message, error) {
	conn, err := c.dial(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	out := make(chan []model.Message, 1)
	go func() {
		defer close(out)

		backoff := c.backoff
		for {
			delivered := c.pump(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			if delivered {
				backoff = c.backoff
			}

			for {
				c.logger.Warn("subscription dropped, reconnecting",
					zap.String("conversation_id", conversationID),
					zap.Duration("backoff", backoff),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxBackoff)

				conn, err = c.dial(ctx, conversationID)
				if err == nil {
					break
				}
				if errors.Is(err, ErrNotFound) {
					c.logger.Error("conversation disappeared", zap.String("conversation_id", conversationID))
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *Client) dial(ctx context.Context, conversationID string) (*websocket.Conn, error) {
	const op = "subscribe messages"
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &Error{Op: op, Status: http.StatusUnauthorized, Err: err}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.wsBase+"/api/v1/conversations/"+conversationID+"/subscribe", header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &Error{Op: op, Status: resp.StatusCode}
		}
		return nil, &Error{Op: op, Err: err}
	}
	return conn, nil
}

// pump forwards snapshots until the connection fails or ctx ends. It
// reports whether anything was delivered.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, out chan<- []model.Message) bool {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	delivered := false
	for {
		var ev model.SnapshotEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return delivered
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if ev.Type != model.EventTypeSnapshot {
			continue
		}
		if ev.Messages == nil {
			ev.Messages = []model.Message{}
		}

		select {
		case out <- ev.Messages:
			delivered = true
		case <-ctx.Done():
			return delivered
		}
	}
}
