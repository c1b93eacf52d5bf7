package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/middleware"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// SubscribeHandler serves live conversation snapshots over a websocket.
type SubscribeHandler struct {
	messageService *service.MessageService
	upgrader       websocket.Upgrader
	logger         *logger.Logger
}

// NewSubscribeHandler creates a new websocket subscription handler.
func NewSubscribeHandler(msgSvc *service.MessageService, log *logger.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		messageService: msgSvc,
		upgrader:       websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:         log,
	}
}

// Subscribe handles GET /api/v1/conversations/:id/subscribe. The server
// sends one snapshot event per change; client frames are ignored.
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A hijacked connection outlives the request context, so the
	// subscription gets its own, cancelled when the socket closes.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	snapshots, err := h.messageService.Subscribe(ctx, middleware.GetUserID(r.Context()), conversationID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to subscribe")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.IncrementSubscriptions("websocket")
	defer metrics.DecrementSubscriptions("websocket")

	log := h.logger.With(zap.String("conversation_id", conversationID))

	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return

		case msgs, ok := <-snapshots:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteJSON(&model.SnapshotEvent{
				Type:           model.EventTypeSnapshot,
				ConversationID: conversationID,
				Messages:       msgs,
			})
			if err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
