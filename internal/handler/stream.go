package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/middleware"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/metrics"
)

// HeartbeatInterval is how often idle streams are pinged.
var HeartbeatInterval = 30 * time.Second

// StreamHandler serves live conversation snapshots over server-sent events.
type StreamHandler struct {
	messageService *service.MessageService
	logger         *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(msgSvc *service.MessageService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		messageService: msgSvc,
		logger:         log,
	}
}

// Stream handles GET /api/v1/conversations/:id/stream. Every event carries
// the complete message list; clients replace, never merge.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snapshots, err := h.messageService.Subscribe(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to subscribe")
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSubscriptions("sse")
	defer metrics.DecrementSubscriptions("sse")

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("conversation_id", conversationID))
			return

		case msgs, ok := <-snapshots:
			if !ok {
				return
			}
			err := sendSSEEvent(w, flusher, string(model.EventTypeSnapshot), &model.SnapshotEvent{
				Type:           model.EventTypeSnapshot,
				ConversationID: conversationID,
				Messages:       msgs,
			})
			if err != nil {
				return
			}

		case <-heartbeat.C:
			err := sendSSEEvent(w, flusher, string(model.EventTypeHeartbeat), &model.HeartbeatEvent{
				Type:      model.EventTypeHeartbeat,
				Timestamp: time.Now(),
			})
			if err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
