package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/inference"
	"github.com/capitalize-ai/chatbot/internal/middleware"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// ActionHandler exposes remote actions.
type ActionHandler struct {
	conversations *service.ConversationService
	action        inference.Action
	logger        *logger.Logger
}

// NewActionHandler creates a new action handler.
func NewActionHandler(convSvc *service.ConversationService, action inference.Action, log *logger.Logger) *ActionHandler {
	return &ActionHandler{
		conversations: convSvc,
		action:        action,
		logger:        log,
	}
}

// SendMessage handles POST /api/v1/actions/send-message. The reply is
// returned to the caller and never stored here; persisting it is the
// client's job.
func (h *ActionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.conversations.Get(ctx, userID, req.ConversationID); err != nil {
		writeServiceError(w, h.logger, err, "failed to load conversation")
		return
	}

	result, err := h.action.SendMessage(ctx, userID, &req)
	if err != nil {
		h.logger.Error("send-message action failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "inference backend unavailable")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
