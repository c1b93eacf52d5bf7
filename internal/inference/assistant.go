package inference

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/llm"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/metrics"
)

// History reads the stored messages of a conversation in creation order.
type History interface {
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// AssistantConfig configures the LLM-backed action.
type AssistantConfig struct {
	Model        string
	MaxTokens    int
	HistoryLimit int
}

// Assistant answers with an LLM, using the stored conversation as context.
type Assistant struct {
	client  llm.Client
	history History
	cfg     AssistantConfig
	logger  *logger.Logger
}

// NewAssistant creates an LLM-backed action.
func NewAssistant(client llm.Client, history History, cfg AssistantConfig, log *logger.Logger) *Assistant {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Assistant{client: client, history: history, cfg: cfg, logger: log}
}

// Name returns the backend name.
func (a *Assistant) Name() string {
	return "llm:" + a.client.Name()
}

// SendMessage completes the conversation. Callers persist the user message
// before invoking the action, so it is normally already the last entry of
// the stored history.
func (a *Assistant) SendMessage(ctx context.Context, _ string, req *model.SendMessageRequest) (*model.SendMessageResult, error) {
	stored, err := a.history.ListMessages(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	resp, err := a.client.Complete(ctx, &llm.CompletionRequest{
		Model:     a.cfg.Model,
		Messages:  Prompt(stored, req.Message, a.cfg.HistoryLimit),
		MaxTokens: a.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", a.client.Name(), err)
	}

	metrics.RecordLLMTokens(resp.Model, resp.TokensIn, resp.TokensOut)
	a.logger.Debug("completion finished",
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)

	if resp.Content == "" {
		return model.Failure("the model returned an empty reply"), nil
	}
	return model.Reply(resp.Content), nil
}

// Prompt builds the completion messages from the last limit stored messages,
// appending message as a user turn unless it is already the newest entry.
// Leading assistant turns are dropped so the prompt starts with the user.
func Prompt(stored []model.Message, message string, limit int) []llm.ChatMessage {
	if len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}
	for len(stored) > 0 && stored[0].Role != model.RoleUser {
		stored = stored[1:]
	}

	out := make([]llm.ChatMessage, 0, len(stored)+1)
	for _, msg := range stored {
		out = append(out, llm.ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	if n := len(stored); n == 0 || stored[n-1].Role != model.RoleUser || stored[n-1].Content != message {
		out = append(out, llm.ChatMessage{Role: string(model.RoleUser), Content: message})
	}
	return out
}
