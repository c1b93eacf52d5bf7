package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// SecretHeader carries the shared secret expected by the workflow webhook.
const SecretHeader = "X-Workflow-Secret"

// WorkflowConfig configures the workflow webhook client.
type WorkflowConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// Workflow forwards messages to an external automation webhook.
type Workflow struct {
	http    *resty.Client
	url     string
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

type workflowRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
}

// workflowReply accepts the action shape as well as the bare "output" field
// produced by agent-style workflows.
type workflowReply struct {
	Success  *bool  `json:"success"`
	Response string `json:"response"`
	Output   string `json:"output"`
	Error    string `json:"error"`
}

// NewWorkflow creates a webhook-backed action.
func NewWorkflow(cfg WorkflowConfig, log *logger.Logger) (*Workflow, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("workflow URL is required")
	}

	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.Secret != "" {
		client.SetHeader(SecretHeader, cfg.Secret)
	}

	w := &Workflow{http: client, url: cfg.URL, logger: log}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "workflow",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return w, nil
}

// Name returns the backend name.
func (w *Workflow) Name() string {
	return "workflow"
}

// SendMessage posts the message to the webhook.
func (w *Workflow) SendMessage(ctx context.Context, userID string, req *model.SendMessageRequest) (*model.SendMessageResult, error) {
	out, err := w.breaker.Execute(func() (interface{}, error) {
		var reply workflowReply
		resp, err := w.http.R().
			SetContext(ctx).
			SetBody(workflowRequest{
				ConversationID: req.ConversationID,
				UserID:         userID,
				Message:        req.Message,
			}).
			SetResult(&reply).
			SetError(&reply).
			Post(w.url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return nil, fmt.Errorf("workflow returned %s", resp.Status())
		}
		return toResult(resp, &reply), nil
	})
	if err != nil {
		return nil, fmt.Errorf("call workflow: %w", err)
	}
	return out.(*model.SendMessageResult), nil
}

func toResult(resp *resty.Response, reply *workflowReply) *model.SendMessageResult {
	if resp.IsError() || (reply.Success != nil && !*reply.Success) {
		if reply.Error != "" {
			return model.Failure(reply.Error)
		}
		// No error text: callers substitute their own reply.
		return &model.SendMessageResult{Success: false}
	}

	text := reply.Response
	if text == "" {
		text = reply.Output
	}
	if text == "" {
		return &model.SendMessageResult{Success: false}
	}
	return model.Reply(text)
}
