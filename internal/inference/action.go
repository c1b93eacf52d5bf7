// Package inference implements the send-message action: it forwards a user
// message to an inference backend and returns a structured reply.
package inference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
	"github.com/capitalize-ai/chatbot/pkg/metrics"
)

// Action answers one user message. A returned error means the backend could
// not be reached at all; backend-reported failures come back as a result
// with Success false.
type Action interface {
	SendMessage(ctx context.Context, userID string, req *model.SendMessageRequest) (*model.SendMessageResult, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

type instrumented struct {
	next   Action
	logger *logger.Logger
}

// Instrument wraps an action with a trace span, latency metrics and logging.
func Instrument(next Action, log *logger.Logger) Action {
	return &instrumented{next: next, logger: log}
}

func (i *instrumented) Name() string {
	return i.next.Name()
}

func (i *instrumented) SendMessage(ctx context.Context, userID string, req *model.SendMessageRequest) (*model.SendMessageResult, error) {
	ctx, span := otel.Tracer("chatbot/inference").Start(ctx, "inference.SendMessage",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("inference.backend", i.next.Name()),
			attribute.String("conversation.id", req.ConversationID),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := i.next.SendMessage(ctx, userID, req)
	outcome := Outcome(result, err)
	metrics.RecordInference(i.next.Name(), outcome, time.Since(start).Seconds())

	log := i.logger.With(
		zap.String("backend", i.next.Name()),
		zap.String("conversation_id", req.ConversationID),
		zap.Duration("duration", time.Since(start)),
	)
	switch outcome {
	case "error":
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("inference backend unreachable", zap.Error(err))
	case "failure":
		span.SetStatus(codes.Error, "backend reported failure")
		log.Warn("inference backend reported failure")
	default:
		log.Debug("inference reply")
	}

	return result, err
}

// Outcome classifies an action result for metrics: "error" when the backend
// was unreachable, "failure" when it answered without usable text, and
// "success" otherwise.
func Outcome(result *model.SendMessageResult, err error) string {
	switch {
	case err != nil || result == nil:
		return "error"
	case !result.Success || result.Response == nil || *result.Response == "":
		return "failure"
	default:
		return "success"
	}
}
