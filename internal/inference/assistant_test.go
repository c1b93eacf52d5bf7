package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/chatbot/internal/llm"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

type fakeLLM struct {
	reply string
	err   error
	got   *llm.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply, Model: "fake-1", TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return []string{"fake-1"} }

type fakeHistory struct {
	msgs []model.Message
	err  error
}

func (h fakeHistory) ListMessages(context.Context, string) ([]model.Message, error) {
	return h.msgs, h.err
}

func msg(role model.Role, content string) model.Message {
	return model.Message{Role: role, Content: content, CreatedAt: time.Now()}
}

func TestAssistant_Reply(t *testing.T) {
	client := &fakeLLM{reply: "Day 1: Alfama..."}
	history := fakeHistory{msgs: []model.Message{msg(model.RoleUser, "Plan 3 days in Lisbon")}}
	a := NewAssistant(client, history, AssistantConfig{Model: "fake-1"}, logger.Nop())

	result, err := send(t, a)
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	assert.Equal(t, "Day 1: Alfama...", *result.Response)

	require.NotNil(t, client.got)
	assert.Equal(t, "fake-1", client.got.Model)
	assert.Equal(t, []llm.ChatMessage{{Role: "user", Content: "Plan 3 days in Lisbon"}}, client.got.Messages)
	assert.Equal(t, "llm:fake", a.Name())
}

func TestAssistant_EmptyReplyIsFailure(t *testing.T) {
	a := NewAssistant(&fakeLLM{}, fakeHistory{}, AssistantConfig{}, logger.Nop())

	result, err := send(t, a)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
}

func TestAssistant_Errors(t *testing.T) {
	_, err := send(t, NewAssistant(&fakeLLM{err: errors.New("overloaded")}, fakeHistory{}, AssistantConfig{}, logger.Nop()))
	assert.ErrorContains(t, err, "overloaded")

	_, err = send(t, NewAssistant(&fakeLLM{}, fakeHistory{err: errors.New("disk")}, AssistantConfig{}, logger.Nop()))
	assert.ErrorContains(t, err, "load history")
}

func TestPrompt(t *testing.T) {
	stored := []model.Message{
		msg(model.RoleAssistant, "welcome"),
		msg(model.RoleUser, "one"),
		msg(model.RoleAssistant, "two"),
		msg(model.RoleUser, "three"),
	}

	t.Run("message already stored", func(t *testing.T) {
		got := Prompt(stored, "three", 10)
		assert.Equal(t, []llm.ChatMessage{
			{Role: "user", Content: "one"},
			{Role: "assistant", Content: "two"},
			{Role: "user", Content: "three"},
		}, got)
	})

	t.Run("message appended", func(t *testing.T) {
		got := Prompt(stored, "four", 10)
		require.Len(t, got, 4)
		assert.Equal(t, llm.ChatMessage{Role: "user", Content: "four"}, got[3])
	})

	t.Run("limit keeps newest", func(t *testing.T) {
		got := Prompt(stored, "three", 2)
		assert.Equal(t, []llm.ChatMessage{{Role: "user", Content: "three"}}, got)
	})

	t.Run("empty history", func(t *testing.T) {
		assert.Equal(t, []llm.ChatMessage{{Role: "user", Content: "hi"}}, Prompt(nil, "hi", 10))
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "error", Outcome(nil, errors.New("x")))
	assert.Equal(t, "error", Outcome(nil, nil))
	assert.Equal(t, "failure", Outcome(model.Failure("x"), nil))
	assert.Equal(t, "failure", Outcome(&model.SendMessageResult{Success: true}, nil))
	assert.Equal(t, "success", Outcome(model.Reply("ok"), nil))
}

func TestInstrument_PassesThrough(t *testing.T) {
	inner := NewAssistant(&fakeLLM{reply: "ok"}, fakeHistory{}, AssistantConfig{}, logger.Nop())
	a := Instrument(inner, logger.Nop())

	assert.Equal(t, inner.Name(), a.Name())
	result, err := send(t, a)
	require.NoError(t, err)
	assert.Equal(t, "ok", *result.Response)

	failing := Instrument(NewAssistant(&fakeLLM{err: errors.New("down")}, fakeHistory{}, AssistantConfig{}, logger.Nop()), logger.Nop())
	_, err = send(t, failing)
	assert.Error(t, err)
}

func TestInstrument_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	a := Instrument(NewAssistant(&fakeLLM{err: errors.New("down")}, fakeHistory{}, AssistantConfig{}, logger.Nop()), logger.Nop())
	_, err := send(t, a)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "inference.SendMessage", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
