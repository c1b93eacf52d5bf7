package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

func newWorkflow(t *testing.T, handler http.HandlerFunc) *Workflow {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	w, err := NewWorkflow(WorkflowConfig{URL: srv.URL, Secret: "s3cret", Timeout: 5 * time.Second}, logger.Nop())
	require.NoError(t, err)
	return w
}

func send(t *testing.T, a Action) (*model.SendMessageResult, error) {
	t.Helper()
	return a.SendMessage(context.Background(), "u1", &model.SendMessageRequest{
		ConversationID: "c1",
		Message:        "Plan 3 days in Lisbon",
	})
}

func TestNewWorkflow_RequiresURL(t *testing.T) {
	_, err := NewWorkflow(WorkflowConfig{}, logger.Nop())
	assert.Error(t, err)
}

func TestWorkflow_Reply(t *testing.T) {
	w := newWorkflow(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3cret", r.Header.Get(SecretHeader))

		var body workflowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body.ConversationID)
		assert.Equal(t, "u1", body.UserID)
		assert.Equal(t, "Plan 3 days in Lisbon", body.Message)

		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"success":true,"response":"Day 1: Alfama..."}`))
	})

	result, err := send(t, w)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Response)
	assert.Equal(t, "Day 1: Alfama...", *result.Response)
}

func TestWorkflow_OutputField(t *testing.T) {
	w := newWorkflow(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"output":"hello"}`))
	})

	result, err := send(t, w)
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	assert.Equal(t, "hello", *result.Response)
}

func TestWorkflow_ReportedFailure(t *testing.T) {
	w := newWorkflow(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
	})

	result, err := send(t, w)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "quota exceeded", *result.Error)
}

func TestWorkflow_ClientErrorStatus(t *testing.T) {
	w := newWorkflow(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte(`{"error":"bad message"}`))
	})

	result, err := send(t, w)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "bad message", *result.Error)
}

func TestWorkflow_EmptyReplyHasNoText(t *testing.T) {
	w := newWorkflow(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"success":true}`))
	})

	result, err := send(t, w)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, result.Response)
	assert.Nil(t, result.Error)
}

func TestWorkflow_FailureWithoutErrorText(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"reported failure", http.StatusOK, `{"success":false}`},
		{"client error without body", http.StatusNotFound, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorkflow(t, func(rw http.ResponseWriter, _ *http.Request) {
				if tt.body != "" {
					rw.Header().Set("Content-Type", "application/json")
				}
				rw.WriteHeader(tt.status)
				_, _ = rw.Write([]byte(tt.body))
			})

			result, err := send(t, w)
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Nil(t, result.Response)
			assert.Nil(t, result.Error)
		})
	}
}

func TestWorkflow_ServerErrorTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	w := newWorkflow(t, func(rw http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		rw.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, err := send(t, w)
		require.Error(t, err)
	}
	require.EqualValues(t, 5, calls.Load())

	_, err := send(t, w)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 5, calls.Load())
}
