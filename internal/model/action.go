package model

// SendMessageRequest forwards a user message to the inference backend.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// SendMessageResult is the structured outcome of the send-message action.
// Success with a nil or empty Response is treated as a failure by callers.
type SendMessageResult struct {
	Success  bool    `json:"success"`
	Response *string `json:"response"`
	Error    *string `json:"error"`
}

// Reply returns a successful result carrying text.
func Reply(text string) *SendMessageResult {
	return &SendMessageResult{Success: true, Response: &text}
}

// Failure returns a failed result carrying reason.
func Failure(reason string) *SendMessageResult {
	return &SendMessageResult{Success: false, Error: &reason}
}
