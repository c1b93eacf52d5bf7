package model

import (
	"time"
)

// EventType represents the type of a live subscription event.
type EventType string

const (
	EventTypeSnapshot  EventType = "snapshot"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeError     EventType = "error"
)

// SnapshotEvent carries the complete, ordered message list of a conversation.
// It is re-sent on every change; it is never a delta.
type SnapshotEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
