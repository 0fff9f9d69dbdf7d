package models

import (
	"encoding/json"
	"time"
)

// Outbound websocket event types.
const (
	EventPresenceChanged        = "presenceChanged"
	EventNewMessage             = "newMessage"
	EventNewMessageNotification = "newMessageNotification"
	EventMessageRead            = "messageRead"
	EventChatCreated            = "chatCreated"
	EventError                  = "error"
)

// Inbound websocket event types.
const (
	EventSendMessage = "sendMessage"
	EventMarkRead    = "markMessageAsRead"
)

// Envelope is the wire frame for every websocket event, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an envelope with the given payload. Marshal errors
// cannot happen for the payload types below, so they are swallowed.
func Encode(eventType string, payload any) []byte {
	raw, _ := json.Marshal(payload)
	b, _ := json.Marshal(Envelope{Type: eventType, Payload: raw})
	return b
}

type PresenceChangedPayload struct {
	UserID   string         `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen *time.Time     `json:"last_seen,omitempty"`
}

type NewMessagePayload struct {
	ChatID       string           `json:"chat_id"`
	Message      *Message         `json:"message"`
	UnreadCounts map[string]int64 `json:"unread_counts"`
}

type MessageReadPayload struct {
	ChatID       string           `json:"chat_id"`
	MessageID    string           `json:"message_id"`
	ReaderID     string           `json:"reader_id"`
	UnreadCounts map[string]int64 `json:"unread_counts"`
}

type ChatCreatedPayload struct {
	Chat *Chat `json:"chat"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SendMessagePayload struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

type MarkReadPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}
