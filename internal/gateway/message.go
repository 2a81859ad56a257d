package gateway

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType represents the type of a gateway frame using a custom enum type
// for better type safety.
type MessageType string

const (
	// Client-initiated operations
	MessageTypeSubscribe        MessageType = "subscribe"
	MessageTypeUnsubscribe      MessageType = "unsubscribe"
	MessageTypePublish          MessageType = "publish"
	MessageTypeRequest          MessageType = "request"
	MessageTypePing             MessageType = "ping"
	MessageTypePong             MessageType = "pong"
	MessageTypeGetChannels      MessageType = "get_channels"
	MessageTypeGetSubscriptions MessageType = "get_subscriptions"
	MessageTypeGetHistory       MessageType = "get_history"

	// Server-originated frames
	MessageTypeResponse     MessageType = "response"
	MessageTypeError        MessageType = "error"
	MessageTypeNotification MessageType = "notification"
	MessageTypeMessage      MessageType = "message"

	// System category payloads published by internal collaborators
	MessageTypeSystem  MessageType = "system"
	MessageTypeLog     MessageType = "log"
	MessageTypeMetrics MessageType = "metrics"
	MessageTypeBackup  MessageType = "backup"
)

// String returns the string representation of the MessageType.
func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a valid enum value.
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypePublish,
		MessageTypeRequest, MessageTypePing, MessageTypePong,
		MessageTypeGetChannels, MessageTypeGetSubscriptions, MessageTypeGetHistory,
		MessageTypeResponse, MessageTypeError, MessageTypeNotification,
		MessageTypeMessage, MessageTypeSystem, MessageTypeLog,
		MessageTypeMetrics, MessageTypeBackup:
		return true
	default:
		return false
	}
}

// Message is the wire frame exchanged with clients. All frames, inbound and
// outbound, share this shape; optional fields are omitted when empty.
type Message struct {
	ID         string         `json:"id"`
	Type       MessageType    `json:"type"`
	Channel    string         `json:"channel,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	From       string         `json:"from,omitempty"`
	To         string         `json:"to,omitempty"`
	Filters    map[string]any `json:"filters,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	ResponseTo string         `json:"responseTo,omitempty"`
}

// Validate checks the frame carries a recognized type and a timestamp.
// Malformed frames never mutate gateway state.
func (m *Message) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, m.Type)
	}
	if m.Timestamp == 0 {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedFrame)
	}
	return nil
}

// NewMessage creates an outbound frame with the given type and data.
func NewMessage(msgType MessageType, data map[string]any) *Message {
	if data == nil {
		data = make(map[string]any)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewResponse creates a response frame correlated to the request that
// triggered it.
func NewResponse(responseTo string, data map[string]any) *Message {
	msg := NewMessage(MessageTypeResponse, data)
	msg.ResponseTo = responseTo
	return msg
}

// NewErrorMessage creates an error frame with a stable machine code and a
// human readable message, correlated to the offending frame when known.
func NewErrorMessage(responseTo, code, message string) *Message {
	msg := NewMessage(MessageTypeError, map[string]any{
		"code":    code,
		"message": message,
	})
	msg.ResponseTo = responseTo
	return msg
}

// NewNotification creates a server-originated notification frame.
func NewNotification(data map[string]any) *Message {
	return NewMessage(MessageTypeNotification, data)
}

// NewPing creates a liveness heartbeat frame.
func NewPing() *Message {
	return NewMessage(MessageTypePing, nil)
}

// NewPong creates the reply to a client ping, echoing its id in responseTo.
func NewPong(responseTo string) *Message {
	msg := NewMessage(MessageTypePong, nil)
	msg.ResponseTo = responseTo
	return msg
}

// NewBroadcast creates the frame fanned out to a channel's subscribers.
// from is empty for server-originated publishes.
func NewBroadcast(msgType MessageType, channel, from string, payload map[string]any, ts time.Time) *Message {
	msg := NewMessage(msgType, payload)
	msg.Channel = channel
	msg.From = from
	msg.Timestamp = ts.UnixMilli()
	return msg
}
