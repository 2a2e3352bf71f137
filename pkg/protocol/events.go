// Package protocol defines the realtime events exchanged between chat
// clients and the gateway. Every frame is a JSON object with a "type"
// discriminator; the remaining fields depend on the type.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"linguaconnect/internal/entity"
)

// Client -> server event types.
const (
	TypeIdentify         = "identify"
	TypeManualDisconnect = "manual-disconnect"
	TypeSendMessage      = "send-message"
	TypePing             = "ping"
)

// TypeMessagesRead travels both ways: a client reports it has read a chat,
// and the server forwards the receipt to the other participant.
const TypeMessagesRead = "messages-read"

// Server -> client event types.
const (
	TypeUserStatusChange = "user-status-change"
	TypeNewMessage       = "new-message"
	TypeNewChatInitiated = "newChatInitiated"
	TypeAck              = "ack"
	TypeError            = "error"
	TypePong             = "pong"
)

// Error codes carried by ErrorEvent.
const (
	CodeParseError   = "parse_error"
	CodeInvalidEvent = "invalid_event"
)

// Envelope holds the event type and the raw frame for deferred decoding.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// IdentifyEvent binds the connection to a user.
type IdentifyEvent struct {
	Type   string `json:"type"`
	UserId string `json:"userId"`
}

// ManualDisconnectEvent marks the user away without closing the transport.
type ManualDisconnectEvent struct {
	Type   string `json:"type"`
	UserId string `json:"userId"`
}

type SendMessageEvent struct {
	Type     string `json:"type"`
	AckId    string `json:"ackId,omitempty"`
	Chat     string `json:"chat"`
	Sender   string `json:"sender"`
	Content  string `json:"content,omitempty"`
	ImageRef string `json:"imageRef,omitempty"`
}

type MessagesReadEvent struct {
	Type   string `json:"type"`
	AckId  string `json:"ackId,omitempty"`
	Chat   string `json:"chat"`
	UserId string `json:"userId"`
}

type PingEvent struct {
	Type string `json:"type"`
}

// UserStatusChangeEvent carries no payload; receivers re-pull the active set.
type UserStatusChangeEvent struct {
	Type string `json:"type"`
}

type NewMessageEvent struct {
	Type    string         `json:"type"`
	Message entity.Message `json:"message"`
}

type NewChatInitiatedEvent struct {
	Type string      `json:"type"`
	Chat entity.Chat `json:"chat"`
}

type ReadReceiptEvent struct {
	Type   string    `json:"type"`
	Chat   string    `json:"chat"`
	UserId string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// AckEvent answers a client event. Message is set for a successful send.
type AckEvent struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	AckId   string          `json:"ackId,omitempty"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Message *entity.Message `json:"message,omitempty"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongEvent struct {
	Type string `json:"type"`
}

// ParseClientEvent decodes a frame sent by a client. Unknown and
// server-only types are rejected.
func ParseClientEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		event interface{}
		err   error
	)

	switch env.Type {
	case TypeIdentify:
		var e IdentifyEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeManualDisconnect:
		var e ManualDisconnectEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeSendMessage:
		var e SendMessageEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeMessagesRead:
		var e MessagesReadEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypePing:
		var e PingEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, event, nil
}

// ParseServerEvent decodes a frame pushed by the gateway.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		event interface{}
		err   error
	)

	switch env.Type {
	case TypeUserStatusChange:
		event = UserStatusChangeEvent{Type: env.Type}
	case TypeNewMessage:
		var e NewMessageEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeNewChatInitiated:
		var e NewChatInitiatedEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeMessagesRead:
		var e ReadReceiptEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeAck:
		var e AckEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypeError:
		var e ErrorEvent
		err = json.Unmarshal(env.Raw, &e)
		event = e
	case TypePong:
		event = PongEvent{Type: env.Type}
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown server event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, event, nil
}

// NewEvent encodes payload with its "type" field forced to eventType.
func NewEvent(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	typeField, err := json.Marshal(eventType)
	if err != nil {
		return nil, err
	}
	m["type"] = typeField

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal event: %w", err)
	}
	return out, nil
}
