package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/internal/pipeline"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypePipelineEvent MessageType = "pipeline_event"
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypePing          MessageType = "ping"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// Definitions a client may subscribe to
var knownDefinitions = map[string]bool{
	"ingest": true,
	"search": true,
}

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// EventMessage carries one pipeline step transition to observers
type EventMessage struct {
	BaseMessage
	Event      string           `json:"event"`
	RunID      string           `json:"run_id"`
	Definition string           `json:"definition"`
	StepID     pipeline.StepID  `json:"step_id,omitempty"`
	State      pipeline.State   `json:"state"`
	Kind       domain.ErrorKind `json:"kind,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// SubscribeMessage narrows the stream to the named pipeline definitions.
// An empty list restores every definition.
type SubscribeMessage struct {
	BaseMessage
	Definitions []string `json:"definitions"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// NewEventMessage converts a runner event to its wire form
func NewEventMessage(event pipeline.Event) *EventMessage {
	msg := &EventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePipelineEvent,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		},
		Event:      event.Type,
		RunID:      event.RunID,
		Definition: event.Definition,
		StepID:     event.StepID,
		State:      event.State,
	}
	if event.Error != nil {
		msg.Kind = domain.KindOf(event.Error)
		msg.Error = event.Error.Error()
	}
	return msg
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// MessageValidator provides validation for messages sent by observers
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeSubscribe:
		var msg SubscribeMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid subscribe message: %w", err)
		}
		for _, d := range msg.Definitions {
			if !knownDefinitions[d] {
				return nil, fmt.Errorf("unknown pipeline definition: %s", d)
			}
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}
