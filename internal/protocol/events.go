package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// EventType discriminates stream event payloads.
type EventType string

const (
	EventMessage      EventType = "message"
	EventError        EventType = "error"
	EventFinish       EventType = "finish"
	EventModelChange  EventType = "model_change"
	EventNotification EventType = "notification"
	EventPing         EventType = "ping"
)

// Event is a decoded stream event. Exactly one concrete type applies per
// payload.
type Event interface {
	Type() EventType
}

// MessageEvent carries a full or fragmentary Message.
type MessageEvent struct {
	Message Message `json:"message"`
}

func (MessageEvent) Type() EventType { return EventMessage }

// ErrorEvent is an in-stream error report from the agent service.
type ErrorEvent struct {
	Text string `json:"error"`
}

func (ErrorEvent) Type() EventType { return EventError }

// FinishEvent marks the end of the agent's turn.
type FinishEvent struct {
	Reason string `json:"reason"`
}

func (FinishEvent) Type() EventType { return EventFinish }

// ModelChangeEvent reports the serving model switching mid-conversation.
type ModelChangeEvent struct {
	Model string `json:"model"`
	Mode  string `json:"mode"`
}

func (ModelChangeEvent) Type() EventType { return EventModelChange }

// NotificationEvent is an out-of-band notice tied to a request.
type NotificationEvent struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
}

func (NotificationEvent) Type() EventType { return EventNotification }

// PingEvent is a heartbeat. It carries no payload and only resets the
// per-event read-timeout guard.
type PingEvent struct{}

func (PingEvent) Type() EventType { return EventPing }

// ParseEvent decodes one event payload. The payload must be a JSON object
// with a string "type" discriminant; unknown discriminants are an error,
// never silently dropped.
func ParseEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("event payload is not valid JSON")
	}
	disc := gjson.GetBytes(data, "type")
	if disc.Type != gjson.String {
		return nil, fmt.Errorf("event payload missing string \"type\" field")
	}

	switch EventType(disc.Str) {
	case EventMessage:
		var ev MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode message event: %w", err)
		}
		for _, b := range ev.Message.Content {
			if !KnownBlockType(b.Type) {
				return nil, fmt.Errorf("unknown content block type %q", b.Type)
			}
		}
		if ev.Message.ID == "" {
			return nil, fmt.Errorf("message event with empty id")
		}
		return ev, nil
	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode error event: %w", err)
		}
		return ev, nil
	case EventFinish:
		var ev FinishEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode finish event: %w", err)
		}
		return ev, nil
	case EventModelChange:
		var ev ModelChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode model_change event: %w", err)
		}
		return ev, nil
	case EventNotification:
		var ev NotificationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode notification event: %w", err)
		}
		return ev, nil
	case EventPing:
		return PingEvent{}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", disc.Str)
}
