// Package stream defines the wire-level event union for a chat turn.
// It is shared by the server-side orchestrator and the Go client.
package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the event union.
type EventType string

const (
	EventStart   EventType = "start"
	EventContent EventType = "content"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one element of a turn's stream: exactly one start, zero or more
// content fragments, then one done or error. Concatenating the content
// fragments in emission order reconstructs the persisted assistant message.
type Event struct {
	Type EventType `json:"type"`

	// start
	SessionID    string `json:"sessionId,omitempty"`
	IsNewSession *bool  `json:"isNewSession,omitempty"`

	// content
	Content string `json:"content,omitempty"`

	// done
	MessageID uint64     `json:"messageId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

func Start(sessionID string, isNew bool) Event {
	return Event{Type: EventStart, SessionID: sessionID, IsNewSession: &isNew}
}

func Content(fragment string) Event {
	return Event{Type: EventContent, Content: fragment}
}

func Done(messageID uint64, createdAt time.Time) Event {
	return Event{Type: EventDone, MessageID: messageID, CreatedAt: &createdAt}
}

func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Decode parses a wire frame and validates the discriminator.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	switch ev.Type {
	case EventStart, EventContent, EventDone, EventError:
		return ev, nil
	default:
		return Event{}, fmt.Errorf("stream: unknown event type %q", ev.Type)
	}
}
