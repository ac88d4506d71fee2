// Package events declares the realtime protocol events the relay reads,
// rewrites, and synthesizes. Only the fields the relay touches are typed;
// frames are otherwise passed through as raw JSON.
package events

import (
	"encoding/json"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// BaseEvent carries the fields common to every protocol event.
type BaseEvent struct {
	EventID        string  `json:"event_id"`
	Type           string  `json:"type"`
	PreviousItemID *string `json:"previous_item_id,omitempty"`
}

// NewBaseEvent builds the envelope for a relay-synthesized event with a
// fresh event ID.
func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}

// Parse decodes a raw frame into a typed event.
func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
