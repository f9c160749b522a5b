// Package protocol models the signaling wire surface shared by the relay and its clients.
//
// Every WebSocket text frame carries one Envelope: an event name plus an optional
// JSON payload, the same shape an event-emitter style socket would use.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errMissingEvent = errors.New("protocol: envelope without event")

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals v as the payload of event. A nil v produces an empty payload.
func NewEnvelope(event string, v any) (Envelope, error) {
	env := Envelope{Event: event}
	if v == nil {
		return env, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: marshal %s: %w", event, err)
	}
	env.Data = b
	return env, nil
}

func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errMissingEvent
	}
	return env, nil
}

func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("protocol: %s has no payload", e.Event)
	}
	return json.Unmarshal(e.Data, v)
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
