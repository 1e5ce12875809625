package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire unit exchanged over the connection
type Envelope struct {
	Event string          `json:"event"`           // Event name from the catalog
	Data  json.RawMessage `json:"data,omitempty"`  // Event payload
	AckId string          `json:"ackId,omitempty"` // Set on ack-bearing requests and on their "ack" reply
}

// NewEnvelope builds an envelope with payload marshalled into Data
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = data
	}
	return env, nil
}

// NewAck builds the reply envelope for an ack-bearing request
func NewAck(ackId string, reply interface{}) (*Envelope, error) {
	env, err := NewEnvelope(EventAck, reply)
	if err != nil {
		return nil, err
	}
	env.AckId = ackId
	return env, nil
}

// Bind decodes the envelope payload into v
func (e *Envelope) Bind(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Event, err)
	}
	return nil
}

// IsAck reports whether the envelope is an acknowledgment reply
func (e *Envelope) IsAck() bool {
	return e.Event == EventAck && e.AckId != ""
}

// Encode encodes an envelope to JSON bytes
func Encode(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode decodes JSON bytes to an envelope
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope without event name")
	}
	return &env, nil
}
