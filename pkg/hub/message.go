// Package hub fans websocket messages out to every connected preview
// client using the register/unregister/broadcast channel pattern.
package hub

import (
	"encoding/json"
	"time"
)

// MessageType selects the websocket frame type.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage carries an encoded video frame.
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps a JPEG frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Event is the JSON envelope for non-frame notifications
// (background recaptured, screenshot saved).
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// NewEvent encodes an event message.
func NewEvent(kind string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: kind, Time: time.Now(), Data: data})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}
