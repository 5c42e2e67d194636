// Package protocol defines the structured message contract shared with the
// voice service. Text frames on the channel are JSON objects with a
// mandatory "type" discriminant; binary frames are raw PCM16 and never
// reach this package.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeTranscript    = "transcript"
	TypeAudioEnd      = "audio_end"
	TypeBufferCleared = "buffer_cleared"
	TypePong          = "pong"
)

// Outbound message types.
const (
	TypePing                = "ping"
	TypeClearBuffer         = "clear_buffer"
	TypeUserStoppedSpeaking = "user_stopped_speaking"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingType reports a JSON object without the mandatory discriminant.
var ErrMissingType = errors.New("control message missing type field")

// ControlMessage is the tagged structured record carried in text frames.
// Fields other than Type are populated per message type; unrecognized
// types are preserved so the dispatcher can log and continue.
type ControlMessage struct {
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`
}

// Parse decodes a text frame into a ControlMessage. A syntactically valid
// object with an unknown type parses fine; the caller decides what to do
// with it. Malformed JSON or a missing type is an error, which the channel
// recovers from by treating the raw text as a transcript line.
func Parse(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("parse control message: %w", err)
	}
	if msg.Type == "" {
		return ControlMessage{}, ErrMissingType
	}
	return msg, nil
}

// Encode marshals a ControlMessage for the wire.
func Encode(msg ControlMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode control message: %w", err)
	}
	return data, nil
}
