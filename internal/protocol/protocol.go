// Package protocol defines the messages exchanged over the live websocket
// stream.
package protocol

import (
	"encoding/json"
	"fmt"

	"keytrail/internal/recorder"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeHello is sent by the server right after a client connects
	TypeHello MessageType = "hello"

	// TypeMove carries one appended move
	TypeMove MessageType = "move"

	// TypeState is sent whenever the recording state changes
	TypeState MessageType = "state"

	// TypeCommand is sent by clients to start or stop recording
	TypeCommand MessageType = "command"

	// TypeError reports a rejected command
	TypeError MessageType = "error"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StatePayload is the payload for TypeHello and TypeState
type StatePayload struct {
	recorder.Info
	Recording bool `json:"recording"`
}

// MovePayload is the payload for TypeMove
type MovePayload struct {
	Session string          `json:"session"`
	Move    recorder.Record `json:"move"`
}

// CommandPayload is the payload for TypeCommand
type CommandPayload struct {
	Action string `json:"action"` // "start" or "stop"
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Error string `json:"error"`
}

// Commands
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// NewState builds a state message.
func NewState(t MessageType, info recorder.Info) Message {
	return Message{
		Type:    t,
		Payload: StatePayload{Info: info, Recording: info.State == recorder.Recording},
	}
}

// NewMove builds a move message.
func NewMove(session string, m recorder.Move) Message {
	return Message{
		Type:    TypeMove,
		Payload: MovePayload{Session: session, Move: recorder.ToRecord(m)},
	}
}

// DecodePayload re-decodes a generic payload into out.
func DecodePayload(msg Message, out interface{}) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return nil
}
