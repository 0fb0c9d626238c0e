// Package protocol defines the websocket messages exchanged with the viewer page.
package protocol

import (
	jsoniter "github.com/json-iterator/go"

	"webkvm/internal/input"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeActivate is sent by the page when the canvas is clicked
	TypeActivate MessageType = "activate"

	// TypeLockChange is sent by the page on every pointer lock change
	TypeLockChange MessageType = "lockchange"

	// TypeInput carries one mouse or keyboard event from the page
	TypeInput MessageType = "input"

	// TypeRequestLock asks the page to lock the pointer to the canvas
	TypeRequestLock MessageType = "request_lock"

	// TypeExitLock asks the page to release pointer lock
	TypeExitLock MessageType = "exit_lock"

	// TypeFrames tells the page that all four display slots changed
	TypeFrames MessageType = "frames"

	// TypeReload tells the page that the session was rebuilt
	TypeReload MessageType = "reload"

	// TypeSession is sent to a page right after it connects
	TypeSession MessageType = "session"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType         `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// LockChangePayload is the payload for TypeLockChange
type LockChangePayload struct {
	// Element is the id of the element holding pointer lock, empty when none
	Element string `json:"element"`
}

// FramesPayload is the payload for TypeFrames
type FramesPayload struct {
	Generation uint64 `json:"generation"`
	Stamp      int64  `json:"stamp"`
}

// ReloadPayload is the payload for TypeReload
type ReloadPayload struct {
	Reason string `json:"reason"`
}

// SessionPayload is the payload for TypeSession
type SessionPayload struct {
	Session    string `json:"session"`
	Generation uint64 `json:"generation"`
}

// New builds a message, encoding payload when it is not nil
func New(t MessageType, payload interface{}) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Encode serialises a message
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a message
func Decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// LockChange decodes a TypeLockChange payload
func (m Message) LockChange() (LockChangePayload, error) {
	var p LockChangePayload
	err := m.decode(&p)
	return p, err
}

// Input decodes a TypeInput payload
func (m Message) Input() (input.Event, error) {
	var ev input.Event
	err := m.decode(&ev)
	return ev, err
}

func (m Message) decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
