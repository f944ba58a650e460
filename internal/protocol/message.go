package protocol

import (
	"encoding/json"
	"fmt"
)

// Message 双向线缆消息封包：{ "type": kind, "payload": ... }
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command kinds (closed set). Reply and push kinds mirror each command;
// KindError carries {message}.
const (
	KindGetRooms     = "get_rooms"
	KindGetRoom      = "get_room"
	KindAddRoom      = "add_room"
	KindUpdateRoom   = "update_room"
	KindDeleteRoom   = "delete_room"
	KindGetGuests    = "get_guests"
	KindAddGuest     = "add_guest"
	KindUpdateGuest  = "update_guest"
	KindDeleteGuest  = "delete_guest"
	KindAssignGuests = "assign_multiple_guests"
	KindError        = "error"
)

// MutationKinds are the command kinds whose successful replies are broadcast
// to every other connected session. Read kinds and rejections never are.
var MutationKinds = map[string]bool{
	KindAddRoom:      true,
	KindUpdateRoom:   true,
	KindDeleteRoom:   true,
	KindAddGuest:     true,
	KindUpdateGuest:  true,
	KindDeleteGuest:  true,
	KindAssignGuests: true,
}

// New builds a message with the payload marshalled in place.
func New(kind string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Message{Type: kind, Payload: raw}, nil
}

// MustNew is New for payload types that cannot fail to marshal.
func MustNew(kind string, payload any) *Message {
	msg, err := New(kind, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Error builds the error reply for a failed command.
func Error(message string) *Message {
	return MustNew(KindError, ErrorPayload{Message: message})
}

// Decode parses a wire frame into a Message.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// Encode renders the message as a wire frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// MustEncode is Encode for messages built from marshalable payloads.
func (m *Message) MustEncode() []byte {
	data, err := m.Encode()
	if err != nil {
		panic(err)
	}
	return data
}

// DecodePayload parses the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}
