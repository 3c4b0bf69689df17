package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length of every frame header in bytes.
const HeaderSize = 6

// Message is one decoded APT frame.
//
// Payload is nil for header-only kinds. For data kinds it holds exactly
// Kind.DataLength() bytes and Param2 mirrors that length on the wire.
type Message struct {
	Kind    Kind
	Param1  uint16
	Param2  uint16
	Payload []byte
}

// NewHeaderMessage builds a header-only message.
func NewHeaderMessage(kind Kind, param1, param2 uint16) Message {
	return Message{Kind: kind, Param1: param1, Param2: param2}
}

// NewDataMessage builds a data message, encoding v as the payload.
func NewDataMessage(kind Kind, v any) (Message, error) {
	if !kind.HasData() {
		return Message{}, fmt.Errorf("%w: %s carries no payload", ErrMalformedPayload, kind)
	}
	payload, err := EncodePayload(v)
	if err != nil {
		return Message{}, err
	}
	if len(payload) != kind.DataLength() {
		return Message{}, fmt.Errorf("%w: %s expects %d bytes, got %d",
			ErrMalformedPayload, kind, kind.DataLength(), len(payload))
	}
	return Message{Kind: kind, Param2: uint16(len(payload)), Payload: payload}, nil
}

// Validate checks the payload invariant against the kind registry.
func (m Message) Validate() error {
	if !m.Kind.IsKnown() {
		return fmt.Errorf("%w: unknown kind %s", ErrMalformedHeader, m.Kind)
	}
	if m.Kind.HasData() {
		if len(m.Payload) != m.Kind.DataLength() {
			return fmt.Errorf("%w: %s expects %d bytes, got %d",
				ErrMalformedPayload, m.Kind, m.Kind.DataLength(), len(m.Payload))
		}
		return nil
	}
	if m.Payload != nil {
		return fmt.Errorf("%w: %s is header-only", ErrMalformedPayload, m.Kind)
	}
	return nil
}

// Channel returns the channel a message addresses. Data messages carry it in
// the first two payload bytes, header-only messages in param1.
func (m Message) Channel() uint16 {
	if len(m.Payload) >= 2 {
		return binary.LittleEndian.Uint16(m.Payload)
	}
	return m.Param1
}

// Len returns the encoded frame length.
func (m Message) Len() int {
	return HeaderSize + m.Kind.DataLength()
}

// String formats the message for logs.
func (m Message) String() string {
	if m.Kind.HasData() {
		return fmt.Sprintf("%s{len=%d}", m.Kind, len(m.Payload))
	}
	return fmt.Sprintf("%s{p1=%d p2=%d}", m.Kind, m.Param1, m.Param2)
}
