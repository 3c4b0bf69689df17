package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformedHeader indicates an unknown kind or an inconsistent length
	// field.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrMalformedPayload indicates a payload whose size differs from the
	// kind's declared length.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Header is the decoded fixed-size part of a frame.
type Header struct {
	Kind   Kind
	Param1 uint16
	Param2 uint16
}

// HasData reports whether a payload follows the header.
func (h Header) HasData() bool {
	return h.Kind.HasData()
}

// DataLength returns the number of payload bytes following the header.
func (h Header) DataLength() int {
	return h.Kind.DataLength()
}

// DecodeHeader parses a 6-byte header.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) != HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedHeader, HeaderSize, len(data))
	}
	h := Header{
		Kind:   Kind(binary.LittleEndian.Uint16(data[0:2])),
		Param1: binary.LittleEndian.Uint16(data[2:4]),
		Param2: binary.LittleEndian.Uint16(data[4:6]),
	}
	if !h.Kind.IsKnown() {
		return Header{}, fmt.Errorf("%w: unknown kind %s", ErrMalformedHeader, h.Kind)
	}
	if h.HasData() && int(h.Param2) != h.DataLength() {
		return Header{}, fmt.Errorf("%w: %s declares %d data bytes, length field says %d",
			ErrMalformedHeader, h.Kind, h.DataLength(), h.Param2)
	}
	return h, nil
}

// DecodePayload checks a payload against the kind's declared length and
// returns a private copy of it.
func DecodePayload(kind Kind, data []byte) ([]byte, error) {
	if !kind.HasData() {
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: %s is header-only, got %d bytes", ErrMalformedPayload, kind, len(data))
		}
		return nil, nil
	}
	if len(data) != kind.DataLength() {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d",
			ErrMalformedPayload, kind, kind.DataLength(), len(data))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Decode parses exactly one frame.
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return Message{}, fmt.Errorf("%w: frame of %d bytes", ErrMalformedHeader, len(frame))
	}
	h, err := DecodeHeader(frame[:HeaderSize])
	if err != nil {
		return Message{}, err
	}
	payload, err := DecodePayload(h.Kind, frame[HeaderSize:])
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: h.Kind, Param1: h.Param1, Param2: h.Param2, Payload: payload}, nil
}

// Encode serializes a message. Data kinds get param1 zeroed and param2 set to
// the payload length.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize+len(m.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(m.Kind))
	if m.Kind.HasData() {
		binary.LittleEndian.PutUint16(buf[4:6], uint16(len(m.Payload)))
		copy(buf[HeaderSize:], m.Payload)
	} else {
		binary.LittleEndian.PutUint16(buf[2:4], m.Param1)
		binary.LittleEndian.PutUint16(buf[4:6], m.Param2)
	}
	return buf, nil
}

// MustEncode is like Encode but panics on error. Intended for tests and
// statically known frames.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}
