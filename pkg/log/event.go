package log

import (
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the host connection (UUID), empty for events
	// not tied to a connection.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow relative to the mock.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Serial is the device serial number.
	Serial uint32 `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address, when known.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Channel is the addressed channel id, 0 for device-wide events.
	Channel uint16 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a frame written by the host.
	DirectionIn Direction = 0
	// DirectionOut indicates a frame queued for the host.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the mock captured the event.
type Layer uint8

const (
	// LayerTransport is the byte-stream layer (raw frames).
	LayerTransport Layer = 0
	// LayerDevice is the decode/dispatch layer.
	LayerDevice Layer = 1
	// LayerChannel is the per-axis motion simulation.
	LayerChannel Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerDevice:
		return "DEVICE"
	case LayerChannel:
		return "CHANNEL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol frame or message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes.
	Data []byte `cbor:"2,keyasint,omitempty"`
}

// MessageEvent captures a decoded APT message.
type MessageEvent struct {
	Kind   wire.Kind `cbor:"1,keyasint"`
	Name   string    `cbor:"2,keyasint"`
	Param1 uint16    `cbor:"3,keyasint"`
	Param2 uint16    `cbor:"4,keyasint"`

	// Payload is the raw payload for data kinds.
	Payload []byte `cbor:"5,keyasint,omitempty"`

	// Status and Position are lifted out of status-carrying payloads.
	Status   *wire.Status `cbor:"6,keyasint,omitempty"`
	Position *int32       `cbor:"7,keyasint,omitempty"`

	// Unsolicited marks frames the mock emitted on its own (worker events
	// and status broadcasts) rather than as a reply.
	Unsolicited bool `cbor:"8,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent from a decoded message.
func NewMessageEvent(msg wire.Message) *MessageEvent {
	ev := &MessageEvent{
		Kind:    msg.Kind,
		Name:    msg.Kind.String(),
		Param1:  msg.Param1,
		Param2:  msg.Param2,
		Payload: msg.Payload,
	}
	if len(msg.Payload) == wire.StatusUpdateSize {
		switch msg.Kind {
		case wire.GetDCStatusUpdate, wire.GetStatusUpdate, wire.MoveCompleted, wire.MoveStopped:
			var su wire.StatusUpdate
			if wire.DecodePayloadInto(msg.Payload, &su) == nil {
				ev.Status = &su.Status
				ev.Position = &su.Position
			}
		}
	}
	return ev
}

// StateChangeEvent captures lifecycle and motion state transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a host connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityChannel indicates a channel movement-type transition.
	StateEntityChannel StateEntity = 1
	// StateEntityBroadcast indicates the status-broadcast worker started or stopped.
	StateEntityBroadcast StateEntity = 2
	// StateEntityDevice indicates a device lifecycle change.
	StateEntityDevice StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityBroadcast:
		return "BROADCAST"
	case StateEntityDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Kind is the message kind being processed, when known.
	Kind *wire.Kind `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
