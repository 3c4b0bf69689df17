package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

func TestEventRoundTrip(t *testing.T) {
	status := wire.StatusDefault | wire.StatusAtMax
	pos := int32(1000)
	kind := wire.MoveAbsolute

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "frame",
			event: Event{
				ConnectionID: "conn-1",
				Direction:    DirectionIn,
				Layer:        LayerTransport,
				Category:     CategoryMessage,
				Frame:        &FrameEvent{Size: 6, Data: []byte{0x05, 0x00, 0, 0, 0, 0}},
			},
		},
		{
			name: "message",
			event: Event{
				Direction: DirectionOut,
				Layer:     LayerChannel,
				Category:  CategoryMessage,
				Serial:    83851458,
				Channel:   1,
				Message: &MessageEvent{
					Kind:        wire.MoveStopped,
					Name:        wire.MoveStopped.String(),
					Param2:      wire.StatusUpdateSize,
					Status:      &status,
					Position:    &pos,
					Unsolicited: true,
				},
			},
		},
		{
			name: "state change",
			event: Event{
				Layer:       LayerChannel,
				Category:    CategoryState,
				Channel:     2,
				StateChange: &StateChangeEvent{Entity: StateEntityChannel, OldState: "No", NewState: "Homing"},
			},
		},
		{
			name: "error",
			event: Event{
				Direction: DirectionIn,
				Layer:     LayerDevice,
				Category:  CategoryError,
				Error:     &ErrorEventData{Layer: LayerDevice, Message: "unhandled", Kind: &kind},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}
			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}

			if !got.Timestamp.Equal(tt.event.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.event.Timestamp)
			}
			if got.Layer != tt.event.Layer || got.Category != tt.event.Category || got.Direction != tt.event.Direction {
				t.Errorf("classification mismatch: %+v", got)
			}
			if got.Channel != tt.event.Channel || got.Serial != tt.event.Serial {
				t.Errorf("Channel/Serial = %d/%d", got.Channel, got.Serial)
			}

			switch {
			case tt.event.Frame != nil:
				if got.Frame == nil || !bytes.Equal(got.Frame.Data, tt.event.Frame.Data) {
					t.Errorf("Frame = %+v", got.Frame)
				}
			case tt.event.Message != nil:
				if got.Message == nil || got.Message.Kind != wire.MoveStopped || !got.Message.Unsolicited {
					t.Fatalf("Message = %+v", got.Message)
				}
				if got.Message.Status == nil || *got.Message.Status != status {
					t.Errorf("Status = %v", got.Message.Status)
				}
			case tt.event.StateChange != nil:
				if got.StateChange == nil || got.StateChange.NewState != "Homing" {
					t.Errorf("StateChange = %+v", got.StateChange)
				}
			case tt.event.Error != nil:
				if got.Error == nil || got.Error.Kind == nil || *got.Error.Kind != wire.MoveAbsolute {
					t.Errorf("Error = %+v", got.Error)
				}
			}
		})
	}
}

func TestEncodeEventDeterministic(t *testing.T) {
	event := Event{
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		Layer:       LayerDevice,
		Category:    CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityBroadcast, NewState: "RUNNING"},
	}
	a, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	b, _ := EncodeEvent(event)
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}
