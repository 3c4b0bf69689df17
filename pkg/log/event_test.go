package log

import (
	"testing"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerDevice.String(), "DEVICE"},
		{LayerChannel.String(), "CHANNEL"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{StateEntityChannel.String(), "CHANNEL"},
		{StateEntityBroadcast.String(), "BROADCAST"},
		{StateEntity(42).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestNewMessageEventLiftsStatus(t *testing.T) {
	msg, err := wire.NewDataMessage(wire.MoveCompleted, wire.StatusUpdate{
		Channel:  1,
		Position: 250,
		Status:   wire.StatusDefault,
	})
	if err != nil {
		t.Fatalf("NewDataMessage failed: %v", err)
	}

	ev := NewMessageEvent(msg)
	if ev.Name != "MOT_MOVE_COMPLETED" {
		t.Errorf("Name = %q", ev.Name)
	}
	if ev.Position == nil || *ev.Position != 250 {
		t.Errorf("Position = %v, want 250", ev.Position)
	}
	if ev.Status == nil || *ev.Status != wire.StatusDefault {
		t.Errorf("Status = %v", ev.Status)
	}
}

func TestNewMessageEventHeaderOnly(t *testing.T) {
	ev := NewMessageEvent(wire.NewHeaderMessage(wire.MoveJog, 1, 2))
	if ev.Param1 != 1 || ev.Param2 != 2 {
		t.Errorf("params = %d,%d", ev.Param1, ev.Param2)
	}
	if ev.Status != nil || ev.Position != nil || ev.Payload != nil {
		t.Error("header-only message should not carry payload fields")
	}
}
