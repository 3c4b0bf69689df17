package wire

import (
	"fmt"
	"strings"
)

// Status is the 32-bit channel status word reported in status updates and
// end-of-move messages.
type Status uint32

const (
	// StatusAtMin is set while the channel sits on its minimum limit.
	StatusAtMin Status = 0x00000001

	// StatusAtMax is set while the channel sits on its maximum limit.
	StatusAtMax Status = 0x00000002

	StatusMovingForward  Status = 0x00000010
	StatusMovingReverse  Status = 0x00000020
	StatusJoggingForward Status = 0x00000040
	StatusJoggingReverse Status = 0x00000080

	// StatusMotionComplete is the idle marker, set whenever a non-homing
	// move re-idles.
	StatusMotionComplete Status = 0x00000100

	// StatusHoming marks a homing move in progress.
	StatusHoming Status = 0x00000200

	// StatusHomed is set on homing completion.
	StatusHomed Status = 0x00000400

	StatusTracking      Status = 0x00001000
	StatusSettled       Status = 0x00002000
	StatusPositionError Status = 0x00004000
	StatusCurrentLimit  Status = 0x01000000
	StatusEnabled       Status = 0x80000000
)

// Bit groups of the status word.
const (
	StatusLimitMask     Status = 0x0000000F
	StatusDirectionMask Status = 0x000000F0
	StatusMarkerMask    Status = 0x00000300

	// StatusMotionMask covers the marker and homed bits, replaced together
	// when a move starts or ends.
	StatusMotionMask Status = 0x00000F00
)

// StatusDefault is the status of a freshly constructed channel.
const StatusDefault = StatusEnabled | StatusMotionComplete

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusAtMin, "AT_MIN"},
	{StatusAtMax, "AT_MAX"},
	{StatusMovingForward, "MOVING_FWD"},
	{StatusMovingReverse, "MOVING_REV"},
	{StatusJoggingForward, "JOGGING_FWD"},
	{StatusJoggingReverse, "JOGGING_REV"},
	{StatusMotionComplete, "COMPLETE"},
	{StatusHoming, "HOMING"},
	{StatusHomed, "HOMED"},
	{StatusTracking, "TRACKING"},
	{StatusSettled, "SETTLED"},
	{StatusPositionError, "POS_ERROR"},
	{StatusCurrentLimit, "CURRENT_LIMIT"},
	{StatusEnabled, "ENABLED"},
}

// Has reports whether all bits of flag are set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// Moving reports whether any direction bit is set.
func (s Status) Moving() bool {
	return s&StatusDirectionMask != 0
}

// String renders the set flags joined with '|'.
func (s Status) String() string {
	if s == 0 {
		return "0"
	}
	var parts []string
	rest := s
	for _, n := range statusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%08X", uint32(rest)))
	}
	return strings.Join(parts, "|")
}
