package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Payload sizes in bytes.
const (
	StatusUpdateSize      = 14
	HWInfoSize            = 84
	CounterSize           = 6
	MoveParamsSize        = 6
	GenMoveParamsSize     = 6
	VelParamsSize         = 14
	JogParamsSize         = 22
	HomeParamsSize        = 14
	LimitSwitchParamsSize = 16
	PIDParamsSize         = 20
)

// StatusUpdate is the per-channel status block shared by
// GET_DCSTATUSUPDATE, GET_STATUSUPDATE, MOVE_COMPLETED and MOVE_STOPPED.
type StatusUpdate struct {
	Channel  uint16
	Position int32
	Velocity int16
	_        uint16
	Status   Status
}

// HWInfo is the HW_GET_INFO payload.
type HWInfo struct {
	Serial    uint32
	Model     [8]byte
	HWType    uint16
	Firmware  [4]byte
	Notes     [48]byte
	_         [12]byte
	HWVersion uint16
	ModState  uint16
	Channels  uint16
}

// Counter is the SET/GET_ENCCOUNTER and SET/GET_POSCOUNTER payload.
type Counter struct {
	Channel uint16
	Value   int32
}

// MoveParams is the MOVE_RELATIVE and MOVE_ABSOLUTE payload. Distance is a
// relative offset or an absolute position in encoder counts.
type MoveParams struct {
	Channel  uint16
	Distance int32
}

// GenMoveParams is the SET/GET_GENMOVEPARAMS payload.
type GenMoveParams struct {
	Channel  uint16
	Backlash int32
}

// VelParams is the SET/GET_VELPARAMS payload.
type VelParams struct {
	Channel      uint16
	MinVelocity  int32
	Acceleration int32
	MaxVelocity  int32
}

// JogParams is the SET/GET_JOGPARAMS payload.
type JogParams struct {
	Channel      uint16
	Mode         uint16
	StepSize     int32
	MinVelocity  int32
	Acceleration int32
	MaxVelocity  int32
	StopMode     uint16
}

// HomeParams is the SET/GET_HOMEPARAMS payload.
type HomeParams struct {
	Channel     uint16
	Direction   uint16
	LimitSwitch uint16
	Velocity    int32
	Offset      int32
}

// LimitSwitchParams is the SET/GET_LIMSWITCHPARAMS payload.
type LimitSwitchParams struct {
	Channel  uint16
	CWHard   uint16
	CCWHard  uint16
	CWSoft   int32
	CCWSoft  int32
	SoftMode uint16
}

// PIDParams is the SET/GET_DCPIDPARAMS payload.
type PIDParams struct {
	Channel       uint16
	Proportional  int32
	Integral      int32
	Derivative    int32
	IntegralLimit int32
	FilterControl uint16
}

// EncodePayload packs a fixed-size payload struct little-endian.
func EncodePayload(v any) ([]byte, error) {
	size := binary.Size(v)
	if size < 0 {
		return nil, fmt.Errorf("%w: %T is not a fixed-size payload", ErrMalformedPayload, v)
	}
	buf := make([]byte, size)
	if _, err := binary.Encode(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return buf, nil
}

// DecodePayloadInto unpacks data into the struct pointed to by v. The data
// length must match the struct size exactly.
func DecodePayloadInto(data []byte, v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("%w: %T is not a fixed-size payload", ErrMalformedPayload, v)
	}
	if len(data) != size {
		return fmt.Errorf("%w: %T needs %d bytes, got %d", ErrMalformedPayload, v, size, len(data))
	}
	if _, err := binary.Decode(data, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// PackFirmware packs a major.interim.minor version as [minor, interim, major, 0].
func PackFirmware(major, interim, minor uint8) [4]byte {
	return [4]byte{minor, interim, major, 0}
}

// UnpackFirmware is the inverse of PackFirmware.
func UnpackFirmware(fw [4]byte) (major, interim, minor uint8) {
	return fw[2], fw[1], fw[0]
}

// FixedString returns the NUL-trimmed text of a fixed-size byte field.
func FixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
