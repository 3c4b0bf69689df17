package wire

import (
	"fmt"
	"slices"
)

// Kind is an APT message id.
type Kind uint16

// Message kinds known to the mock.
const (
	HWDisconnect      Kind = 0x0002
	HWReqInfo         Kind = 0x0005
	HWGetInfo         Kind = 0x0006
	HWStartUpdateMsgs Kind = 0x0011
	HWStopUpdateMsgs  Kind = 0x0012
	HWResponse        Kind = 0x0080
	HWRichResponse    Kind = 0x0081

	ModSetChanEnableState Kind = 0x0210
	ModReqChanEnableState Kind = 0x0211
	ModGetChanEnableState Kind = 0x0212
	ModIdentify           Kind = 0x0223

	SetEncCounter Kind = 0x0409
	ReqEncCounter Kind = 0x040A
	GetEncCounter Kind = 0x040B

	SetPosCounter Kind = 0x0410
	ReqPosCounter Kind = 0x0411
	GetPosCounter Kind = 0x0412

	SetVelParams Kind = 0x0413
	ReqVelParams Kind = 0x0414
	GetVelParams Kind = 0x0415

	SetJogParams Kind = 0x0416
	ReqJogParams Kind = 0x0417
	GetJogParams Kind = 0x0418

	SetLimSwitchParams Kind = 0x0423
	ReqLimSwitchParams Kind = 0x0424
	GetLimSwitchParams Kind = 0x0425

	SetGenMoveParams Kind = 0x043A
	ReqGenMoveParams Kind = 0x043B
	GetGenMoveParams Kind = 0x043C

	SetHomeParams Kind = 0x0440
	ReqHomeParams Kind = 0x0441
	GetHomeParams Kind = 0x0442

	MoveHome     Kind = 0x0443
	MoveHomed    Kind = 0x0444
	MoveRelative Kind = 0x0448
	MoveAbsolute Kind = 0x0453
	MoveVelocity Kind = 0x0457

	MoveCompleted Kind = 0x0464
	MoveStop      Kind = 0x0465
	MoveStopped   Kind = 0x0466
	MoveJog       Kind = 0x046A

	SuspendEndOfMoveMsgs Kind = 0x046B
	ResumeEndOfMoveMsgs  Kind = 0x046C

	ReqStatusUpdate Kind = 0x0480
	GetStatusUpdate Kind = 0x0481

	ReqDCStatusUpdate Kind = 0x0490
	GetDCStatusUpdate Kind = 0x0491
	AckDCStatusUpdate Kind = 0x0492

	SetDCPIDParams Kind = 0x04A0
	ReqDCPIDParams Kind = 0x04A1
	GetDCPIDParams Kind = 0x04A2

	SetPZStageParamDefaults Kind = 0x0686
)

// Sender identifies which side of the link originates a kind.
type Sender uint8

const (
	// SenderHost marks commands and requests sent by the host.
	SenderHost Sender = iota

	// SenderDevice marks replies and unsolicited events sent by the controller.
	SenderDevice
)

// String returns the sender name.
func (s Sender) String() string {
	switch s {
	case SenderHost:
		return "HOST"
	case SenderDevice:
		return "DEVICE"
	default:
		return fmt.Sprintf("Sender(%d)", s)
	}
}

type kindInfo struct {
	name   string
	length int
	sender Sender
}

var registry = map[Kind]kindInfo{
	HWDisconnect:      {"HW_DISCONNECT", 0, SenderHost},
	HWReqInfo:         {"HW_REQ_INFO", 0, SenderHost},
	HWGetInfo:         {"HW_GET_INFO", HWInfoSize, SenderDevice},
	HWStartUpdateMsgs: {"HW_START_UPDATEMSGS", 0, SenderHost},
	HWStopUpdateMsgs:  {"HW_STOP_UPDATEMSGS", 0, SenderHost},
	HWResponse:        {"HW_RESPONSE", 0, SenderDevice},
	HWRichResponse:    {"HW_RICHRESPONSE", 68, SenderDevice},

	ModSetChanEnableState: {"MOD_SET_CHANENABLESTATE", 0, SenderHost},
	ModReqChanEnableState: {"MOD_REQ_CHANENABLESTATE", 0, SenderHost},
	ModGetChanEnableState: {"MOD_GET_CHANENABLESTATE", 0, SenderDevice},
	ModIdentify:           {"MOD_IDENTIFY", 0, SenderHost},

	SetEncCounter: {"MOT_SET_ENCCOUNTER", CounterSize, SenderHost},
	ReqEncCounter: {"MOT_REQ_ENCCOUNTER", 0, SenderHost},
	GetEncCounter: {"MOT_GET_ENCCOUNTER", CounterSize, SenderDevice},

	SetPosCounter: {"MOT_SET_POSCOUNTER", CounterSize, SenderHost},
	ReqPosCounter: {"MOT_REQ_POSCOUNTER", 0, SenderHost},
	GetPosCounter: {"MOT_GET_POSCOUNTER", CounterSize, SenderDevice},

	SetVelParams: {"MOT_SET_VELPARAMS", VelParamsSize, SenderHost},
	ReqVelParams: {"MOT_REQ_VELPARAMS", 0, SenderHost},
	GetVelParams: {"MOT_GET_VELPARAMS", VelParamsSize, SenderDevice},

	SetJogParams: {"MOT_SET_JOGPARAMS", JogParamsSize, SenderHost},
	ReqJogParams: {"MOT_REQ_JOGPARAMS", 0, SenderHost},
	GetJogParams: {"MOT_GET_JOGPARAMS", JogParamsSize, SenderDevice},

	SetLimSwitchParams: {"MOT_SET_LIMSWITCHPARAMS", LimitSwitchParamsSize, SenderHost},
	ReqLimSwitchParams: {"MOT_REQ_LIMSWITCHPARAMS", 0, SenderHost},
	GetLimSwitchParams: {"MOT_GET_LIMSWITCHPARAMS", LimitSwitchParamsSize, SenderDevice},

	SetGenMoveParams: {"MOT_SET_GENMOVEPARAMS", GenMoveParamsSize, SenderHost},
	ReqGenMoveParams: {"MOT_REQ_GENMOVEPARAMS", 0, SenderHost},
	GetGenMoveParams: {"MOT_GET_GENMOVEPARAMS", GenMoveParamsSize, SenderDevice},

	SetHomeParams: {"MOT_SET_HOMEPARAMS", HomeParamsSize, SenderHost},
	ReqHomeParams: {"MOT_REQ_HOMEPARAMS", 0, SenderHost},
	GetHomeParams: {"MOT_GET_HOMEPARAMS", HomeParamsSize, SenderDevice},

	MoveHome:     {"MOT_MOVE_HOME", 0, SenderHost},
	MoveHomed:    {"MOT_MOVE_HOMED", 0, SenderDevice},
	MoveRelative: {"MOT_MOVE_RELATIVE", MoveParamsSize, SenderHost},
	MoveAbsolute: {"MOT_MOVE_ABSOLUTE", MoveParamsSize, SenderHost},
	MoveVelocity: {"MOT_MOVE_VELOCITY", 0, SenderHost},

	MoveCompleted: {"MOT_MOVE_COMPLETED", StatusUpdateSize, SenderDevice},
	MoveStop:      {"MOT_MOVE_STOP", 0, SenderHost},
	MoveStopped:   {"MOT_MOVE_STOPPED", StatusUpdateSize, SenderDevice},
	MoveJog:       {"MOT_MOVE_JOG", 0, SenderHost},

	SuspendEndOfMoveMsgs: {"MOT_SUSPEND_ENDOFMOVEMSGS", 0, SenderHost},
	ResumeEndOfMoveMsgs:  {"MOT_RESUME_ENDOFMOVEMSGS", 0, SenderHost},

	ReqStatusUpdate: {"MOT_REQ_STATUSUPDATE", 0, SenderHost},
	GetStatusUpdate: {"MOT_GET_STATUSUPDATE", StatusUpdateSize, SenderDevice},

	ReqDCStatusUpdate: {"MOT_REQ_DCSTATUSUPDATE", 0, SenderHost},
	GetDCStatusUpdate: {"MOT_GET_DCSTATUSUPDATE", StatusUpdateSize, SenderDevice},
	AckDCStatusUpdate: {"MOT_ACK_DCSTATUSUPDATE", 0, SenderHost},

	SetDCPIDParams: {"MOT_SET_DCPIDPARAMS", PIDParamsSize, SenderHost},
	ReqDCPIDParams: {"MOT_REQ_DCPIDPARAMS", 0, SenderHost},
	GetDCPIDParams: {"MOT_GET_DCPIDPARAMS", PIDParamsSize, SenderDevice},

	SetPZStageParamDefaults: {"PZ_SET_PZSTAGEPARAMDEFAULTS", 0, SenderHost},
}

// Kinds returns every registered kind in ascending id order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// KindByName looks up a kind by its APT mnemonic, with or without the
// MGMSG_ prefix.
func KindByName(name string) (Kind, bool) {
	if len(name) > 6 && name[:6] == "MGMSG_" {
		name = name[6:]
	}
	for k, info := range registry {
		if info.name == name {
			return k, true
		}
	}
	return 0, false
}

// IsKnown reports whether the kind is in the registry.
func (k Kind) IsKnown() bool {
	_, ok := registry[k]
	return ok
}

// HasData reports whether frames of this kind carry a payload.
func (k Kind) HasData() bool {
	return registry[k].length > 0
}

// DataLength returns the declared payload length, 0 for header-only kinds.
func (k Kind) DataLength() int {
	return registry[k].length
}

// Sender returns which side originates the kind.
func (k Kind) Sender() Sender {
	return registry[k].sender
}

// String returns the APT mnemonic, or the hex id for unknown kinds.
func (k Kind) String() string {
	if info, ok := registry[k]; ok {
		return info.name
	}
	return fmt.Sprintf("0x%04X", uint16(k))
}
