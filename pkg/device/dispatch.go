package device

import (
	"fmt"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// handler runs one decoded command. A nil reply queues nothing.
type handler func(d *Device, msg wire.Message) (*wire.Message, error)

// buildDispatch maps every registered kind to its handler. Kinds the mock
// firmware does not implement map to unhandled.
func buildDispatch() map[wire.Kind]handler {
	kinds := wire.Kinds()
	table := make(map[wire.Kind]handler, len(kinds))
	for _, k := range kinds {
		table[k] = handlerFor(k)
	}
	return table
}

func handlerFor(k wire.Kind) handler {
	switch k {
	case wire.HWDisconnect:
		return handleDisconnect
	case wire.HWReqInfo:
		return handleReqInfo
	case wire.HWStartUpdateMsgs:
		return handleStartUpdates
	case wire.HWStopUpdateMsgs:
		return handleStopUpdates
	case wire.ModIdentify:
		return handleIdentify

	case wire.SetEncCounter, wire.SetPosCounter:
		return handleSetCounter
	case wire.ReqEncCounter:
		return counterRequest(wire.GetEncCounter)
	case wire.ReqPosCounter:
		return counterRequest(wire.GetPosCounter)

	case wire.SetVelParams:
		return setter(func(ch *Channel, p wire.VelParams) { ch.setVelParams(p) })
	case wire.ReqVelParams:
		return getter(wire.GetVelParams, (*Channel).velParams)
	case wire.SetJogParams:
		return setter(func(ch *Channel, p wire.JogParams) { ch.setJogParams(p) })
	case wire.ReqJogParams:
		return getter(wire.GetJogParams, (*Channel).jogParams)
	case wire.SetGenMoveParams:
		return setter(func(ch *Channel, p wire.GenMoveParams) { ch.setGenMoveParams(p) })
	case wire.ReqGenMoveParams:
		return getter(wire.GetGenMoveParams, (*Channel).genMoveParams)
	case wire.SetLimSwitchParams:
		return setter(func(ch *Channel, p wire.LimitSwitchParams) { ch.setLimitSwitchParams(p) })
	case wire.ReqLimSwitchParams:
		return getter(wire.GetLimSwitchParams, (*Channel).limitSwitchParams)
	case wire.SetDCPIDParams:
		return setter(func(ch *Channel, p wire.PIDParams) { ch.setPIDParams(p) })
	case wire.ReqDCPIDParams:
		return getter(wire.GetDCPIDParams, (*Channel).pidParams)
	case wire.SetHomeParams:
		return setter(func(ch *Channel, p wire.HomeParams) { ch.setHomeParams(p) })
	case wire.ReqHomeParams:
		return getter(wire.GetHomeParams, (*Channel).homeParams)

	case wire.MoveHome:
		return handleMoveHome
	case wire.MoveRelative:
		return handleMoveRelative
	case wire.MoveAbsolute:
		return handleMoveAbsolute
	case wire.MoveVelocity:
		return handleMoveVelocity
	case wire.MoveJog:
		return handleMoveJog
	case wire.MoveStop:
		return handleMoveStop

	case wire.SuspendEndOfMoveMsgs:
		return handleSuspendEndOfMove
	case wire.ResumeEndOfMoveMsgs:
		return handleResumeEndOfMove

	case wire.ReqDCStatusUpdate:
		return getter(wire.GetDCStatusUpdate, (*Channel).statusUpdate)
	case wire.AckDCStatusUpdate:
		return handleAckStatus

	default:
		return unhandled
	}
}

func unhandled(_ *Device, msg wire.Message) (*wire.Message, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnhandled, msg.Kind)
}

// lookup resolves the addressed channel. Unknown ids are ignored.
func (d *Device) lookup(msg wire.Message) *Channel {
	id := msg.Channel()
	ch := d.channels[id]
	if ch == nil {
		d.debugLog("device: ignoring command for unknown channel", "kind", msg.Kind.String(), "channel", id)
	}
	return ch
}

// direction reads a header-only direction parameter. Values other than 1
// or 2 are ignored like unknown channel ids.
func (d *Device) direction(msg wire.Message) (uint16, bool) {
	if msg.Param2 != 1 && msg.Param2 != 2 {
		d.debugLog("device: ignoring command with invalid direction", "kind", msg.Kind.String(), "direction", msg.Param2)
		return 0, false
	}
	return msg.Param2, true
}

func reply(kind wire.Kind, v any) (*wire.Message, error) {
	m, err := wire.NewDataMessage(kind, v)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// setter decodes a parameter payload and applies it to the addressed channel.
func setter[T any](apply func(*Channel, T)) handler {
	return func(d *Device, msg wire.Message) (*wire.Message, error) {
		var p T
		if err := wire.DecodePayloadInto(msg.Payload, &p); err != nil {
			return nil, err
		}
		if ch := d.lookup(msg); ch != nil {
			apply(ch, p)
		}
		return nil, nil
	}
}

// getter answers a request with the addressed channel's parameters.
func getter[T any](kind wire.Kind, get func(*Channel) T) handler {
	return func(d *Device, msg wire.Message) (*wire.Message, error) {
		ch := d.lookup(msg)
		if ch == nil {
			return nil, nil
		}
		return reply(kind, get(ch))
	}
}

func counterRequest(kind wire.Kind) handler {
	return getter(kind, func(ch *Channel) wire.Counter {
		return wire.Counter{Channel: ch.id, Value: ch.counter()}
	})
}

func handleDisconnect(d *Device, _ wire.Message) (*wire.Message, error) {
	d.debugLog("device: host disconnect notice")
	return nil, nil
}

func handleReqInfo(d *Device, _ wire.Message) (*wire.Message, error) {
	return reply(wire.HWGetInfo, d.info)
}

func handleStartUpdates(d *Device, _ wire.Message) (*wire.Message, error) {
	d.bcast.start()
	return nil, nil
}

func handleStopUpdates(d *Device, _ wire.Message) (*wire.Message, error) {
	return nil, d.bcast.stop()
}

func handleIdentify(d *Device, msg wire.Message) (*wire.Message, error) {
	d.debugLog("device: identify", "channel", msg.Param1)
	return nil, nil
}

func handleSetCounter(d *Device, msg wire.Message) (*wire.Message, error) {
	var p wire.Counter
	if err := wire.DecodePayloadInto(msg.Payload, &p); err != nil {
		return nil, err
	}
	if ch := d.lookup(msg); ch != nil {
		ch.setCounter(p.Value, msg.Kind.String())
	}
	return nil, nil
}

func handleMoveHome(d *Device, msg wire.Message) (*wire.Message, error) {
	if ch := d.lookup(msg); ch != nil {
		ch.home()
	}
	return nil, nil
}

func handleMoveRelative(d *Device, msg wire.Message) (*wire.Message, error) {
	var p wire.MoveParams
	if err := wire.DecodePayloadInto(msg.Payload, &p); err != nil {
		return nil, err
	}
	if ch := d.lookup(msg); ch != nil {
		ch.moveBy(int64(p.Distance), MovementMoving, "MOVE_RELATIVE")
	}
	return nil, nil
}

func handleMoveAbsolute(d *Device, msg wire.Message) (*wire.Message, error) {
	var p wire.MoveParams
	if err := wire.DecodePayloadInto(msg.Payload, &p); err != nil {
		return nil, err
	}
	if ch := d.lookup(msg); ch != nil {
		ch.moveTo(int64(p.Distance), MovementMoving, "MOVE_ABSOLUTE")
	}
	return nil, nil
}

func handleMoveVelocity(d *Device, msg wire.Message) (*wire.Message, error) {
	dir, ok := d.direction(msg)
	if !ok {
		return nil, nil
	}
	if ch := d.lookup(msg); ch != nil {
		target := velocityTargetForward
		if dir == 2 {
			target = velocityTargetReverse
		}
		ch.moveTo(target, MovementMoving, "MOVE_VELOCITY")
	}
	return nil, nil
}

func handleMoveJog(d *Device, msg wire.Message) (*wire.Message, error) {
	dir, ok := d.direction(msg)
	if !ok {
		return nil, nil
	}
	if ch := d.lookup(msg); ch != nil {
		ch.jog(dir)
	}
	return nil, nil
}

func handleMoveStop(d *Device, msg wire.Message) (*wire.Message, error) {
	if _, ok := d.direction(msg); !ok {
		return nil, nil
	}
	ch := d.lookup(msg)
	if ch == nil {
		return nil, nil
	}
	su, moving := ch.stop()
	if !moving || d.suspended.Load() {
		return nil, nil
	}
	return reply(wire.MoveStopped, su)
}

func handleSuspendEndOfMove(d *Device, _ wire.Message) (*wire.Message, error) {
	d.suspended.Store(true)
	return nil, nil
}

func handleResumeEndOfMove(d *Device, _ wire.Message) (*wire.Message, error) {
	d.suspended.Store(false)
	return nil, nil
}

func handleAckStatus(d *Device, _ wire.Message) (*wire.Message, error) {
	d.bcast.ack()
	return nil, nil
}
