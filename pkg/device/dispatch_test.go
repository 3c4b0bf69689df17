package device

import (
	"testing"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchTableTotal(t *testing.T) {
	table := buildDispatch()
	for _, k := range wire.Kinds() {
		if table[k] == nil {
			t.Errorf("no handler for %s", k)
		}
	}
	assert.Len(t, table, len(wire.Kinds()))
}

func TestDeviceKindsUnhandled(t *testing.T) {
	d := newTestDevice(t, testConfig())
	for _, k := range wire.Kinds() {
		if k.Sender() != wire.SenderDevice {
			continue
		}
		var msg wire.Message
		if k.HasData() {
			msg = wire.Message{Kind: k, Param2: uint16(k.DataLength()), Payload: make([]byte, k.DataLength())}
		} else {
			msg = wire.NewHeaderMessage(k, 1, 0)
		}
		_, err := d.Write(wire.MustEncode(msg))
		assert.ErrorIs(t, err, ErrUnhandled, k.String())
	}
}

func TestReqInfo(t *testing.T) {
	d := newTestDevice(t, testConfig(testChannelConfig(0, 10, 0), testChannelConfig(0, 10, 0)))
	h := newTestHost(t, d)

	n := h.send(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0))
	assert.Equal(t, wire.HeaderSize+wire.HWInfoSize, n)
	h.drain()

	got := h.messages(wire.HWGetInfo)
	require.Len(t, got, 1)
	var info wire.HWInfo
	require.NoError(t, wire.DecodePayloadInto(got[0].Payload, &info))

	assert.Equal(t, uint32(83000001), info.Serial)
	assert.Equal(t, "TDC001", wire.FixedString(info.Model[:]))
	assert.Equal(t, uint16(16), info.HWType)
	assert.Equal(t, [4]byte{4, 1, 2, 0}, info.Firmware)
	assert.Equal(t, "mock stage", wire.FixedString(info.Notes[:]))
	assert.Equal(t, uint16(2), info.Channels)
}

func TestParameterRoundTrips(t *testing.T) {
	d := newTestDevice(t, testConfig())
	h := newTestHost(t, d)

	tests := []struct {
		name string
		set  wire.Kind
		req  wire.Kind
		get  wire.Kind
		in   any
		out  any
		want any
	}{
		{
			name: "velocity", set: wire.SetVelParams, req: wire.ReqVelParams, get: wire.GetVelParams,
			in:   wire.VelParams{Channel: 1, MinVelocity: 55, Acceleration: 700, MaxVelocity: 9000},
			out:  &wire.VelParams{},
			want: &wire.VelParams{Channel: 1, MinVelocity: 0, Acceleration: 700, MaxVelocity: 9000},
		},
		{
			name: "jog", set: wire.SetJogParams, req: wire.ReqJogParams, get: wire.GetJogParams,
			in:   wire.JogParams{Channel: 1, Mode: 1, StepSize: 250, MinVelocity: 3, Acceleration: 40, MaxVelocity: 5000, StopMode: 1},
			out:  &wire.JogParams{},
			want: &wire.JogParams{Channel: 1, Mode: 1, StepSize: 250, MinVelocity: 0, Acceleration: 40, MaxVelocity: 5000, StopMode: 1},
		},
		{
			name: "general move", set: wire.SetGenMoveParams, req: wire.ReqGenMoveParams, get: wire.GetGenMoveParams,
			in:   wire.GenMoveParams{Channel: 1, Backlash: 128},
			out:  &wire.GenMoveParams{},
			want: &wire.GenMoveParams{Channel: 1, Backlash: 128},
		},
		{
			name: "limit switch", set: wire.SetLimSwitchParams, req: wire.ReqLimSwitchParams, get: wire.GetLimSwitchParams,
			in:   wire.LimitSwitchParams{Channel: 1, CWHard: 2, CCWHard: 3, CWSoft: 1000, CCWSoft: -1000, SoftMode: 2},
			out:  &wire.LimitSwitchParams{},
			want: &wire.LimitSwitchParams{Channel: 1, CWHard: 2, CCWHard: 3, CWSoft: 1000, CCWSoft: -1000, SoftMode: 2},
		},
		{
			name: "pid", set: wire.SetDCPIDParams, req: wire.ReqDCPIDParams, get: wire.GetDCPIDParams,
			in:   wire.PIDParams{Channel: 1, Proportional: 435, Integral: 195, Derivative: 993, IntegralLimit: 195, FilterControl: 0x0F},
			out:  &wire.PIDParams{},
			want: &wire.PIDParams{Channel: 1, Proportional: 435, Integral: 195, Derivative: 993, IntegralLimit: 195, FilterControl: 0x0F},
		},
		{
			name: "home", set: wire.SetHomeParams, req: wire.ReqHomeParams, get: wire.GetHomeParams,
			in:   wire.HomeParams{Channel: 1, Direction: 1, LimitSwitch: 4, Velocity: 12000, Offset: 30},
			out:  &wire.HomeParams{},
			want: &wire.HomeParams{Channel: 1, Direction: 1, LimitSwitch: 4, Velocity: 12000, Offset: 30},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Zero(t, h.sendData(tt.set, tt.in))
			h.send(wire.NewHeaderMessage(tt.req, 1, 0))
			h.drain()

			got := h.messages(tt.get)
			require.NotEmpty(t, got)
			require.NoError(t, wire.DecodePayloadInto(got[len(got)-1].Payload, tt.out))
			assert.Equal(t, tt.want, tt.out)
		})
	}
}

func TestSetCounters(t *testing.T) {
	d := newTestDevice(t, testConfig())
	h := newTestHost(t, d)

	h.sendData(wire.SetEncCounter, wire.Counter{Channel: 1, Value: 640})
	h.send(wire.NewHeaderMessage(wire.ReqEncCounter, 1, 0))
	h.sendData(wire.SetPosCounter, wire.Counter{Channel: 1, Value: 2000})
	h.send(wire.NewHeaderMessage(wire.ReqPosCounter, 1, 0))
	h.drain()

	var c wire.Counter
	enc := h.messages(wire.GetEncCounter)
	require.Len(t, enc, 1)
	require.NoError(t, wire.DecodePayloadInto(enc[0].Payload, &c))
	assert.Equal(t, wire.Counter{Channel: 1, Value: 640}, c)

	pos := h.messages(wire.GetPosCounter)
	require.Len(t, pos, 1)
	require.NoError(t, wire.DecodePayloadInto(pos[0].Payload, &c))
	assert.Equal(t, wire.Counter{Channel: 1, Value: 1000}, c, "clamped to max")

	snap, _ := d.Snapshot(1)
	assert.True(t, snap.Status.Has(wire.StatusAtMax))
}

func TestReqStatusUpdate(t *testing.T) {
	d := newTestDevice(t, testConfig(testChannelConfig(0, 1000, 250)))
	h := newTestHost(t, d)

	h.send(wire.NewHeaderMessage(wire.ReqDCStatusUpdate, 1, 0))
	h.drain()

	got := h.messages(wire.GetDCStatusUpdate)
	require.Len(t, got, 1)
	su := statusOf(t, got[0])
	assert.Equal(t, uint16(1), su.Channel)
	assert.Equal(t, int32(250), su.Position)
	assert.Zero(t, su.Velocity)
	assert.Equal(t, wire.StatusDefault, su.Status)
}

func TestJogThroughDevice(t *testing.T) {
	cfg := testChannelConfig(0, 1000, 500)
	cfg.JogStep = 100
	d := newTestDevice(t, testConfig(cfg))
	h := newTestHost(t, d)

	h.send(wire.NewHeaderMessage(wire.MoveJog, 1, 2))
	snap := h.waitIdle(1)
	assert.Equal(t, int32(600), snap.Encoder)

	h.send(wire.NewHeaderMessage(wire.MoveJog, 1, 1))
	snap = h.waitIdle(1)
	assert.Equal(t, int32(500), snap.Encoder)
	assert.Len(t, h.messages(wire.MoveCompleted), 2)
}

func TestSuspendEndOfMoveMessages(t *testing.T) {
	d := newTestDevice(t, testConfig())
	h := newTestHost(t, d)

	h.send(wire.NewHeaderMessage(wire.SuspendEndOfMoveMsgs, 0, 0))
	assert.True(t, d.EndOfMoveSuspended())

	h.sendData(wire.MoveAbsolute, wire.MoveParams{Channel: 1, Distance: 700})
	h.waitIdle(1)
	assert.Zero(t, h.send(wire.NewHeaderMessage(wire.MoveStop, 1, 1)))
	h.drain()
	assert.Empty(t, h.messages(wire.MoveCompleted))
	assert.Empty(t, h.messages(wire.MoveStopped))

	h.send(wire.NewHeaderMessage(wire.ResumeEndOfMoveMsgs, 0, 0))
	assert.False(t, d.EndOfMoveSuspended())
	h.sendData(wire.MoveAbsolute, wire.MoveParams{Channel: 1, Distance: 100})
	h.waitIdle(1)
	assert.Len(t, h.messages(wire.MoveCompleted), 1)
}

func TestStopWhileIdleSendsNothing(t *testing.T) {
	d := newTestDevice(t, testConfig())
	h := newTestHost(t, d)
	before := d.Snapshots()

	assert.Zero(t, h.send(wire.NewHeaderMessage(wire.MoveStop, 1, 2)))
	assert.Equal(t, before, d.Snapshots())

	h.sendData(wire.MoveAbsolute, wire.MoveParams{Channel: 1, Distance: 300})
	h.waitIdle(1)
	assert.Zero(t, h.send(wire.NewHeaderMessage(wire.MoveStop, 1, 1)), "converged channel")
	h.drain()
	assert.Empty(t, h.messages(wire.MoveStopped))
}

func TestStopWhileMovingReplies(t *testing.T) {
	d := newTestDevice(t, testConfig())
	h := newTestHost(t, d)

	h.send(wire.NewHeaderMessage(wire.MoveVelocity, 1, 1))
	n := h.send(wire.NewHeaderMessage(wire.MoveStop, 1, 2))
	assert.Equal(t, wire.HeaderSize+wire.StatusUpdateSize, n)
	h.drain()
	require.Len(t, h.messages(wire.MoveStopped), 1)
	assert.Equal(t, MovementNo, d.Channel(1).Snapshot().Movement)
}

func TestHeaderOnlyNoOps(t *testing.T) {
	d := newTestDevice(t, testConfig())
	for _, k := range []wire.Kind{wire.HWDisconnect, wire.ModIdentify} {
		n, err := d.Write(wire.MustEncode(wire.NewHeaderMessage(k, 1, 0)))
		require.NoError(t, err, k.String())
		assert.Zero(t, n)
	}
	assert.Zero(t, d.Buffered())
}
