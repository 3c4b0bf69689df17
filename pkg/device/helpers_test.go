package device

import (
	"sync"
	"testing"
	"time"

	"github.com/apt-mock/apt-mock-go/internal/testharness/mock"
	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
	"github.com/stretchr/testify/require"
)

// testChannelConfig uses unit scales so velocities read directly as
// counts per second.
func testChannelConfig(lo, hi, start int32) ChannelConfig {
	return ChannelConfig{
		PositionScale:     1,
		VelocityScale:     1,
		AccelerationScale: 1,
		MaxVelocity:       30000,
		MaxAcceleration:   1000,
		Encoder:           start,
		Min:               &lo,
		Max:               &hi,
	}
}

func testConfig(channels ...ChannelConfig) Config {
	if len(channels) == 0 {
		channels = []ChannelConfig{testChannelConfig(0, 1000, 0)}
	}
	return Config{
		Identity: Identity{
			Serial:   83000001,
			Model:    "TDC001",
			HWType:   16,
			Firmware: "2.1.4",
			Notes:    "mock stage",
		},
		Channels:          channels,
		TickInterval:      2 * time.Millisecond,
		BroadcastInterval: 2 * time.Millisecond,
		BroadcastLimit:    50,
		ShutdownTimeout:   time.Second,
	}
}

func newTestDevice(t *testing.T, cfg Config) *Device {
	t.Helper()
	d, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// testHost wraps the scripted host with require-style helpers.
type testHost struct {
	t    *testing.T
	d    *Device
	host *mock.Host
}

func newTestHost(t *testing.T, d *Device) *testHost {
	return &testHost{t: t, d: d, host: mock.NewHost(d)}
}

// send writes m and returns the number of reply bytes queued.
func (h *testHost) send(m wire.Message) int {
	h.t.Helper()
	n, err := h.host.Send(m)
	require.NoError(h.t, err)
	return n
}

func (h *testHost) sendData(kind wire.Kind, v any) int {
	h.t.Helper()
	n, err := h.host.SendData(kind, v)
	require.NoError(h.t, err)
	return n
}

func (h *testHost) drain() {
	if _, err := h.host.Poll(); err != nil {
		h.t.Errorf("bad frame in output: %v", err)
	}
}

func (h *testHost) messages(kind wire.Kind) []wire.Message {
	return h.host.GetReceived(kind)
}

func (h *testHost) waitIdle(id uint16) Snapshot {
	h.t.Helper()
	var snap Snapshot
	require.Eventually(h.t, func() bool {
		h.drain()
		snap, _ = h.d.Snapshot(id)
		return snap.Idle()
	}, 2*time.Second, time.Millisecond)
	h.drain()
	return snap
}

func (h *testHost) waitCount(kind wire.Kind, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.drain()
		return len(h.messages(kind)) >= n
	}, 2*time.Second, time.Millisecond)
}

func splitFrames(t *testing.T, data []byte) []wire.Message {
	var out []wire.Message
	for len(data) > 0 {
		hdr, err := wire.DecodeHeader(data[:wire.HeaderSize])
		if err != nil {
			t.Errorf("bad frame in output: %v", err)
			return out
		}
		n := wire.HeaderSize + hdr.DataLength()
		msg, err := wire.Decode(data[:n])
		if err != nil {
			t.Errorf("bad frame in output: %v", err)
			return out
		}
		out = append(out, msg)
		data = data[n:]
	}
	return out
}

func statusOf(t *testing.T, m wire.Message) wire.StatusUpdate {
	t.Helper()
	var su wire.StatusUpdate
	require.NoError(t, wire.DecodePayloadInto(m.Payload, &su))
	return su
}

// recordingLogger keeps every protocol event.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

// fakeSink collects what a channel emits when driven without a device.
type fakeSink struct {
	mu          sync.Mutex
	msgs        []wire.Message
	suspended   bool
	transitions []MovementType
}

func (s *fakeSink) push(msg wire.Message, _ bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return msg.Len()
}

func (s *fakeSink) endOfMoveSuspended() bool {
	return s.suspended
}

func (s *fakeSink) logTransition(_ uint16, _, to MovementType, _ string) {
	s.transitions = append(s.transitions, to)
}

func (s *fakeSink) kinds() []wire.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Kind, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Kind
	}
	return out
}
