package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bridgeDevice(t *testing.T) *device.Device {
	t.Helper()
	cfg := device.DefaultConfig()
	cfg.TickInterval = 2 * time.Millisecond
	d, err := device.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// runBridge starts a bridge over one end of a pipe and returns a framer on
// the host end plus a channel delivering Run's result.
func runBridge(t *testing.T, dev Device, cfg BridgeConfig) (*Framer, context.CancelFunc, <-chan error) {
	t.Helper()
	mockEnd, hostEnd := net.Pipe()
	t.Cleanup(func() { hostEnd.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	b := NewBridge(dev, mockEnd, cfg)
	go func() { done <- b.Run(ctx) }()
	return NewFramer(hostEnd), cancel, done
}

func TestBridgeRoundTrip(t *testing.T) {
	host, _, _ := runBridge(t, bridgeDevice(t), BridgeConfig{})

	require.NoError(t, host.WriteMessage(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0)))
	msg, err := host.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.HWGetInfo, msg.Kind)
}

func TestBridgeTagsConnection(t *testing.T) {
	d := bridgeDevice(t)
	events := &capturingLogger{}
	host, cancel, done := runBridge(t, d, BridgeConfig{ConnID: "conn-7", ProtocolLogger: events})

	require.NoError(t, host.WriteMessage(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0)))
	_, err := host.ReadMessage()
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)

	var in, out int
	for _, e := range events.Events() {
		assert.Equal(t, "conn-7", e.ConnectionID)
		if e.Frame == nil {
			continue
		}
		if e.Direction == log.DirectionIn {
			in++
		} else {
			out++
		}
	}
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, out)
}

func TestBridgeHostCloseEndsRun(t *testing.T) {
	mockEnd, hostEnd := net.Pipe()
	b := NewBridge(bridgeDevice(t), mockEnd, BridgeConfig{})

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.NoError(t, hostEnd.Close())
	select {
	case err := <-done:
		assert.NoError(t, err, "end of stream is a clean exit")
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop after the host closed")
	}
}

func TestBridgeReportsRejectedFrames(t *testing.T) {
	errs := make(chan error, 1)
	host, _, _ := runBridge(t, bridgeDevice(t), BridgeConfig{
		OnError: func(err error) { errs <- err },
	})

	// Device-to-host kinds are not handled when sent to the device.
	require.NoError(t, host.WriteMessage(wire.NewHeaderMessage(wire.MoveHomed, 1, 0)))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, device.ErrUnhandled)
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}

func TestBridgeClosedDevice(t *testing.T) {
	d := bridgeDevice(t)
	host, _, done := runBridge(t, d, BridgeConfig{})
	require.NoError(t, d.Close())

	require.NoError(t, host.WriteMessage(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0)))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, device.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("bridge kept running on a closed device")
	}
}

func TestLinkLimiter(t *testing.T) {
	assert.Nil(t, linkLimiter(0))

	lim := linkLimiter(115200)
	require.NotNil(t, lim)
	assert.InDelta(t, 11520, float64(lim.Limit()), 0.001)
	assert.Equal(t, MaxFrameSize, lim.Burst())
}

func TestBridgeBaudThrottle(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	// 1200 baud is 120 bytes/s. Four HW_GET_INFO replies (360 bytes) exceed
	// the burst and need most of a second.
	host, _, _ := runBridge(t, bridgeDevice(t), BridgeConfig{Baud: 1200})

	start := time.Now()
	for range 4 {
		require.NoError(t, host.WriteMessage(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0)))
	}
	for range 4 {
		msg, err := host.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, wire.HWGetInfo, msg.Kind)
	}
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}
