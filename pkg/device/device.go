package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// Device is a mock APT controller.
//
// Write and Read may be called from different goroutines.
type Device struct {
	config   Config
	identity Identity
	info     wire.HWInfo

	channels    map[uint16]*Channel
	channelList []*Channel // ascending id order

	dispatch map[wire.Kind]handler
	bcast    *broadcaster

	bufMu sync.Mutex
	buf   []byte

	suspended    atomic.Bool
	disconnected atomic.Bool
	closed       atomic.Bool

	closeOnce sync.Once
	closeErr  error

	connMu sync.RWMutex
	connID string

	logger   *slog.Logger
	protoLog log.Logger
}

var _ sink = (*Device)(nil)

// New validates cfg, builds the device and starts one motion worker per
// channel. Channel ids are assigned 1..len(cfg.Channels).
func New(cfg Config) (*Device, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fw, err := ParseFirmware(cfg.Identity.Firmware)
	if err != nil {
		return nil, err
	}

	d := &Device{
		config:   cfg,
		identity: cfg.Identity,
		channels: make(map[uint16]*Channel, len(cfg.Channels)),
		logger:   cfg.Logger,
		protoLog: cfg.ProtocolLogger,
	}
	if d.identity.Serial == 0 {
		d.identity.Serial = randomSerial()
	}

	d.info = wire.HWInfo{
		Serial:    d.identity.Serial,
		HWType:    uint16(d.identity.HWType),
		Firmware:  fw,
		HWVersion: uint16(d.identity.HWVersion),
		ModState:  uint16(d.identity.ModState),
		Channels:  uint16(len(cfg.Channels)),
	}
	copy(d.info.Model[:], d.identity.Model)
	copy(d.info.Notes[:], d.identity.Notes)

	for i, cc := range cfg.Channels {
		id := uint16(i + 1)
		ch := newChannel(id, cc, cfg.TickInterval, d)
		d.channels[id] = ch
		d.channelList = append(d.channelList, ch)
	}
	d.dispatch = buildDispatch()
	d.bcast = newBroadcaster(d, cfg)

	for _, ch := range d.channelList {
		ch.start()
	}

	d.debugLog("device: started",
		"serial", d.identity.Serial,
		"model", d.identity.Model,
		"channels", len(d.channelList))
	d.logState(log.StateEntityDevice, "", "running", "")
	return d, nil
}

// Write decodes exactly one frame and runs its handler. It returns the
// number of reply bytes queued for Read.
func (d *Device) Write(frame []byte) (int, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}

	msg, err := wire.Decode(frame)
	if err != nil {
		d.logError(nil, err, "decode")
		return 0, err
	}
	d.logMessage(log.DirectionIn, msg, false)

	reply, err := d.dispatch[msg.Kind](d, msg)
	if err != nil {
		d.logError(&msg.Kind, err, "dispatch")
		return 0, err
	}
	if reply == nil {
		return 0, nil
	}
	return d.push(*reply, false), nil
}

// Read pops up to n bytes from the outgoing buffer. It returns nil once the
// device is disconnected.
func (d *Device) Read(n int) []byte {
	if n <= 0 || d.disconnected.Load() {
		return nil
	}

	d.bufMu.Lock()
	defer d.bufMu.Unlock()

	n = min(n, len(d.buf))
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, d.buf)
	d.buf = append(d.buf[:0], d.buf[n:]...)
	return out
}

// Buffered returns the number of bytes waiting to be read.
func (d *Device) Buffered() int {
	d.bufMu.Lock()
	defer d.bufMu.Unlock()
	return len(d.buf)
}

// Close disconnects the device and stops every worker, waiting for all of
// them against one deadline of Config.ShutdownTimeout. Later calls return
// the first result.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.disconnected.Store(true)
		d.closed.Store(true)

		sc := NewShutdownCoordinator(d.config.ShutdownTimeout)
		if r := d.bcast.detach(); r != nil {
			sc.Add(r)
		}
		for _, ch := range d.channelList {
			sc.Add(ch)
		}

		start := time.Now()
		d.closeErr = sc.Shutdown(context.Background())
		if d.closeErr != nil {
			d.logError(nil, d.closeErr, "close")
		}
		d.debugLog("device: closed", "elapsed", time.Since(start), "error", d.closeErr)
		d.logState(log.StateEntityDevice, "running", "closed", "")
	})
	return d.closeErr
}

// Identity returns the device identity with the resolved serial number.
func (d *Device) Identity() Identity {
	return d.identity
}

// Info returns the HW_GET_INFO payload.
func (d *Device) Info() wire.HWInfo {
	return d.info
}

// Serial returns the serial number.
func (d *Device) Serial() uint32 {
	return d.identity.Serial
}

// Channel returns the channel with the given id, or nil.
func (d *Device) Channel(id uint16) *Channel {
	return d.channels[id]
}

// Channels returns all channels in ascending id order.
func (d *Device) Channels() []*Channel {
	return append([]*Channel(nil), d.channelList...)
}

// Snapshot returns the state of one channel.
func (d *Device) Snapshot(id uint16) (Snapshot, bool) {
	ch := d.channels[id]
	if ch == nil {
		return Snapshot{}, false
	}
	return ch.Snapshot(), true
}

// Snapshots returns the state of every channel in ascending id order.
func (d *Device) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(d.channelList))
	for _, ch := range d.channelList {
		out = append(out, ch.Snapshot())
	}
	return out
}

// EndOfMoveSuspended reports whether MOVE_COMPLETED and MOVE_STOPPED replies
// are suspended.
func (d *Device) EndOfMoveSuspended() bool {
	return d.suspended.Load()
}

// Broadcasting reports whether the status-broadcast worker is running.
func (d *Device) Broadcasting() bool {
	return d.bcast.running()
}

// SetConnectionID tags subsequent protocol log events with a host connection.
func (d *Device) SetConnectionID(id string) {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	d.connID = id
}

func (d *Device) connectionID() string {
	d.connMu.RLock()
	defer d.connMu.RUnlock()
	return d.connID
}

// push encodes msg and appends it to the outgoing buffer.
func (d *Device) push(msg wire.Message, unsolicited bool) int {
	data, err := wire.Encode(msg)
	if err != nil {
		d.logError(&msg.Kind, err, "encode")
		return 0
	}
	if d.disconnected.Load() {
		return 0
	}

	d.bufMu.Lock()
	d.buf = append(d.buf, data...)
	d.bufMu.Unlock()

	d.logMessage(log.DirectionOut, msg, unsolicited)
	return len(data)
}

func (d *Device) endOfMoveSuspended() bool {
	return d.suspended.Load()
}

func (d *Device) logTransition(channel uint16, from, to MovementType, reason string) {
	d.debugLog("channel: movement",
		"channel", channel,
		"from", from.String(),
		"to", to.String(),
		"reason", reason)
	if d.protoLog == nil {
		return
	}
	d.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connectionID(),
		Layer:        log.LayerChannel,
		Category:     log.CategoryState,
		Serial:       d.identity.Serial,
		Channel:      channel,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (d *Device) logState(entity log.StateEntity, from, to, reason string) {
	if d.protoLog == nil {
		return
	}
	d.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connectionID(),
		Layer:        log.LayerDevice,
		Category:     log.CategoryState,
		Serial:       d.identity.Serial,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

func (d *Device) logMessage(dir log.Direction, msg wire.Message, unsolicited bool) {
	if d.protoLog == nil {
		return
	}
	ev := log.NewMessageEvent(msg)
	ev.Unsolicited = unsolicited
	d.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connectionID(),
		Direction:    dir,
		Layer:        log.LayerDevice,
		Category:     log.CategoryMessage,
		Serial:       d.identity.Serial,
		Channel:      msg.Channel(),
		Message:      ev,
	})
}

func (d *Device) logError(kind *wire.Kind, err error, op string) {
	d.debugLog("device: error", "op", op, "error", err)
	if d.protoLog == nil {
		return
	}
	d.protoLog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connectionID(),
		Layer:        log.LayerDevice,
		Category:     log.CategoryError,
		Serial:       d.identity.Serial,
		Error: &log.ErrorEventData{
			Layer:   log.LayerDevice,
			Message: err.Error(),
			Kind:    kind,
			Context: op,
		},
	})
}

// debugLog logs a debug message if a logger is configured.
func (d *Device) debugLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("%s #%d (%d channels)", d.identity.Model, d.identity.Serial, len(d.channelList))
}
