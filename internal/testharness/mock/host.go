package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// Device is the byte-level surface a host talks to.
type Device interface {
	Write(frame []byte) (int, error)
	Read(n int) []byte
}

// PollInterval is how often WaitFor drains the device.
const PollInterval = time.Millisecond

// Host represents scripted host software driving a mock controller in
// tests. It encodes commands, writes them to the device and collects
// everything the device sends back.
type Host struct {
	// SentMessages tracks messages written to the device.
	SentMessages []wire.Message

	// ReceivedMessages tracks messages read from the device, in order.
	ReceivedMessages []wire.Message

	// Handlers are callbacks for host events.
	Handlers HostHandlers

	device  Device
	pending []byte
	mu      sync.RWMutex
}

// HostHandlers holds callbacks for host events.
type HostHandlers struct {
	// OnMessage is called for every message read from the device.
	OnMessage func(msg wire.Message)
}

// NewHost creates a host attached to device.
func NewHost(device Device) *Host {
	return &Host{device: device}
}

// Send encodes msg and writes it to the device. It returns the number of
// reply bytes the device queued, as Device.Write reports them.
func (h *Host) Send(msg wire.Message) (int, error) {
	if h.device == nil {
		return 0, ErrNotConnected
	}
	frame, err := wire.Encode(msg)
	if err != nil {
		return 0, err
	}
	n, err := h.device.Write(frame)
	if err != nil {
		return n, err
	}

	h.mu.Lock()
	h.SentMessages = append(h.SentMessages, msg)
	h.mu.Unlock()
	return n, nil
}

// SendHeader sends a header-only command.
func (h *Host) SendHeader(kind wire.Kind, param1, param2 uint16) (int, error) {
	return h.Send(wire.NewHeaderMessage(kind, param1, param2))
}

// SendData sends a command carrying payload v.
func (h *Host) SendData(kind wire.Kind, v any) (int, error) {
	msg, err := wire.NewDataMessage(kind, v)
	if err != nil {
		return 0, err
	}
	return h.Send(msg)
}

// Poll drains the device and returns the messages read by this call.
func (h *Host) Poll() ([]wire.Message, error) {
	if h.device == nil {
		return nil, ErrNotConnected
	}

	h.mu.Lock()
	h.pending = append(h.pending, h.device.Read(1<<16)...)
	var msgs []wire.Message
	for len(h.pending) >= wire.HeaderSize {
		hdr, err := wire.DecodeHeader(h.pending[:wire.HeaderSize])
		if err != nil {
			h.mu.Unlock()
			return msgs, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		n := wire.HeaderSize + hdr.DataLength()
		if len(h.pending) < n {
			break
		}
		msg, err := wire.Decode(h.pending[:n])
		if err != nil {
			h.mu.Unlock()
			return msgs, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		h.pending = h.pending[n:]
		msgs = append(msgs, msg)
	}
	h.ReceivedMessages = append(h.ReceivedMessages, msgs...)
	h.mu.Unlock()

	if h.Handlers.OnMessage != nil {
		for _, m := range msgs {
			h.Handlers.OnMessage(m)
		}
	}
	return msgs, nil
}

// WaitFor polls until a message of kind arrives or ctx is done, and removes
// it from ReceivedMessages. Messages received before the call count.
func (h *Host) WaitFor(ctx context.Context, kind wire.Kind) (wire.Message, error) {
	seen := 0
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if _, err := h.Poll(); err != nil {
			return wire.Message{}, err
		}

		h.mu.Lock()
		for ; seen < len(h.ReceivedMessages); seen++ {
			if m := h.ReceivedMessages[seen]; m.Kind == kind {
				h.ReceivedMessages = append(h.ReceivedMessages[:seen:seen], h.ReceivedMessages[seen+1:]...)
				h.mu.Unlock()
				return m, nil
			}
		}
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return wire.Message{}, fmt.Errorf("waiting for %s: %w", kind, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Request sends msg and waits for a reply of kind.
func (h *Host) Request(ctx context.Context, msg wire.Message, reply wire.Kind) (wire.Message, error) {
	if _, err := h.Send(msg); err != nil {
		return wire.Message{}, err
	}
	return h.WaitFor(ctx, reply)
}

// GetReceived returns received messages of kind, or all of them when kind
// is zero.
func (h *Host) GetReceived(kind wire.Kind) []wire.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var result []wire.Message
	for _, m := range h.ReceivedMessages {
		if kind == 0 || m.Kind == kind {
			result = append(result, m)
		}
	}
	return result
}

// ClearReceived clears all received messages.
func (h *Host) ClearReceived() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ReceivedMessages = h.ReceivedMessages[:0]
}

// GetSentMessages returns all sent messages.
func (h *Host) GetSentMessages() []wire.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]wire.Message, len(h.SentMessages))
	copy(result, h.SentMessages)
	return result
}
