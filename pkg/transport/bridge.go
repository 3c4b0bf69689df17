package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/log"
	"golang.org/x/time/rate"
)

// DefaultPollInterval is how often a bridge drains device output.
const DefaultPollInterval = 2 * time.Millisecond

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// ConnID tags frame log events and, when the device supports it, the
	// device's own protocol events.
	ConnID string

	// PollInterval is the device output polling period (default 2ms).
	PollInterval time.Duration

	// Baud, when positive, limits both directions to the byte rate of a
	// serial link with 8N1 framing (baud / 10 bytes per second).
	Baud int

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// ProtocolLogger receives one FrameEvent per frame (optional).
	ProtocolLogger log.Logger

	// OnError is called for frames the device rejected. The bridge keeps
	// running after them.
	OnError func(err error)
}

// Bridge pumps frames between a byte stream and a Device.
//
// Host frames are read whole and handed to Device.Write one at a time.
// Device output is polled and written back one frame per Write call.
type Bridge struct {
	dev    Device
	rw     io.ReadWriteCloser
	config BridgeConfig
	framer *Framer

	inbound  *rate.Limiter
	outbound *rate.Limiter
}

// NewBridge creates a bridge. Run starts it.
func NewBridge(dev Device, rw io.ReadWriteCloser, config BridgeConfig) *Bridge {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	framer := NewFramer(rw)
	framer.SetLogger(config.ProtocolLogger, config.ConnID)
	return &Bridge{
		dev:      dev,
		rw:       rw,
		config:   config,
		framer:   framer,
		inbound:  linkLimiter(config.Baud),
		outbound: linkLimiter(config.Baud),
	}
}

func linkLimiter(baud int) *rate.Limiter {
	if baud <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(baud)/10), MaxFrameSize)
}

func waitLink(ctx context.Context, lim *rate.Limiter, n int) error {
	if lim == nil {
		return nil
	}
	return lim.WaitN(ctx, n)
}

// Run pumps until ctx is cancelled, the host closes the stream or the
// stream loses frame sync. It always closes the stream before returning.
// A clean end of stream or cancellation returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if t, ok := b.dev.(ConnectionTagger); ok && b.config.ConnID != "" {
		t.SetConnectionID(b.config.ConnID)
		defer t.SetConnectionID("")
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- b.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		errCh <- b.writeLoop(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	b.rw.Close()
	wg.Wait()

	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// readLoop forwards host frames to the device.
func (b *Bridge) readLoop(ctx context.Context) error {
	for {
		frame, err := b.framer.ReadFrame()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
		if err := waitLink(ctx, b.inbound, len(frame)); err != nil {
			return nil
		}
		if _, err := b.dev.Write(frame); err != nil {
			if errors.Is(err, device.ErrClosed) {
				return err
			}
			b.debugLog("frame rejected", "error", err)
			if b.config.OnError != nil {
				b.config.OnError(err)
			}
		}
	}
}

// writeLoop drains device output to the host.
func (b *Bridge) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	var split splitter
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			data := b.dev.Read(MaxFrameSize)
			if len(data) == 0 {
				break
			}
			frames, err := split.feed(data)
			if err != nil {
				return fmt.Errorf("device output: %w", err)
			}
			for _, frame := range frames {
				if err := waitLink(ctx, b.outbound, len(frame)); err != nil {
					return nil
				}
				if err := b.framer.WriteFrame(frame); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		}
	}
}

func (b *Bridge) debugLog(msg string, args ...any) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, append([]any{"conn", b.config.ConnID}, args...)...)
	}
}
