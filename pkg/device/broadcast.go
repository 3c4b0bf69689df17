package device

import (
	"context"
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// broadcaster pushes GET_DCSTATUSUPDATE frames for every channel while
// status updates are enabled.
type broadcaster struct {
	dev      *Device
	interval time.Duration
	limit    int
	timeout  time.Duration

	mu    sync.Mutex
	count int
	run   *broadcastRun
}

// broadcastRun is one activation of the broadcast worker.
type broadcastRun struct {
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

var _ Worker = (*broadcastRun)(nil)

func (r *broadcastRun) WorkerName() string { return "status broadcast" }

func (r *broadcastRun) SignalStop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *broadcastRun) Done() <-chan struct{} { return r.doneCh }

func newBroadcaster(d *Device, cfg Config) *broadcaster {
	return &broadcaster{
		dev:      d,
		interval: cfg.BroadcastInterval,
		limit:    cfg.BroadcastLimit,
		timeout:  cfg.ShutdownTimeout,
	}
}

// start resets the message counter and launches the worker unless it is
// already running or the device is closing.
func (b *broadcaster) start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count = 0
	if b.run != nil || b.dev.closed.Load() {
		return
	}
	r := &broadcastRun{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	b.run = r
	go b.loop(r)
	b.dev.logState(log.StateEntityBroadcast, "stopped", "running", "HW_START_UPDATEMSGS")
}

// stop halts the worker and waits for it.
func (b *broadcaster) stop() error {
	r := b.detach()
	if r == nil {
		return nil
	}
	sc := NewShutdownCoordinator(b.timeout)
	sc.Add(r)
	err := sc.Shutdown(context.Background())
	b.dev.logState(log.StateEntityBroadcast, "running", "stopped", "HW_STOP_UPDATEMSGS")
	return err
}

// detach hands the running worker, if any, to the caller for shutdown.
func (b *broadcaster) detach() *broadcastRun {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.run
	b.run = nil
	return r
}

// ack resets the message counter.
func (b *broadcaster) ack() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
}

func (b *broadcaster) running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run != nil
}

func (b *broadcaster) loop(r *broadcastRun) {
	defer close(r.doneCh)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			for _, ch := range b.dev.channelList {
				if !b.claim() {
					break
				}
				ch.pushStatus(wire.GetDCStatusUpdate)
			}
		}
	}
}

// claim reports whether another status message fits under the limit and
// counts it.
func (b *broadcaster) claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count >= b.limit {
		return false
	}
	b.count++
	return true
}
