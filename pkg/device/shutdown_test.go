package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeWorker struct {
	name     string
	stuck    bool
	done     chan struct{}
	stopOnce sync.Once
	stops    int
	mu       sync.Mutex
}

func newFakeWorker(name string, stuck bool) *fakeWorker {
	return &fakeWorker{name: name, stuck: stuck, done: make(chan struct{})}
}

func (w *fakeWorker) WorkerName() string { return w.name }

func (w *fakeWorker) SignalStop() {
	w.mu.Lock()
	w.stops++
	w.mu.Unlock()
	if w.stuck {
		return
	}
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *fakeWorker) Done() <-chan struct{} { return w.done }

func TestShutdownAllStop(t *testing.T) {
	sc := NewShutdownCoordinator(100 * time.Millisecond)
	workers := []*fakeWorker{newFakeWorker("a", false), newFakeWorker("b", false)}
	for _, w := range workers {
		sc.Add(w)
	}

	if err := sc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	for _, w := range workers {
		if w.stops != 1 {
			t.Errorf("%s signalled %d times", w.name, w.stops)
		}
	}
}

func TestShutdownTimeout(t *testing.T) {
	sc := NewShutdownCoordinator(30 * time.Millisecond)
	sc.Add(newFakeWorker("ok", false), newFakeWorker("channel 2", true))

	err := sc.Shutdown(context.Background())
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Shutdown() = %v, want ErrShutdownTimeout", err)
	}
	if !strings.Contains(err.Error(), "channel 2") || strings.Contains(err.Error(), "ok") {
		t.Errorf("error %q should name only the stuck worker", err)
	}
}

func TestShutdownSingleDeadline(t *testing.T) {
	const timeout = 50 * time.Millisecond
	sc := NewShutdownCoordinator(timeout)
	for i := range 5 {
		sc.Add(newFakeWorker(fmt.Sprintf("w%d", i), true))
	}

	start := time.Now()
	err := sc.Shutdown(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Shutdown() = %v", err)
	}
	if elapsed > 4*timeout {
		t.Errorf("Shutdown() took %v, want one shared deadline of %v", elapsed, timeout)
	}
	for i := range 5 {
		if !strings.Contains(err.Error(), fmt.Sprintf("w%d", i)) {
			t.Errorf("error does not name w%d: %v", i, err)
		}
	}
}

func TestShutdownRespectsContext(t *testing.T) {
	sc := NewShutdownCoordinator(time.Hour)
	sc.Add(newFakeWorker("stuck", true))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sc.Shutdown(ctx); !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Shutdown() = %v, want ErrShutdownTimeout", err)
	}
}

func TestShutdownEmpty(t *testing.T) {
	if err := NewShutdownCoordinator(0).Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
}

func TestDeviceCloseReportsStuckWorker(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = 30 * time.Millisecond
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Hold the channel lock so the worker cannot finish its tick.
	ch := d.Channel(1)
	ch.mu.Lock()
	time.Sleep(3 * cfg.TickInterval)

	err = d.Close()
	ch.mu.Unlock()

	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Close() = %v, want ErrShutdownTimeout", err)
	}
	if !errors.Is(d.Close(), ErrShutdownTimeout) {
		t.Error("second Close() should report the first result")
	}
	<-ch.Done()
}
