package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Worker is a goroutine that can be asked to stop and awaited.
type Worker interface {
	// WorkerName identifies the worker in timeout errors.
	WorkerName() string

	// SignalStop requests a cooperative stop. It must not block and must be
	// safe to call more than once.
	SignalStop()

	// Done is closed when the worker has exited.
	Done() <-chan struct{}
}

var _ Worker = (*Channel)(nil)

// ShutdownCoordinator stops a set of workers and awaits them against a single
// deadline.
type ShutdownCoordinator struct {
	mu      sync.Mutex
	workers []Worker
	timeout time.Duration
}

// NewShutdownCoordinator creates a coordinator that waits at most timeout for
// all of its workers together.
func NewShutdownCoordinator(timeout time.Duration) *ShutdownCoordinator {
	return &ShutdownCoordinator{timeout: timeout}
}

// Add registers workers.
func (s *ShutdownCoordinator) Add(workers ...Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, workers...)
}

// Shutdown signals every worker, then waits for all of them. Workers still
// running when the deadline passes each contribute an ErrShutdownTimeout
// naming them to the joined result.
func (s *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	workers := append([]Worker(nil), s.workers...)
	s.mu.Unlock()

	for _, w := range workers {
		w.SignalStop()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var errs []error
	for _, w := range workers {
		select {
		case <-w.Done():
			continue
		default:
		}
		select {
		case <-w.Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%w: %s", ErrShutdownTimeout, w.WorkerName()))
		}
	}
	return errors.Join(errs...)
}
