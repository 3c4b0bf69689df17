package transport

import (
	"sync"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
)

// HostLink admits one host at a time to a device, like the single USB cable
// of a real controller. Transports serving the same device share one link.
type HostLink struct {
	mu    sync.Mutex
	owner string
}

// Acquire claims the link for id. It fails while another id holds it.
func (l *HostLink) Acquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" && l.owner != id {
		return false
	}
	l.owner = id
	return true
}

// Release frees the link if id holds it.
func (l *HostLink) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == id {
		l.owner = ""
	}
}

// Owner returns the connection id holding the link, empty when free.
func (l *HostLink) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

func logConnState(logger log.Logger, connID, remote, from, to, reason string) {
	if logger == nil {
		return
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
