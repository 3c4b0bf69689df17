package discovery

import (
	"context"
	"time"
)

// Browser finds mocks on the local network.
type Browser interface {
	// Browse emits each mock once, with addresses from every interface it
	// answered on merged. The channel closes when ctx is done.
	Browse(ctx context.Context) (<-chan *Service, error)

	// FindBySerial waits for the mock with the given serial number.
	FindBySerial(ctx context.Context, serial uint32) (*Service, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is applied by FindBySerial when ctx has no deadline.
	// Default: 3 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}
