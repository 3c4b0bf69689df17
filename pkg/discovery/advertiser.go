package discovery

import (
	"context"
	"time"
)

// Advertiser announces a mock on the local network.
type Advertiser interface {
	// Advertise starts advertising info, replacing any earlier
	// announcement.
	Advertise(ctx context.Context, info *DeviceInfo) error

	// Stop withdraws the announcement.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}
