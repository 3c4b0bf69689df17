package discovery

import (
	"errors"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a mock's TCP endpoint.
	ServiceType = "_apt-mock._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record key constants.
const (
	TXTKeySerial   = "sn"    // Serial number (decimal)
	TXTKeyModel    = "model" // Model string
	TXTKeyFirmware = "fw"    // Firmware "major.interim.minor"
	TXTKeyChannels = "ch"    // Channel count
)

// BrowseTimeout is the default time a browse waits for answers.
const BrowseTimeout = 3 * time.Second

// Errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidTXT          = errors.New("invalid TXT value")
	ErrInstanceNameTooLong = errors.New("instance name too long")
)

// DeviceInfo is what a mock advertises about itself.
type DeviceInfo struct {
	Serial   uint32
	Model    string
	Firmware string
	Channels int

	// Port is the TCP port hosts connect to.
	Port int
}

// InstanceName returns the DNS-SD instance name, "<model>-<serial>".
func (i *DeviceInfo) InstanceName() string {
	name := i.Model
	if name == "" {
		name = "APT"
	}
	name += "-" + formatSerial(i.Serial)
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// Service is a mock found on the network.
type Service struct {
	InstanceName string
	Host         string
	Port         int
	Addresses    []string

	Info DeviceInfo
}
