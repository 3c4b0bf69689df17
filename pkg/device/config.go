package device

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
)

// Identity limits.
const (
	MaxSerial      = 99999999
	MaxModelLength = 8
	MaxNotesLength = 48
	MaxChannels    = math.MaxUint16
)

// Identity is the controller identity reported by HW_GET_INFO.
type Identity struct {
	// Serial is the serial number, at most 8 decimal digits. Zero selects a
	// random 8-digit serial at construction.
	Serial uint32

	// Model is the model string, at most 8 characters.
	Model string

	// HWType, HWVersion and ModState must each fit in 16 bits.
	HWType    int
	HWVersion int
	ModState  int

	// Firmware is the version as "major.interim.minor". Missing trailing
	// parts read as zero.
	Firmware string

	// Notes is free text, at most 48 characters.
	Notes string
}

// ChannelConfig describes one simulated axis.
//
// Scales convert user units (mm or degrees) into APT units: PositionScale is
// encoder counts per unit, VelocityScale APT velocity units per unit/s and
// AccelerationScale APT acceleration units per unit/s².
type ChannelConfig struct {
	PositionScale     float64
	VelocityScale     float64
	AccelerationScale float64

	// MaxVelocity and MaxAcceleration are in user units. Every commanded
	// velocity is capped at MaxVelocity.
	MaxVelocity     float64
	MaxAcceleration float64

	// Encoder is the starting position in counts.
	Encoder int32

	// Min and Max bound the travel in counts. Nil leaves that side bounded
	// only by the int32 range.
	Min *int32
	Max *int32

	// Velocity defaults in user units/s; zero selects MaxVelocity.
	MoveVelocity   float64
	JogVelocity    float64
	HomingVelocity float64

	// JogStep is the step jog distance in user units; zero selects 1.
	JogStep float64

	// HomingDirection is 1 (toward Max) or 2 (toward Min); zero selects 2.
	HomingDirection   uint16
	HomingLimitSwitch uint16
	HomingOffset      float64

	Backlash float64
}

// Config configures a Device.
type Config struct {
	Identity Identity
	Channels []ChannelConfig

	// TickInterval is the motion worker period.
	TickInterval time.Duration

	// BroadcastInterval is the status-broadcast period.
	BroadcastInterval time.Duration

	// BroadcastLimit is the number of status messages, counted across all
	// channels, sent per activation before the host has to acknowledge.
	BroadcastLimit int

	// ShutdownTimeout bounds the joint wait for all workers in Close.
	ShutdownTimeout time.Duration

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger receives every decoded and emitted message. Nil disables it.
	ProtocolLogger log.Logger
}

// DefaultChannelConfig returns a TDC001 driving an MTS25-Z8 linear stage:
// 25 mm of travel starting at 0.
func DefaultChannelConfig() ChannelConfig {
	lo, hi := int32(0), int32(25*34304)
	return ChannelConfig{
		PositionScale:     34304,
		VelocityScale:     767367.49,
		AccelerationScale: 261.93,
		MaxVelocity:       2.6,
		MaxAcceleration:   4.0,
		Min:               &lo,
		Max:               &hi,
	}
}

// DefaultConfig returns a single-channel device with default timing.
func DefaultConfig() Config {
	return Config{
		Identity: Identity{
			Model:    "MOCKUP00",
			Firmware: "1.0.0",
		},
		Channels:          []ChannelConfig{DefaultChannelConfig()},
		TickInterval:      10 * time.Millisecond,
		BroadcastInterval: 50 * time.Millisecond,
		BroadcastLimit:    50,
		ShutdownTimeout:   time.Second,
	}
}

// Validate checks the identity and channel list.
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if len(c.Channels) == 0 || len(c.Channels) > MaxChannels {
		return fmt.Errorf("%w: channel count %d outside 1..%d", ErrInvalidConfig, len(c.Channels), MaxChannels)
	}
	for i := range c.Channels {
		if err := c.Channels[i].Validate(); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
	}
	if c.TickInterval < 0 || c.BroadcastInterval < 0 || c.ShutdownTimeout < 0 || c.BroadcastLimit < 0 {
		return fmt.Errorf("%w: negative timing", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the identity limits.
func (id *Identity) Validate() error {
	if id.Serial > MaxSerial {
		return fmt.Errorf("%w: serial %d has more than 8 digits", ErrInvalidConfig, id.Serial)
	}
	if len(id.Model) > MaxModelLength {
		return fmt.Errorf("%w: model %q longer than %d characters", ErrInvalidConfig, id.Model, MaxModelLength)
	}
	if len(id.Notes) > MaxNotesLength {
		return fmt.Errorf("%w: notes longer than %d characters", ErrInvalidConfig, MaxNotesLength)
	}
	for _, f := range []struct {
		name string
		v    int
	}{{"hw type", id.HWType}, {"hw version", id.HWVersion}, {"mod state", id.ModState}} {
		if f.v < 0 || f.v > math.MaxUint16 {
			return fmt.Errorf("%w: %s %d outside 0..65535", ErrInvalidConfig, f.name, f.v)
		}
	}
	if _, err := ParseFirmware(id.Firmware); err != nil {
		return err
	}
	return nil
}

// Validate checks scales, bounds and homing parameters.
func (c *ChannelConfig) Validate() error {
	if c.PositionScale <= 0 || c.VelocityScale <= 0 || c.AccelerationScale <= 0 {
		return fmt.Errorf("%w: scales must be positive", ErrInvalidConfig)
	}
	if c.MaxVelocity <= 0 {
		return fmt.Errorf("%w: max velocity must be positive", ErrInvalidConfig)
	}
	if c.MaxAcceleration < 0 || c.MoveVelocity < 0 || c.JogVelocity < 0 || c.HomingVelocity < 0 || c.JogStep < 0 {
		return fmt.Errorf("%w: negative motion parameter", ErrInvalidConfig)
	}
	lo, hi := c.bounds()
	if lo > hi {
		return fmt.Errorf("%w: min %d above max %d", ErrInvalidConfig, lo, hi)
	}
	if c.Encoder < lo {
		return fmt.Errorf("%w: encoder %d below min %d", ErrInvalidConfig, c.Encoder, lo)
	}
	if c.Encoder > hi {
		return fmt.Errorf("%w: encoder %d above max %d", ErrInvalidConfig, c.Encoder, hi)
	}
	if c.HomingDirection != 0 && c.HomingDirection != 1 && c.HomingDirection != 2 {
		return fmt.Errorf("%w: homing direction %d", ErrInvalidConfig, c.HomingDirection)
	}
	return nil
}

func (c *ChannelConfig) bounds() (lo, hi int32) {
	lo, hi = math.MinInt32, math.MaxInt32
	if c.Min != nil {
		lo = *c.Min
	}
	if c.Max != nil {
		hi = *c.Max
	}
	return lo, hi
}

// ParseFirmware parses "major.interim.minor" into its HW_GET_INFO packing.
func ParseFirmware(s string) ([4]byte, error) {
	parts := strings.Split(s, ".")
	if s == "" || len(parts) > 3 {
		return [4]byte{}, fmt.Errorf("%w: firmware version %q", ErrInvalidConfig, s)
	}
	var v [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return [4]byte{}, fmt.Errorf("%w: firmware version %q: %v", ErrInvalidConfig, s, err)
		}
		v[i] = uint8(n)
	}
	return wire.PackFirmware(v[0], v[1], v[2]), nil
}

func randomSerial() uint32 {
	return 10000000 + rand.Uint32N(90000000)
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.TickInterval == 0 {
		c.TickInterval = def.TickInterval
	}
	if c.BroadcastInterval == 0 {
		c.BroadcastInterval = def.BroadcastInterval
	}
	if c.BroadcastLimit == 0 {
		c.BroadcastLimit = def.BroadcastLimit
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
}
