package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"gopkg.in/yaml.v3"
)

// DefaultProfile is used for channels that name no profile.
const DefaultProfile = "MTS25"

// File is a YAML device description.
//
//	model: TDC001
//	serial: 83000001
//	firmware: 2.1.4
//	tick: 10ms
//	channels:
//	  - profile: MTS25
//	    position: 12.5
type File struct {
	Serial    uint32 `yaml:"serial"`
	Model     string `yaml:"model"`
	HWType    int    `yaml:"hw_type"`
	HWVersion int    `yaml:"hw_version"`
	ModState  int    `yaml:"mod_state"`
	Firmware  string `yaml:"firmware"`
	Notes     string `yaml:"notes"`

	Tick              time.Duration `yaml:"tick"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	BroadcastLimit    int           `yaml:"broadcast_limit"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	Channels []ChannelFile `yaml:"channels"`
}

// ChannelFile describes one channel. Positions and velocities are in the
// profile's user unit; unset fields keep the profile value.
type ChannelFile struct {
	Profile string `yaml:"profile"`

	Position       float64  `yaml:"position"`
	Min            *float64 `yaml:"min"`
	Max            *float64 `yaml:"max"`
	MaxVelocity    float64  `yaml:"max_velocity"`
	MoveVelocity   float64  `yaml:"move_velocity"`
	JogVelocity    float64  `yaml:"jog_velocity"`
	JogStep        float64  `yaml:"jog_step"`
	HomingVelocity float64  `yaml:"homing_velocity"`
	HomingOffset   float64  `yaml:"homing_offset"`
	Backlash       float64  `yaml:"backlash"`

	HomingDirection uint16 `yaml:"homing_direction"`
}

// LoadError reports a device file that could not be read or is invalid.
type LoadError struct {
	// File is the path, empty when parsing from memory.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes a device description.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if len(f.Channels) == 0 {
		return nil, &LoadError{Message: "at least one channel is required"}
	}
	return &f, nil
}

// Load reads and decodes a device description file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return f, nil
}

// DeviceConfig resolves profiles and builds a validated device config.
func (f *File) DeviceConfig() (device.Config, error) {
	cfg := device.DefaultConfig()
	cfg.Identity.Serial = f.Serial
	if f.Model != "" {
		cfg.Identity.Model = f.Model
	}
	if f.Firmware != "" {
		cfg.Identity.Firmware = f.Firmware
	}
	cfg.Identity.HWType = f.HWType
	cfg.Identity.HWVersion = f.HWVersion
	cfg.Identity.ModState = f.ModState
	cfg.Identity.Notes = f.Notes

	if f.Tick != 0 {
		cfg.TickInterval = f.Tick
	}
	if f.BroadcastInterval != 0 {
		cfg.BroadcastInterval = f.BroadcastInterval
	}
	if f.BroadcastLimit != 0 {
		cfg.BroadcastLimit = f.BroadcastLimit
	}
	if f.ShutdownTimeout != 0 {
		cfg.ShutdownTimeout = f.ShutdownTimeout
	}

	cfg.Channels = cfg.Channels[:0]
	for i, ch := range f.Channels {
		cc, err := ch.channelConfig()
		if err != nil {
			return device.Config{}, &LoadError{Message: fmt.Sprintf("channel %d", i+1), Cause: err}
		}
		cfg.Channels = append(cfg.Channels, cc)
	}

	if err := cfg.Validate(); err != nil {
		return device.Config{}, &LoadError{Message: "invalid device", Cause: err}
	}
	return cfg, nil
}

func (c *ChannelFile) channelConfig() (device.ChannelConfig, error) {
	name := c.Profile
	if name == "" {
		name = DefaultProfile
	}
	p, err := LoadProfile(name)
	if err != nil {
		return device.ChannelConfig{}, err
	}
	cc := p.ChannelConfig()
	scale := p.PositionScale

	cc.Encoder = counts(c.Position, scale)
	if c.Min != nil {
		v := counts(*c.Min, scale)
		cc.Min = &v
	}
	if c.Max != nil {
		v := counts(*c.Max, scale)
		cc.Max = &v
	}
	if c.MaxVelocity != 0 {
		cc.MaxVelocity = c.MaxVelocity
	}
	if c.JogStep != 0 {
		cc.JogStep = c.JogStep
	}
	if c.HomingDirection != 0 {
		cc.HomingDirection = c.HomingDirection
	}
	cc.MoveVelocity = c.MoveVelocity
	cc.JogVelocity = c.JogVelocity
	cc.HomingVelocity = c.HomingVelocity
	cc.HomingOffset = c.HomingOffset
	cc.Backlash = c.Backlash
	return cc, nil
}

// counts converts user units to encoder counts, saturating at the int32 range.
func counts(units, scale float64) int32 {
	v := math.Round(units * scale)
	return int32(max(math.MinInt32, min(math.MaxInt32, v)))
}

// ForProfile builds a device of n identical channels of the named profile.
func ForProfile(profile string, n int) (device.Config, error) {
	if n < 1 {
		return device.Config{}, &LoadError{Message: fmt.Sprintf("channel count %d", n)}
	}
	f := File{Channels: make([]ChannelFile, n)}
	for i := range f.Channels {
		f.Channels[i].Profile = profile
	}
	return f.DeviceConfig()
}
