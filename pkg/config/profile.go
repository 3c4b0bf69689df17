package config

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// Profile describes a stage: its unit scaling, speed limits and travel.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Unit is the user unit, "mm" or "deg".
	Unit string `yaml:"unit"`

	PositionScale     float64 `yaml:"position_scale"`
	VelocityScale     float64 `yaml:"velocity_scale"`
	AccelerationScale float64 `yaml:"acceleration_scale"`
	MaxVelocity       float64 `yaml:"max_velocity"`
	MaxAcceleration   float64 `yaml:"max_acceleration"`

	// Min and Max bound the travel in user units. Rotation stages leave
	// them unset.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	HomingDirection uint16  `yaml:"homing_direction"`
	JogStep         float64 `yaml:"jog_step"`
}

// ChannelConfig converts the profile into a channel starting at position 0.
func (p *Profile) ChannelConfig() device.ChannelConfig {
	cc := device.ChannelConfig{
		PositionScale:     p.PositionScale,
		VelocityScale:     p.VelocityScale,
		AccelerationScale: p.AccelerationScale,
		MaxVelocity:       p.MaxVelocity,
		MaxAcceleration:   p.MaxAcceleration,
		HomingDirection:   p.HomingDirection,
		JogStep:           p.JogStep,
	}
	if p.Min != nil {
		v := counts(*p.Min, p.PositionScale)
		cc.Min = &v
	}
	if p.Max != nil {
		v := counts(*p.Max, p.PositionScale)
		cc.Max = &v
	}
	return cc
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Profile)
)

// LoadProfile returns the embedded profile with the given name. Names are
// case-insensitive.
func LoadProfile(name string) (*Profile, error) {
	key := strings.ToUpper(name)

	cacheMu.RLock()
	if p, ok := cache[key]; ok {
		cacheMu.RUnlock()
		return p, nil
	}
	cacheMu.RUnlock()

	data, err := profileFS.ReadFile("profiles/" + key + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("stage profile %q not found: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing stage profile %q: %w", name, err)
	}

	cacheMu.Lock()
	cache[key] = &p
	cacheMu.Unlock()

	return &p, nil
}

// Profiles returns the names of all embedded profiles, sorted.
func Profiles() ([]string, error) {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading profiles directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
