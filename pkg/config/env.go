package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "APT_MOCK_"

// Env holds daemon defaults taken from the environment. Command-line flags
// override them.
type Env struct {
	Config      string // APT_MOCK_CONFIG
	Profile     string // APT_MOCK_PROFILE
	Channels    int    // APT_MOCK_CHANNELS
	Serial      uint32 // APT_MOCK_SERIAL
	Listen      string // APT_MOCK_LISTEN
	Unix        string // APT_MOCK_UNIX
	HTTP        string // APT_MOCK_HTTP
	MDNS        bool   // APT_MOCK_MDNS
	ProtocolLog string // APT_MOCK_PROTOCOL_LOG
	Journal     string // APT_MOCK_JOURNAL
	LogLevel    string // APT_MOCK_LOG_LEVEL
}

// LoadDotEnv loads variables from an env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// FromEnv reads APT_MOCK_* variables. Unset variables keep the defaults
// shown by DefaultEnv.
func FromEnv() (Env, error) {
	env := DefaultEnv()

	loadString(&env.Config, "CONFIG")
	loadString(&env.Profile, "PROFILE")
	loadString(&env.Listen, "LISTEN")
	loadString(&env.Unix, "UNIX")
	loadString(&env.HTTP, "HTTP")
	loadString(&env.ProtocolLog, "PROTOCOL_LOG")
	loadString(&env.Journal, "JOURNAL")
	loadString(&env.LogLevel, "LOG_LEVEL")

	if v, ok := lookup("CHANNELS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Env{}, fmt.Errorf("invalid %sCHANNELS %q", EnvPrefix, v)
		}
		env.Channels = n
	}
	if v, ok := lookup("SERIAL"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Env{}, fmt.Errorf("invalid %sSERIAL %q: %w", EnvPrefix, v, err)
		}
		env.Serial = uint32(n)
	}
	if v, ok := lookup("MDNS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Env{}, fmt.Errorf("invalid %sMDNS %q: %w", EnvPrefix, v, err)
		}
		env.MDNS = b
	}
	return env, nil
}

// DefaultEnv returns the values used when no variable is set.
func DefaultEnv() Env {
	return Env{
		Profile:  DefaultProfile,
		Channels: 1,
		Listen:   "127.0.0.1:7480",
		LogLevel: "info",
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func loadString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}
