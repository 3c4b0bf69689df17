package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/config"
	"github.com/apt-mock/apt-mock-go/pkg/journal"
	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/transport"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := parseOptions(nil, config.DefaultEnv(), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "MTS25", opts.Profile)
	assert.Equal(t, 1, opts.Channels)
	assert.Equal(t, "127.0.0.1:7480", opts.Listen)
	assert.Equal(t, "info", opts.LogLevel)
	assert.False(t, opts.PTY)
}

func TestParseOptionsEnvAndFlags(t *testing.T) {
	env := config.DefaultEnv()
	env.Profile = "Z825B"
	env.Serial = 27000001
	env.HTTP = ":8080"

	opts, err := parseOptions([]string{"-profile", "CR1", "-channels", "3", "-baud", "115200"}, env, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "CR1", opts.Profile, "flag overrides environment")
	assert.Equal(t, uint(27000001), opts.Serial)
	assert.Equal(t, ":8080", opts.HTTP)
	assert.Equal(t, 3, opts.Channels)
	assert.Equal(t, 115200, opts.Baud)
}

func TestParseOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"serial too long", []string{"-serial", "123456789"}},
		{"negative baud", []string{"-baud", "-1"}},
		{"mdns without listen", []string{"-mdns", "-listen", ""}},
		{"stray argument", []string{"extra"}},
		{"unknown flag", []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args, config.DefaultEnv(), io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-version", "-env", filepath.Join(t.TempDir(), "missing.env")}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "apt-mock "+Version)
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-log-level", "loud", "-env", filepath.Join(t.TempDir(), "missing.env")}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "invalid log level")
}

func TestDeviceConfigFromProfile(t *testing.T) {
	cfg, err := deviceConfig(options{Profile: "MTS25", Channels: 2, Serial: 83000077})
	require.NoError(t, err)

	assert.Len(t, cfg.Channels, 2)
	assert.Equal(t, uint32(83000077), cfg.Identity.Serial)
}

func TestDeviceConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: BBD203
serial: 27000123
channels:
  - profile: MTS25
  - profile: MTS25
  - profile: Z825B
`), 0644))

	cfg, err := deviceConfig(options{Config: path, Profile: "CR1", Channels: 1})
	require.NoError(t, err)

	assert.Equal(t, "BBD203", cfg.Identity.Model)
	assert.Equal(t, uint32(27000123), cfg.Identity.Serial)
	assert.Len(t, cfg.Channels, 3, "device file wins over -profile/-channels")
}

func TestDeviceConfigMissingFile(t *testing.T) {
	_, err := deviceConfig(options{Config: filepath.Join(t.TempDir(), "nope.yaml")})

	var le *config.LoadError
	assert.ErrorAs(t, err, &le)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppServesHostsAndAPI(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		Profile:     "MTS25",
		Channels:    1,
		Serial:      83000099,
		Listen:      "127.0.0.1:0",
		Unix:        filepath.Join(dir, "apt.sock"),
		HTTP:        "127.0.0.1:0",
		ProtocolLog: filepath.Join(dir, "session.alog"),
		Journal:     filepath.Join(dir, "moves.db"),
	}

	a, err := newApp(opts, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.start(ctx))

	client := transport.NewClient(transport.ClientConfig{})
	conn, err := client.Connect(ctx, a.tcp.Addr().String())
	require.NoError(t, err)

	require.NoError(t, conn.Send(wire.NewHeaderMessage(wire.HWReqInfo, 0, 0)))
	reply, err := conn.WaitFor(wire.HWGetInfo, 2*time.Second)
	require.NoError(t, err)
	var info wire.HWInfo
	require.NoError(t, wire.DecodePayloadInto(reply.Payload, &info))
	assert.Equal(t, uint32(83000099), info.Serial)

	move, err := wire.NewDataMessage(wire.MoveRelative, wire.MoveParams{Channel: 1, Distance: 500})
	require.NoError(t, err)
	require.NoError(t, conn.Send(move))
	_, err = conn.WaitFor(wire.MoveCompleted, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.NoError(t, a.journal.Sync(ctx))

	base := "http://" + a.web.Addr().String()
	resp, err := http.Get(base + "/api/v1/moves")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var moves []journal.Move
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&moves))
	require.Len(t, moves, 1)
	assert.Equal(t, wire.MoveCompleted, moves[0].Kind)
	assert.Equal(t, int32(500), *moves[0].Position)

	require.NoError(t, a.close())

	// The protocol log holds the whole session.
	r, err := log.NewReader(opts.ProtocolLog)
	require.NoError(t, err)
	defer r.Close()
	kinds := map[wire.Kind]bool{}
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		if ev.Message != nil {
			kinds[ev.Message.Kind] = true
		}
	}
	assert.True(t, kinds[wire.HWReqInfo])
	assert.True(t, kinds[wire.MoveCompleted])
}

func TestAppUnixSocket(t *testing.T) {
	opts := options{
		Profile:  "MTS25",
		Channels: 1,
		Unix:     filepath.Join(t.TempDir(), "apt.sock"),
	}
	a, err := newApp(opts, quietLogger())
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.start(ctx))
	assert.Nil(t, a.tcp)

	client := transport.NewClient(transport.ClientConfig{Network: "unix"})
	conn, err := client.Connect(ctx, opts.Unix)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(wire.NewHeaderMessage(wire.ReqPosCounter, 1, 0)))
	_, err = conn.WaitFor(wire.GetPosCounter, 2*time.Second)
	require.NoError(t, err)
}

func TestAppPTYHoldsLink(t *testing.T) {
	p, err := transport.OpenPTY()
	if err != nil {
		t.Skipf("no pty: %v", err)
	}
	p.Close()

	opts := options{Profile: "MTS25", Channels: 1, PTY: true, Listen: "127.0.0.1:0"}
	a, err := newApp(opts, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.start(ctx))

	assert.True(t, strings.HasPrefix(a.pty.Name(), "/dev/"))
	assert.Equal(t, ptyConnID, a.link.Owner())

	require.NoError(t, a.close())
	assert.Equal(t, "", a.link.Owner())
}
