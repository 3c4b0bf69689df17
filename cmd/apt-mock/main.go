// Command apt-mock runs a simulated Thorlabs APT motion controller.
//
// Host software connects over TCP, a unix socket, a WebSocket or a Linux
// pseudo-terminal and talks the binary APT protocol exactly as it would to
// a TDC001 or KDC101 on a USB serial port.
//
// Usage:
//
//	apt-mock [flags]
//
// Flags:
//
//	-config string        Device file (YAML); overrides -profile and -channels
//	-profile string       Stage profile: CR1, MTS25, PRM1, Z825B (default "MTS25")
//	-channels int         Number of channels (default 1)
//	-serial uint          Serial number, 8 digits (random if 0)
//	-listen string        TCP address for hosts (default "127.0.0.1:7480", "" disables)
//	-unix string          Unix socket path for hosts
//	-pty                  Serve a pseudo-terminal (Linux)
//	-http string          HTTP address for the inspection API and /ws
//	-mdns                 Advertise the TCP endpoint over mDNS
//	-discover             Browse for running mocks and exit
//	-protocol-log string  Append CBOR protocol events to this file
//	-journal string       SQLite move journal path
//	-baud int             Emulate a serial link of this speed (0 disables)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-interactive          Start the operator console
//	-env string           Environment file with APT_MOCK_* defaults (default ".env")
//	-version              Show version information
//
// Most flag defaults can also be set through an APT_MOCK_* variable, e.g.
// APT_MOCK_LISTEN or APT_MOCK_PROFILE, in the environment or the -env file.
//
// Examples:
//
//	# Single MTS25 stage on the default TCP port
//	apt-mock
//
//	# Three-channel device from a file, with a pty and the web API
//	apt-mock -config bbd203.yaml -pty -http :8080
//
//	# Record the protocol and inspect it later with apt-log
//	apt-mock -protocol-log session.alog -journal moves.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/apt-mock/apt-mock-go/cmd/apt-mock/interactive"
	"github.com/apt-mock/apt-mock-go/pkg/config"
	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/discovery"
	"github.com/apt-mock/apt-mock-go/pkg/journal"
	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/transport"
)

// Version information - set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "dev"
	GitCommit = "unknown"
)

// ptyConnID tags protocol events of the pseudo-terminal host.
const ptyConnID = "pty"

// options holds the parsed command line.
type options struct {
	Config      string
	Profile     string
	Channels    int
	Serial      uint
	Listen      string
	Unix        string
	PTY         bool
	HTTP        string
	MDNS        bool
	Discover    bool
	ProtocolLog string
	Journal     string
	Baud        int
	LogLevel    string
	Interactive bool
	Version     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	envFile := ".env"
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "-env="); ok {
			envFile = v
		} else if (a == "-env" || a == "--env") && i+1 < len(args) {
			envFile = args[i+1]
		}
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	env, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	opts, err := parseOptions(args, env, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if opts.Version {
		fmt.Fprintf(stdout, "apt-mock %s (built %s, commit %s)\n", Version, BuildDate, GitCommit)
		return 0
	}

	logger, err := newLogger(stderr, opts.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Discover {
		if err := discover(ctx, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	a, err := newApp(opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if err := a.start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.Interactive {
		console, err := interactive.New(a.dev)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		console.Run(ctx, cancel)
		return 0
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}

// parseOptions parses args over the environment defaults.
func parseOptions(args []string, env config.Env, output io.Writer) (options, error) {
	var o options
	var envFile string

	fs := flag.NewFlagSet("apt-mock", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.Config, "config", env.Config, "Device file (YAML)")
	fs.StringVar(&o.Profile, "profile", env.Profile, "Stage profile for every channel")
	fs.IntVar(&o.Channels, "channels", env.Channels, "Number of channels")
	fs.UintVar(&o.Serial, "serial", uint(env.Serial), "Serial number (random if 0)")
	fs.StringVar(&o.Listen, "listen", env.Listen, "TCP address for hosts (empty disables)")
	fs.StringVar(&o.Unix, "unix", env.Unix, "Unix socket path for hosts")
	fs.BoolVar(&o.PTY, "pty", false, "Serve a pseudo-terminal")
	fs.StringVar(&o.HTTP, "http", env.HTTP, "HTTP address for the inspection API")
	fs.BoolVar(&o.MDNS, "mdns", env.MDNS, "Advertise over mDNS")
	fs.BoolVar(&o.Discover, "discover", false, "Browse for running mocks and exit")
	fs.StringVar(&o.ProtocolLog, "protocol-log", env.ProtocolLog, "Protocol log file")
	fs.StringVar(&o.Journal, "journal", env.Journal, "SQLite move journal path")
	fs.IntVar(&o.Baud, "baud", 0, "Emulated serial link speed (0 disables)")
	fs.StringVar(&o.LogLevel, "log-level", env.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&o.Interactive, "interactive", false, "Start the operator console")
	fs.StringVar(&envFile, "env", ".env", "Environment file")
	fs.BoolVar(&o.Version, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if o.Serial > device.MaxSerial {
		return options{}, fmt.Errorf("serial %d has more than 8 digits", o.Serial)
	}
	if o.Baud < 0 {
		return options{}, fmt.Errorf("baud must not be negative")
	}
	if o.MDNS && o.Listen == "" {
		return options{}, fmt.Errorf("-mdns needs a -listen address")
	}
	return o, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// deviceConfig builds the device configuration from a device file or a
// profile.
func deviceConfig(o options) (device.Config, error) {
	var cfg device.Config
	if o.Config != "" {
		f, err := config.Load(o.Config)
		if err != nil {
			return device.Config{}, err
		}
		cfg, err = f.DeviceConfig()
		if err != nil {
			return device.Config{}, err
		}
	} else {
		var err error
		cfg, err = config.ForProfile(o.Profile, o.Channels)
		if err != nil {
			return device.Config{}, err
		}
	}
	if o.Serial != 0 {
		cfg.Identity.Serial = uint32(o.Serial)
	}
	return cfg, nil
}

// app wires one device to its transports, logs and advertiser.
type app struct {
	opts   options
	logger *slog.Logger

	dev      *device.Device
	link     *transport.HostLink
	protoLog log.Logger
	fileLog  *log.FileLogger
	journal  *journal.Store

	tcp        *transport.Server
	unix       *transport.Server
	web        *WebServer
	pty        *transport.PTY
	advertiser *discovery.MDNSAdvertiser

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newApp creates the device and its protocol loggers. Nothing listens
// until start.
func newApp(o options, logger *slog.Logger) (*app, error) {
	cfg, err := deviceConfig(o)
	if err != nil {
		return nil, err
	}

	a := &app{opts: o, logger: logger, link: &transport.HostLink{}}

	var loggers []log.Logger
	if o.ProtocolLog != "" {
		fl, err := log.NewFileLogger(o.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("protocol log: %w", err)
		}
		a.fileLog = fl
		loggers = append(loggers, fl)
	}
	if o.Journal != "" {
		j, err := journal.Open(o.Journal)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		a.journal = j
		loggers = append(loggers, j)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}
	if len(loggers) > 0 {
		a.protoLog = log.NewMultiLogger(loggers...)
	}

	cfg.Logger = logger
	cfg.ProtocolLogger = a.protoLog
	a.dev, err = device.New(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// start opens every configured transport. They run until ctx is done or
// close is called.
func (a *app) start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	id := a.dev.Identity()
	a.logger.Info("apt-mock starting",
		"serial", fmt.Sprintf("%08d", id.Serial),
		"model", id.Model,
		"channels", len(a.dev.Channels()))

	if a.opts.Listen != "" {
		srv, err := a.newServer("tcp", a.opts.Listen)
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("tcp: %w", err)
		}
		a.tcp = srv
		a.logger.Info("listening", "network", "tcp", "address", srv.Addr().String())
	}

	if a.opts.Unix != "" {
		srv, err := a.newServer("unix", a.opts.Unix)
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("unix: %w", err)
		}
		a.unix = srv
		a.logger.Info("listening", "network", "unix", "address", a.opts.Unix)
	}

	if a.opts.PTY {
		if err := a.startPTY(ctx); err != nil {
			return err
		}
	}

	if a.opts.HTTP != "" {
		a.web = NewWebServer(WebConfig{
			Address: a.opts.HTTP,
			Version: Version,
			Device:  a.dev,
			Journal: a.journal,
			WebSocket: transport.NewWebSocketHandler(transport.WebSocketConfig{
				Device:         a.dev,
				Link:           a.link,
				Baud:           a.opts.Baud,
				Logger:         a.logger,
				ProtocolLogger: a.protoLog,
				OnError: func(connID string, err error) {
					a.logger.Warn("websocket host", "conn_id", connID, "error", err)
				},
			}),
			Logger: a.logger,
		})
		if err := a.web.Start(); err != nil {
			return err
		}
		a.logger.Info("http api", "address", a.web.Addr().String())
	}

	if a.opts.MDNS && a.tcp != nil {
		tcpAddr, ok := a.tcp.Addr().(*net.TCPAddr)
		if !ok {
			return fmt.Errorf("mdns: no tcp port")
		}
		a.advertiser = discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		info := &discovery.DeviceInfo{
			Serial:   id.Serial,
			Model:    id.Model,
			Firmware: id.Firmware,
			Channels: len(a.dev.Channels()),
			Port:     tcpAddr.Port,
		}
		if err := a.advertiser.Advertise(ctx, info); err != nil {
			return fmt.Errorf("mdns: %w", err)
		}
		a.logger.Info("advertising", "instance", info.InstanceName(), "service", discovery.ServiceType)
	}
	return nil
}

func (a *app) newServer(network, address string) (*transport.Server, error) {
	return transport.NewServer(transport.ServerConfig{
		Network:        network,
		Address:        address,
		Device:         a.dev,
		Link:           a.link,
		Baud:           a.opts.Baud,
		Logger:         a.logger,
		ProtocolLogger: a.protoLog,
		OnConnect: func(conn *transport.ServerConn) {
			a.logger.Info("host connected", "conn_id", conn.ConnID(), "remote", conn.RemoteAddr())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			a.logger.Info("host disconnected", "conn_id", conn.ConnID())
		},
		OnError: func(conn *transport.ServerConn, err error) {
			if conn == nil {
				a.logger.Warn("host rejected", "error", err)
				return
			}
			a.logger.Warn("host error", "conn_id", conn.ConnID(), "error", err)
		},
	})
}

// startPTY serves the device on a pseudo-terminal. The pty holds the host
// link for as long as it is open, so network hosts are turned away.
func (a *app) startPTY(ctx context.Context) error {
	p, err := transport.OpenPTY()
	if err != nil {
		return fmt.Errorf("pty: %w", err)
	}
	if !a.link.Acquire(ptyConnID) {
		p.Close()
		return fmt.Errorf("pty: %w", transport.ErrHostBusy)
	}
	a.pty = p
	a.logger.Info("serving pty", "path", p.Name())

	bridge := transport.NewBridge(a.dev, p, transport.BridgeConfig{
		ConnID:         ptyConnID,
		Baud:           a.opts.Baud,
		Logger:         a.logger,
		ProtocolLogger: a.protoLog,
		OnError: func(err error) {
			a.logger.Warn("pty host", "error", err)
		},
	})
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.link.Release(ptyConnID)
		if err := bridge.Run(ctx); err != nil {
			a.logger.Error("pty bridge stopped", "error", err)
		}
	}()
	return nil
}

// close stops everything in reverse order of creation.
func (a *app) close() error {
	var errs []error
	if a.advertiser != nil {
		errs = append(errs, a.advertiser.Stop())
	}
	if a.web != nil {
		errs = append(errs, a.web.Close())
	}
	if a.unix != nil {
		errs = append(errs, a.unix.Stop())
	}
	if a.tcp != nil {
		errs = append(errs, a.tcp.Stop())
	}
	// The pty bridge closes the pty on its way out.
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.dev != nil {
		errs = append(errs, a.dev.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close(time.Second))
		if lost := a.journal.Dropped() + a.journal.Failed(); lost > 0 {
			a.logger.Warn("journal lost moves", "dropped", a.journal.Dropped(), "failed", a.journal.Failed())
		}
	}
	if a.fileLog != nil {
		errs = append(errs, a.fileLog.Close())
	}
	return errors.Join(errs...)
}

// discover prints every mock answering on the local network.
func discover(ctx context.Context, w io.Writer) error {
	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	ctx, cancel := context.WithTimeout(ctx, discovery.BrowseTimeout)
	defer cancel()

	services, err := browser.Browse(ctx)
	if err != nil {
		return err
	}
	found := 0
	for svc := range services {
		found++
		fmt.Fprintf(w, "%-20s %-8s %08d  ch=%d  %s:%d %v\n",
			svc.InstanceName, svc.Info.Model, svc.Info.Serial, svc.Info.Channels,
			svc.Host, svc.Port, svc.Addresses)
	}
	if found == 0 {
		fmt.Fprintln(w, "No mocks found")
	}
	return nil
}
