// Package interactive provides the operator console of apt-mock.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
	"github.com/chzyer/readline"
)

// Console drives a mock from the terminal. Motion commands are encoded
// frames written through Device.Write, so the device sees them exactly as
// host traffic and any replies are delivered to the connected host.
type Console struct {
	dev *device.Device
	rl  *readline.Instance
	out io.Writer
}

// New creates a console reading from the terminal.
func New(dev *device.Device) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "apt> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{dev: dev, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop. It calls cancel when the
// operator quits or closes the input.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should
// keep running.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "info", "i":
		c.cmdInfo()
	case "status", "s":
		c.cmdStatus(args)
	case "move", "m":
		c.cmdMove(wire.MoveAbsolute, args)
	case "rel", "r":
		c.cmdMove(wire.MoveRelative, args)
	case "home":
		c.cmdHome(args)
	case "jog":
		c.cmdDirected(wire.MoveJog, args)
	case "vel":
		c.cmdDirected(wire.MoveVelocity, args)
	case "stop":
		c.cmdStop(args)
	case "updates":
		c.cmdUpdates(args)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
APT Mock Commands:
  Inspection:
    info               - Show controller identity
    status [ch]        - Show channel state (all channels if omitted)

  Motion (positions in encoder counts):
    move <ch> <pos>    - Absolute move
    rel <ch> <delta>   - Relative move
    home <ch>          - Home the channel
    jog <ch> fwd|rev   - Jog one step
    vel <ch> fwd|rev   - Move at constant velocity until stopped
    stop <ch>          - Profiled stop

  Host link:
    updates on|off     - Start or stop status broadcasts

  General:
    help               - Show this help
    quit               - Exit apt-mock`)
}

func (c *Console) cmdInfo() {
	id := c.dev.Identity()
	fmt.Fprintf(c.out, "Serial:    %08d\n", id.Serial)
	fmt.Fprintf(c.out, "Model:     %s\n", id.Model)
	fmt.Fprintf(c.out, "Firmware:  %s\n", id.Firmware)
	fmt.Fprintf(c.out, "HW type:   %d\n", id.HWType)
	if id.Notes != "" {
		fmt.Fprintf(c.out, "Notes:     %s\n", id.Notes)
	}
	fmt.Fprintf(c.out, "Channels:  %d\n", len(c.dev.Channels()))
	fmt.Fprintf(c.out, "Updates:   %v\n", c.dev.Broadcasting())
}

func (c *Console) cmdStatus(args []string) {
	snaps := c.dev.Snapshots()
	if len(args) > 0 {
		ch, ok := c.parseChannel(args[0])
		if !ok {
			return
		}
		snap, found := c.dev.Snapshot(ch)
		if !found {
			fmt.Fprintf(c.out, "No channel %d\n", ch)
			return
		}
		snaps = []device.Snapshot{snap}
	}
	for _, s := range snaps {
		fmt.Fprintf(c.out, "ch%d  pos=%d  target=%d  vel=%.3f  %s  [%s]\n",
			s.ID, s.Encoder, s.Target, s.Velocity, s.Movement, s.Status)
	}
}

func (c *Console) cmdMove(kind wire.Kind, args []string) {
	if len(args) < 2 {
		fmt.Fprintf(c.out, "Usage: %s <ch> <counts>\n", commandName(kind))
		return
	}
	ch, ok := c.parseChannel(args[0])
	if !ok {
		return
	}
	dist, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid position: %s\n", args[1])
		return
	}
	msg, err := wire.NewDataMessage(kind, wire.MoveParams{Channel: ch, Distance: int32(dist)})
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.send(msg)
}

func (c *Console) cmdHome(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: home <ch>")
		return
	}
	if ch, ok := c.parseChannel(args[0]); ok {
		c.send(wire.NewHeaderMessage(wire.MoveHome, ch, 0))
	}
}

func (c *Console) cmdDirected(kind wire.Kind, args []string) {
	if len(args) < 2 {
		fmt.Fprintf(c.out, "Usage: %s <ch> fwd|rev\n", commandName(kind))
		return
	}
	ch, ok := c.parseChannel(args[0])
	if !ok {
		return
	}
	var dir uint16
	switch strings.ToLower(args[1]) {
	case "fwd", "forward", "+":
		dir = 1
	case "rev", "reverse", "-":
		dir = 2
	default:
		fmt.Fprintf(c.out, "Invalid direction: %s (use fwd or rev)\n", args[1])
		return
	}
	c.send(wire.NewHeaderMessage(kind, ch, dir))
}

func (c *Console) cmdStop(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: stop <ch>")
		return
	}
	if ch, ok := c.parseChannel(args[0]); ok {
		c.send(wire.NewHeaderMessage(wire.MoveStop, ch, 2))
	}
}

func (c *Console) cmdUpdates(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: updates on|off")
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		c.send(wire.NewHeaderMessage(wire.HWStartUpdateMsgs, 0, 0))
	case "off":
		c.send(wire.NewHeaderMessage(wire.HWStopUpdateMsgs, 0, 0))
	default:
		fmt.Fprintln(c.out, "Usage: updates on|off")
	}
}

func (c *Console) send(msg wire.Message) {
	frame, err := wire.Encode(msg)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if _, err := c.dev.Write(frame); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Sent %s\n", msg)
}

func (c *Console) parseChannel(s string) (uint16, bool) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid channel: %s\n", s)
		return 0, false
	}
	return uint16(n), true
}

func commandName(kind wire.Kind) string {
	switch kind {
	case wire.MoveAbsolute:
		return "move"
	case wire.MoveRelative:
		return "rel"
	case wire.MoveJog:
		return "jog"
	case wire.MoveVelocity:
		return "vel"
	}
	return kind.String()
}
