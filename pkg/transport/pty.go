package transport

import (
	"errors"
	"os"
)

// PTY is a pseudo-terminal pair. The mock side reads and writes the master;
// host software opens Name() like a serial port.
type PTY struct {
	master *os.File
	slave  *os.File
	name   string
}

// Name returns the path of the terminal hosts should open.
func (p *PTY) Name() string {
	return p.name
}

// Read reads host bytes from the master side.
func (p *PTY) Read(b []byte) (int, error) {
	return p.master.Read(b)
}

// Write sends bytes to the host.
func (p *PTY) Write(b []byte) (int, error) {
	return p.master.Write(b)
}

// Close releases both sides of the terminal.
func (p *PTY) Close() error {
	return errors.Join(p.master.Close(), p.slave.Close())
}
