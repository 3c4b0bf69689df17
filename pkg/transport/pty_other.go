//go:build !linux

package transport

// OpenPTY is only available on Linux.
func OpenPTY() (*PTY, error) {
	return nil, ErrPTYUnsupported
}
