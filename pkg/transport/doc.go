// Package transport carries APT frames between host software and a mock
// device.
//
// The transport layer handles:
//   - Splitting a byte stream into frames using each kind's payload length
//   - Bridging a stream to a device, optionally at serial-link speed
//   - TCP, unix-socket, pseudo-terminal and WebSocket endpoints
//   - Admitting one host at a time, as a real controller's USB port does
//
// # Protocol Stack
//
//	┌──────────────────────────────────────┐
//	│   APT messages (6-byte header +      │
//	│   optional fixed-length payload)     │
//	├──────────────────────────────────────┤
//	│   Bridge (poll, optional baud limit) │
//	├───────────┬───────────┬──────────────┤
//	│ TCP/unix  │   PTY     │  WebSocket   │
//	└───────────┴───────────┴──────────────┘
//
// APT has no length prefix or delimiter. The reader trusts the kind in each
// header to know how many bytes follow, so an unknown kind ends the
// connection: the stream can no longer be resynchronised.
package transport
