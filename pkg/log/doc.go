// Package log provides structured protocol logging for the APT mock.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at the transport, device and channel layers. It is
// separate from operational logging (slog): protocol capture provides a
// complete machine-readable trace of every frame the mock received or
// emitted and every motion state change it went through.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For recording: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/tmp/apt-mock.alog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Device: decoded APT messages (MessageEvent)
//   - Channel: motion state transitions (StateChangeEvent)
//
// Protocol errors have a dedicated ErrorEventData payload.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events, conventionally with the
// .alog extension. The apt-log CLI tool views and summarizes them.
package log
