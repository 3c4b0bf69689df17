// Package wire defines the binary frame format of the APT motion-controller
// protocol.
//
// Every frame starts with a 6-byte little-endian header:
//
//	offset 0: kind   uint16
//	offset 2: param1 uint16
//	offset 4: param2 uint16
//
// Kinds are either header-only, in which case param1 and param2 carry the
// command arguments (typically the channel id and a direction), or carry a
// fixed-size payload. For data kinds param2 holds the payload length and the
// payload follows the header immediately.
//
// # Kinds
//
// The kind registry knows every message id the mock understands, its APT
// mnemonic, the declared payload length and which side sends it. A header
// with a kind outside the registry is malformed.
//
// # Payloads
//
// Payload layouts are packed little-endian structs. The typed payloads in
// this package (StatusUpdate, HWInfo, VelParams, ...) encode and decode with
// EncodePayload and DecodePayloadInto.
package wire
