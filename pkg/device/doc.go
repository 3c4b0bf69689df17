// Package device implements a software mock of an APT DC motion controller.
//
// A Device accepts encoded command frames through Write, simulates the
// physical consequences on its channels and queues the reply and event frames
// a real controller would emit, which the host drains through Read.
//
// # Workers
//
// Every channel owns a motion worker goroutine that advances the encoder
// toward the commanded target once per tick and emits MOVE_COMPLETED,
// MOVE_STOPPED or MOVE_HOMED when the motion ends. A device-wide broadcast
// worker, started by HW_START_UPDATEMSGS, pushes GET_DCSTATUSUPDATE frames for
// every channel. It pauses once it has sent BroadcastLimit messages in total,
// possibly mid-cycle, until the host acknowledges with ACK_DCSTATUSUPDATE.
//
// # Locking
//
// Every channel field is guarded by the channel mutex, taken by both the
// worker and the command handlers. The outgoing buffer has its own mutex.
// When both are needed the channel mutex is taken first, which keeps the
// events of one channel in the order the motion produced them.
//
// # Errors
//
// Frames that cannot be decoded fail with wire.ErrMalformedHeader or
// wire.ErrMalformedPayload. Kinds the mock firmware does not implement fail
// with ErrUnhandled. Commands addressing an unknown channel are ignored.
package device
