// Package journal keeps a persistent history of end-of-move events.
//
// A Store is a log.Logger: add it to the protocol logger chain and every
// MOVE_COMPLETED, MOVE_STOPPED and MOVE_HOMED the mock sends is recorded
// in SQLite with its channel, final position and status word. The web API
// and apt-log read it back with Moves and Stats.
package journal
