// Package session owns the per-connection tracker protocol state machine.
//
// Ownership boundary:
// - identity handshake phase and accept/reject byte
// - inbound buffering and message boundaries
// - data packet acknowledgement
//
// A Session is owned by exactly one connection goroutine and is not safe for
// concurrent use.
package session
