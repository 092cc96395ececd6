// Package session runs the client side of the control-plane link.
//
// A Manager owns at most one worker. The worker opens a socket from the
// shared transport context, connects, announces the message ids it wants,
// then polls and dispatches until it is cancelled. The worker never
// reconnects on its own; a dropped peer shows up only as silence.
//
// Ownership boundary:
// - worker state machine and socket lifetime
// - start/stop/reconfigure coordination
// - the manager's reference on the shared transport context
//
// Stop must never be called from a dispatch handler: it waits for the
// worker that is running the handler.
package session
