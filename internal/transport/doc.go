// Package transport owns the process-wide messaging context and the sockets
// built from it.
//
// Invariants:
//   - At most one Context exists per Arbiter at a time. It is created lazily
//     on the first reference and terminated only when the last reference is
//     released by an owner that asked for destruction.
//   - Every socket holds one reference, so the context strictly outlives
//     every socket opened from it.
//   - Context create/terminate and socket open/close all happen under the
//     Arbiter's single mutex. Socket I/O never takes the lock.
//   - A Socket is used by exactly one goroutine between Open and CloseSocket.
package transport
