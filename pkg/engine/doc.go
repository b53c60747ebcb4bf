// Package engine defines the contract between the session adapter and the
// UDP based engines underneath it, plus the plumbing the network backends
// share: handle allocation, the event queue, pooled packets, wire framing
// and control frames.
//
// Key concepts:
// - Engine: one host (listening or ephemeral) producing native events
// - Handle: the engine's own connection identifier, never reused while live
// - Event: connect, disconnect, timeout or receive, taken one at a time by
//   CheckEvents or Service
// - Packet: engine-owned payload storage, copied out and then released
package engine
