// Package transport adapts a UDP engine to the generic networking API of a
// host framework: connect, send by channel name, poll one event at a time,
// disconnect.
//
// Key concepts:
// - Session: owns one engine, the channel registry, the identity translator,
//   the receive buffers and the connection table
// - Identity: caller-facing peer id; 0 is always the server endpoint
// - PollEvent: non-blocking; translates at most one native event per call
// - ConnectTask: completion handle returned by StartServer and StartClient
//
// A Session is not safe for concurrent use. Callers serialize every call,
// typically from one network loop goroutine.
package transport
