package transport

import (
    "time"

    "go.uber.org/zap"

    "udplink/pkg/channel"
    "udplink/pkg/identity"
    "udplink/pkg/keepalive"
)

// EventType is the uniform outcome of one poll.
type EventType uint8

const (
    EventNothing EventType = iota
    EventConnect
    EventDisconnect
    EventData
)

func (t EventType) String() string {
    switch t {
    case EventConnect:
        return "connect"
    case EventDisconnect:
        return "disconnect"
    case EventData:
        return "data"
    default:
        return "nothing"
    }
}

// Event is the result of PollEvent. Payload aliases a session-owned buffer
// and is valid only until the next PollEvent call.
type Event struct {
    Type        EventType
    Identity    identity.ID
    Channel     string
    Payload     []byte
    ReceiveTime time.Time
}

// State is the lifecycle state of a Session.
type State uint8

const (
    StateUninitialized State = iota
    StateInitialized
    StateServerRunning
    StateClientConnecting
    StateClientConnected
    StateShuttingDown
)

func (s State) String() string {
    switch s {
    case StateInitialized:
        return "initialized"
    case StateServerRunning:
        return "server_running"
    case StateClientConnecting:
        return "client_connecting"
    case StateClientConnected:
        return "client_connected"
    case StateShuttingDown:
        return "shutting_down"
    default:
        return "uninitialized"
    }
}

// Running reports whether an engine host is open.
func (s State) Running() bool {
    return s == StateServerRunning || s == StateClientConnecting || s == StateClientConnected
}

// Options configure a Session.
type Options struct {
    // Builtins are the framework-reserved channels, ids 0..K-1.
    Builtins []channel.Builtin
    // Channels are user channels, ids K.. in order.
    Channels []channel.User

    // Address and Port are the server a client connects to. A server
    // listens on BindAddress:Port; an empty BindAddress means all interfaces
    // and port 0 an ephemeral port.
    Address     string
    Port        int
    BindAddress string

    MaxConnections    int
    MessageBufferSize int
    KeepAlive         keepalive.Params

    // Clock stamps events whose engine records no receive time.
    Clock  func() time.Time
    Logger *zap.Logger
}

// DefaultOptions returns the classic defaults: port 7777 on loopback, 100
// clients, a 5 KiB receive buffer and the default framework channels.
func DefaultOptions() Options {
    return Options{
        Builtins:          channel.DefaultBuiltins(),
        Address:           "127.0.0.1",
        Port:              7777,
        MaxConnections:    100,
        MessageBufferSize: 5 * 1024,
        KeepAlive:         keepalive.DefaultParams(),
    }
}

func (o Options) withDefaults() Options {
    d := DefaultOptions()
    if o.Address == "" { o.Address = d.Address }
    if o.MaxConnections <= 0 { o.MaxConnections = d.MaxConnections }
    if o.MessageBufferSize <= 0 { o.MessageBufferSize = d.MessageBufferSize }
    o.KeepAlive = o.KeepAlive.Normalize()
    if o.Clock == nil { o.Clock = time.Now }
    if o.Logger == nil { o.Logger = zap.L() }
    return o
}
