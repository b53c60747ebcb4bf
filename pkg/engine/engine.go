package engine

import (
    "context"
    "errors"
    "net"
    "strings"
    "time"

    "udplink/pkg/channel"
    "udplink/pkg/keepalive"
)

var (
    ErrUnknownHandle = errors.New("engine: unknown handle")
    ErrNotStarted    = errors.New("engine: not started")
    ErrClosed        = errors.New("engine: closed")
    ErrChannelRange  = errors.New("engine: channel out of range")
    ErrPeerLimit     = errors.New("engine: peer limit reached")
    ErrStarted       = errors.New("engine: already started")
)

// Kind identifies an engine implementation.
type Kind int

const (
    KindUnknown Kind = iota
    KindQUIC
    KindSCTP
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindQUIC:
        return "quic"
    case KindSCTP:
        return "sctp"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// ParseKind resolves a configured engine name.
func ParseKind(s string) Kind {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "quic", "udp":
        return KindQUIC
    case "sctp":
        return KindSCTP
    case "mem", "inproc":
        return KindMem
    default:
        return KindUnknown
    }
}

// Handle is a native connection handle.
type Handle uint32

// EventType enumerates the native events.
type EventType uint8

const (
    EventNone EventType = iota
    EventConnect
    EventDisconnect
    EventTimeout
    EventReceive
)

func (t EventType) String() string {
    switch t {
    case EventConnect:
        return "connect"
    case EventDisconnect:
        return "disconnect"
    case EventTimeout:
        return "timeout"
    case EventReceive:
        return "receive"
    default:
        return "none"
    }
}

// Terminal reports whether the event ends the life of its handle.
func (t EventType) Terminal() bool { return t == EventDisconnect || t == EventTimeout }

// Packet is engine-owned payload storage. Release must be called exactly
// once after the payload has been copied out.
type Packet interface {
    Len() int
    CopyTo(dst []byte) int
    Release()
}

// Event is one native event. Packet is set only for EventReceive.
// ReceivedAt is zero when the engine does not record receive times.
type Event struct {
    Type       EventType
    Peer       Handle
    Channel    uint8
    Packet     Packet
    ReceivedAt time.Time
}

// HostConfig describes the host socket an engine opens in Start.
type HostConfig struct {
    // ListenAddr is host:port to listen on. Empty opens an ephemeral
    // client-only socket.
    ListenAddr   string
    MaxPeers     int
    ChannelCount int
    KeepAlive    keepalive.Params
}

// Engine is the backend contract consumed by the session adapter. All
// methods except those documented otherwise are called from the single
// goroutine driving the poll loop.
type Engine interface {
    Kind() Kind
    Start(ctx context.Context, cfg HostConfig) error
    LocalAddr() net.Addr
    // Connect starts an outbound connection and returns at once; its
    // outcome is reported as a Connect or Disconnect event for the handle.
    Connect(address string) (Handle, error)
    // CheckEvents pops an event that is already queued.
    CheckEvents() (Event, bool)
    // Service performs one non-blocking I/O step and pops its event, if any.
    Service() (Event, bool)
    Send(h Handle, ch uint8, mode channel.DeliveryMode, payload []byte) error
    Configure(h Handle, p keepalive.Params) error
    // Disconnect tears the connection down at once. No local event follows
    // and the handle is released immediately.
    Disconnect(h Handle) error
    RoundTripTime(h Handle) (time.Duration, error)
    Flush() error
    Close() error
}
