package transport

import (
    "udplink/pkg/engine"
    "udplink/pkg/engine/mem"
    "udplink/pkg/engine/quic"
    "udplink/pkg/engine/sctp"
)

// NewEngine constructs an engine by string kind.
func NewEngine(kind string) (engine.Engine, error) {
    switch engine.ParseKind(kind) {
    case engine.KindQUIC:
        return quic.New(), nil
    case engine.KindSCTP:
        return sctp.New(), nil
    case engine.KindMem:
        return mem.New(nil), nil
    default:
        return nil, ErrUnknownKind(kind)
    }
}

// ErrUnknownKind names an engine kind NewEngine does not know.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown engine kind: " + string(e) }
