package transport

import (
    "fmt"
    "time"

    "go.uber.org/zap"

    "udplink/pkg/engine"
    "udplink/pkg/identity"
)

// PollEvent returns at most one event. It first drains what the engine
// already has queued and only then performs a single service step, so an
// idle session returns Nothing without blocking.
func (s *Session) PollEvent() (Event, error) {
    if err := s.requireRunning(); err != nil { return Event{}, err }
    ev, ok := s.eng.CheckEvents()
    if !ok { ev, ok = s.eng.Service() }
    if !ok { return Event{}, nil }
    return s.translate(ev)
}

func (s *Session) translate(ev engine.Event) (Event, error) {
    switch ev.Type {
    case engine.EventConnect:
        return s.onConnect(ev), nil
    case engine.EventDisconnect, engine.EventTimeout:
        return s.onDisconnect(ev), nil
    case engine.EventReceive:
        return s.onReceive(ev)
    default:
        releasePacket(ev)
        return Event{}, nil
    }
}

func (s *Session) onConnect(ev engine.Event) Event {
    isServer := s.pending != nil && ev.Peer == s.pendingHandle
    if isServer {
        s.ids.BindServer(ev.Peer)
        s.state = StateClientConnected
    }
    id := s.ids.ToIdentity(ev.Peer, isServer)
    now := s.stamp(ev)
    if s.conns.add(ev.Peer, id, now) {
        s.log.Warn("connect for live handle, replacing entry", zap.Uint32("handle", uint32(ev.Peer)))
    }
    if err := s.eng.Configure(ev.Peer, s.opts.KeepAlive); err != nil {
        s.log.Warn("configure keepalive", zap.Uint64("identity", uint64(id)), zap.Error(err))
    }
    if isServer { s.resolvePending(true) }
    s.log.Info("peer connected", zap.Uint64("identity", uint64(id)), zap.Int("peers", s.conns.len()))
    return Event{Type: EventConnect, Identity: id, ReceiveTime: now}
}

func (s *Session) onDisconnect(ev engine.Event) Event {
    now := s.stamp(ev)
    if s.pending != nil && ev.Peer == s.pendingHandle {
        s.log.Info("connect failed", zap.String("reason", ev.Type.String()))
        s.resolvePending(false)
        if _, ok := s.conns.get(ev.Peer); !ok { return Event{Type: EventDisconnect, Identity: identity.Server, ReceiveTime: now} }
    }
    if _, ok := s.conns.get(ev.Peer); !ok { return Event{} }
    id := s.ids.Identify(ev.Peer)
    s.conns.remove(ev.Peer)
    if s.ids.IsServerHandle(ev.Peer) { s.ids.UnbindServer() }
    s.log.Info("peer disconnected", zap.Uint64("identity", uint64(id)), zap.String("reason", ev.Type.String()))
    return Event{Type: EventDisconnect, Identity: id, ReceiveTime: now}
}

func (s *Session) onReceive(ev engine.Event) (Event, error) {
    defer releasePacket(ev)
    e, ok := s.conns.get(ev.Peer)
    if !ok { return Event{}, nil }
    name, err := s.channels.NameOf(ev.Channel)
    if err != nil { return Event{}, fmt.Errorf("receive from %d: %w", e.stats.Identity, err) }
    n := 0
    var buf []byte
    if ev.Packet != nil {
        buf = s.buffers.Acquire(ev.Packet.Len())
        n = ev.Packet.CopyTo(buf)
    }
    now := s.stamp(ev)
    e.received(n, now)
    return Event{Type: EventData, Identity: e.stats.Identity, Channel: name, Payload: buf[:n:n], ReceiveTime: now}, nil
}

// stamp prefers the engine's own receive time.
func (s *Session) stamp(ev engine.Event) time.Time {
    if !ev.ReceivedAt.IsZero() { return ev.ReceivedAt }
    return s.opts.Clock()
}

func releasePacket(ev engine.Event) {
    if ev.Packet != nil { ev.Packet.Release() }
}
