package mem

import (
    "context"
    "fmt"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"

    "udplink/pkg/channel"
    "udplink/pkg/engine"
    "udplink/pkg/keepalive"
)

type msgKind uint8

const (
    msgConnect msgKind = iota + 1
    msgAccept
    msgReject
    msgData
    msgClose
    msgSevered
)

type message struct {
    kind     msgKind
    from     string
    src, dst engine.Handle
    channels int
    channel  uint8
    payload  []byte
}

// SentRecord describes one Send call, for inspection by tests.
type SentRecord struct {
    Peer    engine.Handle
    Channel uint8
    Mode    channel.DeliveryMode
    Len     int
}

type peer struct {
    remote       string
    remoteHandle engine.Handle
    connected    bool
    keep         keepalive.Params
}

// Engine is one host on a Network.
type Engine struct {
    net   *Network
    mu    sync.Mutex
    inbox []message

    cfg     engine.HostConfig
    addr    string
    started bool
    closed  bool
    handles *engine.Handles
    queue   *engine.EventQueue
    peers   map[engine.Handle]*peer
    sent    []SentRecord
}

// New returns an engine attached to n, or to Default when n is nil.
func New(n *Network) *Engine {
    if n == nil { n = Default }
    h := engine.NewHandles()
    return &Engine{net: n, handles: h, queue: engine.NewEventQueue(0, h), peers: make(map[engine.Handle]*peer)}
}

func (e *Engine) Kind() engine.Kind { return engine.KindMem }

func (e *Engine) Start(_ context.Context, cfg engine.HostConfig) error {
    if e.closed { return engine.ErrClosed }
    if e.started { return engine.ErrStarted }
    addr, err := e.net.attach(cfg.ListenAddr, e)
    if err != nil { return fmt.Errorf("mem listen %q: %w", cfg.ListenAddr, err) }
    cfg.KeepAlive = cfg.KeepAlive.Normalize()
    e.cfg, e.addr, e.started = cfg, addr, true
    zap.L().Debug("mem host started", zap.String("addr", addr), zap.Bool("listening", cfg.ListenAddr != ""))
    return nil
}

func (e *Engine) LocalAddr() net.Addr {
    if !e.started { return nil }
    return memAddr(e.addr)
}

func (e *Engine) Connect(address string) (engine.Handle, error) {
    if !e.started { return 0, engine.ErrNotStarted }
    h := e.handles.Acquire()
    remote := normalize(address)
    e.peers[h] = &peer{remote: remote, keep: e.cfg.KeepAlive}
    target := e.net.lookup(remote)
    if target == nil || e.net.isSevered(e.addr, remote) {
        delete(e.peers, h)
        e.queue.Emit(engine.Event{Type: engine.EventDisconnect, Peer: h})
        return h, nil
    }
    target.deliver(message{kind: msgConnect, from: e.addr, src: h, channels: e.cfg.ChannelCount})
    return h, nil
}

func (e *Engine) CheckEvents() (engine.Event, bool) {
    if !e.started { return engine.Event{}, false }
    return e.queue.Pop()
}

// Service processes one inbound message and pops the next event.
func (e *Engine) Service() (engine.Event, bool) {
    if !e.started { return engine.Event{}, false }
    if m, ok := e.take(); ok { e.handle(m) }
    return e.queue.Pop()
}

func (e *Engine) Send(h engine.Handle, ch uint8, mode channel.DeliveryMode, payload []byte) error {
    if !e.started { return engine.ErrNotStarted }
    p := e.peers[h]
    if p == nil || !p.connected { return fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    if int(ch) >= e.cfg.ChannelCount { return fmt.Errorf("%w: %d", engine.ErrChannelRange, ch) }
    e.sent = append(e.sent, SentRecord{Peer: h, Channel: ch, Mode: mode, Len: len(payload)})
    if e.net.isSevered(e.addr, p.remote) { return nil }
    target := e.net.lookup(p.remote)
    if target == nil { return nil }
    data := make([]byte, len(payload))
    copy(data, payload)
    target.deliver(message{kind: msgData, from: e.addr, src: h, dst: p.remoteHandle, channel: ch, payload: data})
    return nil
}

func (e *Engine) Configure(h engine.Handle, p keepalive.Params) error {
    pe := e.peers[h]
    if pe == nil { return fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    pe.keep = p.Normalize()
    return nil
}

func (e *Engine) Disconnect(h engine.Handle) error {
    p := e.peers[h]
    if p == nil { return fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    delete(e.peers, h)
    e.handles.Release(h)
    e.notifyClose(h, p)
    return nil
}

// RoundTripTime is always zero; the in-memory path has no latency.
func (e *Engine) RoundTripTime(h engine.Handle) (time.Duration, error) {
    if e.peers[h] == nil { return 0, fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    return 0, nil
}

func (e *Engine) Flush() error {
    if !e.started { return engine.ErrNotStarted }
    return nil
}

func (e *Engine) Close() error {
    if e.closed { return nil }
    e.closed = true
    if !e.started { return nil }
    for h, p := range e.peers { e.notifyClose(h, p) }
    e.peers = make(map[engine.Handle]*peer)
    e.net.detach(e.addr, e)
    e.queue.Close()
    e.started = false
    return nil
}

// SentModes returns every Send recorded so far.
func (e *Engine) SentModes() []SentRecord {
    out := make([]SentRecord, len(e.sent))
    copy(out, e.sent)
    return out
}

// KeepAlive returns the parameters applied to h.
func (e *Engine) KeepAlive(h engine.Handle) (keepalive.Params, bool) {
    p := e.peers[h]
    if p == nil { return keepalive.Params{}, false }
    return p.keep, true
}

// Pending reports whether inbound messages are waiting.
func (e *Engine) Pending() int {
    e.mu.Lock(); defer e.mu.Unlock()
    return len(e.inbox)
}

func (e *Engine) deliver(m message) {
    e.mu.Lock(); e.inbox = append(e.inbox, m); e.mu.Unlock()
}

func (e *Engine) take() (message, bool) {
    e.mu.Lock(); defer e.mu.Unlock()
    if len(e.inbox) == 0 { return message{}, false }
    m := e.inbox[0]
    e.inbox[0] = message{}
    e.inbox = e.inbox[1:]
    return m, true
}

func (e *Engine) notifyClose(h engine.Handle, p *peer) {
    if e.net.isSevered(e.addr, p.remote) { return }
    if target := e.net.lookup(p.remote); target != nil {
        target.deliver(message{kind: msgClose, from: e.addr, src: h})
    }
}

func (e *Engine) reply(to string, m message) {
    if target := e.net.lookup(to); target != nil { target.deliver(m) }
}

func (e *Engine) handle(m message) {
    switch m.kind {
    case msgConnect:
        if e.cfg.ListenAddr == "" || (e.cfg.MaxPeers > 0 && e.connected() >= e.cfg.MaxPeers) || m.channels != e.cfg.ChannelCount {
            zap.L().Debug("mem connect rejected", zap.String("from", m.from), zap.Int("channels", m.channels))
            e.reply(m.from, message{kind: msgReject, from: e.addr, dst: m.src})
            return
        }
        h := e.handles.Acquire()
        e.peers[h] = &peer{remote: m.from, remoteHandle: m.src, connected: true, keep: e.cfg.KeepAlive}
        e.reply(m.from, message{kind: msgAccept, from: e.addr, src: h, dst: m.src})
        e.queue.Emit(engine.Event{Type: engine.EventConnect, Peer: h})
    case msgAccept:
        p := e.peers[m.dst]
        if p == nil || p.connected { return }
        p.remoteHandle, p.connected = m.src, true
        e.queue.Emit(engine.Event{Type: engine.EventConnect, Peer: m.dst})
    case msgReject:
        if p := e.peers[m.dst]; p == nil || p.connected { return }
        delete(e.peers, m.dst)
        e.queue.Emit(engine.Event{Type: engine.EventDisconnect, Peer: m.dst})
    case msgData:
        p := e.peers[m.dst]
        if p == nil || !p.connected || p.remote != m.from { return }
        if int(m.channel) >= e.cfg.ChannelCount { return }
        e.queue.Emit(engine.Event{Type: engine.EventReceive, Peer: m.dst, Channel: m.channel, Packet: engine.CopyPacket(m.payload)})
    case msgClose:
        for h, p := range e.peers {
            if p.remote == m.from && p.connected && p.remoteHandle == m.src {
                delete(e.peers, h)
                e.queue.Emit(engine.Event{Type: engine.EventDisconnect, Peer: h})
                return
            }
        }
    case msgSevered:
        for h, p := range e.peers {
            if p.remote != m.from { continue }
            delete(e.peers, h)
            e.queue.Emit(engine.Event{Type: engine.EventTimeout, Peer: h})
        }
    }
}

func (e *Engine) connected() int {
    n := 0
    for _, p := range e.peers { if p.connected { n++ } }
    return n
}
