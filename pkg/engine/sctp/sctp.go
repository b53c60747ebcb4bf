// Package sctp is an engine that runs one SCTP association per peer over
// UDP using pion/sctp. Stream 0 carries control frames; channel c uses
// stream c+1 with partial reliability chosen by the channel's mode.
package sctp

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"
    "time"

    "github.com/pion/sctp"
    "github.com/pion/transport/v2/udp"
    "go.uber.org/zap"

    "udplink/pkg/channel"
    "udplink/pkg/engine"
    "udplink/pkg/keepalive"
    "udplink/pkg/observability"
)

// MaxMessageSize bounds one SCTP user message.
const MaxMessageSize = 64 << 10

// Engine implements engine.Engine. A listening engine demultiplexes one
// UDP socket per remote with pion's udp listener; outbound connections
// each dial their own UDP socket.
type Engine struct {
    mu      sync.Mutex
    cfg     engine.HostConfig
    ctx     context.Context
    cancel  context.CancelFunc
    ln      net.Listener
    local   net.Addr
    handles *engine.Handles
    queue   *engine.EventQueue
    peers   map[engine.Handle]*peer
    dials   map[engine.Handle]net.Conn
    started bool
    closed  bool
    wg      sync.WaitGroup
    now     func() time.Time
}

func New() *Engine {
    h := engine.NewHandles()
    return &Engine{
        handles: h,
        queue:   engine.NewEventQueue(0, h),
        peers:   make(map[engine.Handle]*peer),
        dials:   make(map[engine.Handle]net.Conn),
        now:     time.Now,
    }
}

func (e *Engine) Kind() engine.Kind { return engine.KindSCTP }

func (e *Engine) Start(ctx context.Context, cfg engine.HostConfig) error {
    e.mu.Lock(); defer e.mu.Unlock()
    if e.closed { return engine.ErrClosed }
    if e.started { return engine.ErrStarted }
    cfg.KeepAlive = cfg.KeepAlive.Normalize()
    e.cfg = cfg
    e.ctx, e.cancel = context.WithCancel(ctx)
    if cfg.ListenAddr != "" {
        laddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
        if err != nil { e.cancel(); return fmt.Errorf("sctp resolve %q: %w", cfg.ListenAddr, err) }
        ln, err := (&udp.ListenConfig{}).Listen("udp", laddr)
        if err != nil { e.cancel(); return fmt.Errorf("sctp listen %q: %w", cfg.ListenAddr, err) }
        e.ln, e.local = ln, ln.Addr()
        e.wg.Add(1)
        go e.acceptLoop()
        zap.L().Info("sctp listening", zap.String("addr", e.local.String()), zap.Int("max_peers", cfg.MaxPeers))
    }
    e.started = true
    return nil
}

// LocalAddr is the listening address, or the local address of the most
// recent outbound socket on a client host.
func (e *Engine) LocalAddr() net.Addr {
    e.mu.Lock(); defer e.mu.Unlock()
    return e.local
}

func (e *Engine) Connect(address string) (engine.Handle, error) {
    e.mu.Lock(); defer e.mu.Unlock()
    if !e.started { return 0, engine.ErrNotStarted }
    raddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return 0, fmt.Errorf("sctp resolve %q: %w", address, err) }
    conn, err := net.DialUDP("udp", nil, raddr)
    if err != nil { return 0, fmt.Errorf("sctp dial %q: %w", address, err) }
    if e.ln == nil { e.local = conn.LocalAddr() }
    h := e.handles.Acquire()
    e.dials[h] = conn
    e.wg.Add(1)
    go e.dial(h, conn)
    return h, nil
}

func (e *Engine) CheckEvents() (engine.Event, bool) { return e.queue.Pop() }

func (e *Engine) Service() (engine.Event, bool) {
    e.queue.Drain(engine.DefaultQueueDepth)
    return e.queue.Pop()
}

func (e *Engine) Send(h engine.Handle, ch uint8, mode channel.DeliveryMode, payload []byte) error {
    p, err := e.peer(h)
    if err != nil { return err }
    if int(ch) >= e.cfg.ChannelCount { return fmt.Errorf("%w: %d", engine.ErrChannelRange, ch) }
    if len(payload) > MaxMessageSize { return fmt.Errorf("%w: %d bytes", engine.ErrFrameTooLarge, len(payload)) }
    return p.send(ch, mode, payload)
}

func (e *Engine) Configure(h engine.Handle, kp keepalive.Params) error {
    p, err := e.peer(h)
    if err != nil { return err }
    p.mon.Configure(kp)
    return nil
}

func (e *Engine) Disconnect(h engine.Handle) error {
    e.mu.Lock()
    if conn, ok := e.dials[h]; ok {
        delete(e.dials, h)
        e.mu.Unlock()
        e.handles.Release(h)
        _ = conn.Close()
        return nil
    }
    p := e.peers[h]
    delete(e.peers, h)
    e.mu.Unlock()
    if p == nil { return fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    e.handles.Release(h)
    p.abort()
    return nil
}

func (e *Engine) RoundTripTime(h engine.Handle) (time.Duration, error) {
    p, err := e.peer(h)
    if err != nil { return 0, err }
    return p.mon.RTT(), nil
}

// flushWait bounds how long Flush waits for queued data to drain.
const flushWait = 250 * time.Millisecond

// Flush waits briefly for every stream's buffered amount to reach zero.
func (e *Engine) Flush() error {
    e.mu.Lock()
    if !e.started { e.mu.Unlock(); return engine.ErrNotStarted }
    peers := make([]*peer, 0, len(e.peers))
    for _, p := range e.peers { peers = append(peers, p) }
    e.mu.Unlock()
    deadline := time.Now().Add(flushWait)
    for _, p := range peers {
        for p.buffered() > 0 {
            if time.Now().After(deadline) { return fmt.Errorf("sctp flush: %d bytes still queued", p.buffered()) }
            time.Sleep(5 * time.Millisecond)
        }
    }
    return nil
}

func (e *Engine) Close() error {
    e.mu.Lock()
    if e.closed { e.mu.Unlock(); return nil }
    e.closed = true
    if !e.started { e.mu.Unlock(); return nil }
    peers := e.peers
    e.peers = make(map[engine.Handle]*peer)
    for h, conn := range e.dials { _ = conn.Close(); delete(e.dials, h) }
    e.mu.Unlock()

    for _, p := range peers { p.abort() }
    e.cancel()
    var err error
    if e.ln != nil { err = e.ln.Close() }
    e.queue.Stop()
    e.wg.Wait()
    e.queue.Close()
    return err
}

func (e *Engine) peer(h engine.Handle) (*peer, error) {
    e.mu.Lock(); defer e.mu.Unlock()
    if !e.started { return nil, engine.ErrNotStarted }
    p := e.peers[h]
    if p == nil { return nil, fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    return p, nil
}

func (e *Engine) sctpConfig(conn net.Conn) sctp.Config {
    return sctp.Config{
        NetConn:        conn,
        MaxMessageSize: MaxMessageSize,
        LoggerFactory:  observability.PionLoggerFactory(nil),
    }
}

func (e *Engine) acceptLoop() {
    defer e.wg.Done()
    for {
        conn, err := e.ln.Accept()
        if err != nil {
            if e.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) { zap.L().Warn("sctp accept failed", zap.Error(err)) }
            return
        }
        e.wg.Add(1)
        go e.accept(conn)
    }
}

// handshake runs fn with the connection closed if it outlasts the
// handshake timeout, which unblocks pion's association setup.
func (e *Engine) handshake(conn net.Conn, fn func() error) error {
    t := time.AfterFunc(e.cfg.KeepAlive.TimeoutMinimum, func() { _ = conn.Close() })
    defer t.Stop()
    return fn()
}

func (e *Engine) accept(conn net.Conn) {
    defer e.wg.Done()
    log := zap.L().With(zap.String("raddr", conn.RemoteAddr().String()))
    var p *peer
    err := e.handshake(conn, func() error {
        assoc, err := sctp.Server(e.sctpConfig(conn))
        if err != nil { return err }
        if e.full() {
            _ = assoc.Close()
            return engine.ErrPeerLimit
        }
        ctrl, err := assoc.AcceptStream()
        if err != nil { _ = assoc.Close(); return err }
        if ctrl.StreamIdentifier() != engine.ControlStream { _ = assoc.Close(); return fmt.Errorf("%w: first stream %d", engine.ErrMalformed, ctrl.StreamIdentifier()) }
        p = newPeer(e, conn, assoc, ctrl)
        if err := p.expectHello(); err != nil { _ = assoc.Close(); return err }
        if err := p.openChannels(); err != nil { _ = assoc.Close(); return err }
        return p.writeControl(engine.Hello(e.cfg.ChannelCount))
    })
    if err != nil {
        log.Info("sctp peer rejected", zap.Error(err))
        _ = conn.Close()
        return
    }
    e.mu.Lock()
    if e.closed || (e.cfg.MaxPeers > 0 && len(e.peers) >= e.cfg.MaxPeers) {
        e.mu.Unlock()
        p.abort()
        return
    }
    p.h = e.handles.Acquire()
    e.peers[p.h] = p
    e.mu.Unlock()
    log.Info("sctp peer connected", zap.Uint32("handle", uint32(p.h)))
    e.queue.Push(engine.Event{Type: engine.EventConnect, Peer: p.h})
    p.start()
}

func (e *Engine) dial(h engine.Handle, conn net.Conn) {
    defer e.wg.Done()
    log := zap.L().With(zap.String("raddr", conn.RemoteAddr().String()), zap.Uint32("handle", uint32(h)))
    var p *peer
    err := e.handshake(conn, func() error {
        assoc, err := sctp.Client(e.sctpConfig(conn))
        if err != nil { return err }
        ctrl, err := assoc.OpenStream(engine.ControlStream, sctp.PayloadTypeWebRTCBinary)
        if err != nil { _ = assoc.Close(); return err }
        p = newPeer(e, conn, assoc, ctrl)
        p.h = h
        if err := p.openChannels(); err != nil { _ = assoc.Close(); return err }
        if err := p.writeControl(engine.Hello(e.cfg.ChannelCount)); err != nil { _ = assoc.Close(); return err }
        if err := p.expectHello(); err != nil { _ = assoc.Close(); return err }
        return nil
    })
    e.mu.Lock()
    _, pending := e.dials[h]
    delete(e.dials, h)
    if err == nil && pending && !e.closed { e.peers[h] = p }
    e.mu.Unlock()
    if err != nil {
        log.Info("sctp connect failed", zap.Error(err))
        _ = conn.Close()
        e.queue.Push(engine.Event{Type: engine.EventDisconnect, Peer: h})
        return
    }
    if !pending {
        p.abort()
        return
    }
    log.Info("sctp connected")
    e.queue.Push(engine.Event{Type: engine.EventConnect, Peer: h})
    p.start()
}

func (e *Engine) full() bool {
    e.mu.Lock(); defer e.mu.Unlock()
    return e.cfg.MaxPeers > 0 && len(e.peers) >= e.cfg.MaxPeers
}

func (e *Engine) drop(p *peer, typ engine.EventType) {
    e.mu.Lock()
    cur, ok := e.peers[p.h]
    if ok && cur == p { delete(e.peers, p.h) }
    e.mu.Unlock()
    if !ok || cur != p { return }
    e.queue.Push(engine.Event{Type: typ, Peer: p.h})
}
