// Package quic is an engine backed by quic-go. Reliable channels travel on
// one unidirectional stream each, unreliable channels on QUIC datagrams.
package quic

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"

    "udplink/pkg/channel"
    "udplink/pkg/engine"
    "udplink/pkg/keepalive"
)

// Application close codes.
const (
    codeNone      quicgo.ApplicationErrorCode = 0
    codeTimeout   quicgo.ApplicationErrorCode = 1
    codePeerLimit quicgo.ApplicationErrorCode = 2
    codeHandshake quicgo.ApplicationErrorCode = 3
)

// maxDatagram is the largest datagram frame sent; larger unreliable
// payloads go on the channel's stream.
const maxDatagram = 1100

// Engine implements engine.Engine over one UDP socket.
type Engine struct {
    mu      sync.Mutex
    cfg     engine.HostConfig
    ctx     context.Context
    cancel  context.CancelFunc
    udp     *net.UDPConn
    tr      *quicgo.Transport
    ln      *quicgo.Listener
    srvTLS  *tls.Config
    cliTLS  *tls.Config
    qconf   *quicgo.Config
    handles *engine.Handles
    queue   *engine.EventQueue
    peers   map[engine.Handle]*peer
    dials   map[engine.Handle]context.CancelFunc
    started bool
    closed  bool
    wg      sync.WaitGroup
    scratch []byte
    now     func() time.Time
}

func New() *Engine {
    h := engine.NewHandles()
    return &Engine{
        handles: h,
        queue:   engine.NewEventQueue(0, h),
        peers:   make(map[engine.Handle]*peer),
        dials:   make(map[engine.Handle]context.CancelFunc),
        now:     time.Now,
    }
}

func (e *Engine) Kind() engine.Kind { return engine.KindQUIC }

func (e *Engine) Start(ctx context.Context, cfg engine.HostConfig) error {
    e.mu.Lock(); defer e.mu.Unlock()
    if e.closed { return engine.ErrClosed }
    if e.started { return engine.ErrStarted }
    cfg.KeepAlive = cfg.KeepAlive.Normalize()

    laddr := &net.UDPAddr{}
    if cfg.ListenAddr != "" {
        a, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
        if err != nil { return fmt.Errorf("quic resolve %q: %w", cfg.ListenAddr, err) }
        laddr = a
    }
    udp, err := net.ListenUDP("udp", laddr)
    if err != nil { return fmt.Errorf("quic listen udp: %w", err) }

    srvTLS, err := serverTLS()
    if err != nil { _ = udp.Close(); return fmt.Errorf("quic tls: %w", err) }
    e.srvTLS, e.cliTLS = srvTLS, clientTLS()
    e.qconf = &quicgo.Config{
        EnableDatagrams:       true,
        KeepAlivePeriod:       cfg.KeepAlive.PingInterval,
        MaxIdleTimeout:        cfg.KeepAlive.TimeoutMaximum,
        HandshakeIdleTimeout:  cfg.KeepAlive.TimeoutMinimum,
        MaxIncomingUniStreams: int64(channel.MaxChannels),
    }
    e.tr = &quicgo.Transport{Conn: udp}
    e.udp = udp
    e.cfg = cfg
    e.ctx, e.cancel = context.WithCancel(ctx)

    if cfg.ListenAddr != "" {
        ln, err := e.tr.Listen(e.srvTLS, e.qconf)
        if err != nil {
            _ = e.tr.Close(); _ = udp.Close(); e.cancel()
            return fmt.Errorf("quic listen %q: %w", cfg.ListenAddr, err)
        }
        e.ln = ln
        e.wg.Add(1)
        go e.acceptLoop()
        zap.L().Info("quic listening", zap.String("addr", udp.LocalAddr().String()), zap.Int("max_peers", cfg.MaxPeers))
    }
    e.started = true
    return nil
}

func (e *Engine) LocalAddr() net.Addr {
    e.mu.Lock(); defer e.mu.Unlock()
    if e.udp == nil { return nil }
    return e.udp.LocalAddr()
}

func (e *Engine) Connect(address string) (engine.Handle, error) {
    e.mu.Lock(); defer e.mu.Unlock()
    if !e.started { return 0, engine.ErrNotStarted }
    raddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return 0, fmt.Errorf("quic resolve %q: %w", address, err) }
    h := e.handles.Acquire()
    ctx, cancel := context.WithTimeout(e.ctx, e.cfg.KeepAlive.TimeoutMinimum)
    e.dials[h] = cancel
    e.wg.Add(1)
    go e.dial(ctx, h, raddr)
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
    if mode == channel.ReliableOrdered { return p.sendStream(ch, payload) }
    var seq uint32
    if mode == channel.UnreliableSequenced { seq = p.seq.Next(ch) }
    e.scratch = engine.AppendDatagram(e.scratch[:0], ch, seq, payload)
    if len(e.scratch) > maxDatagram || !p.datagrams { return p.sendStream(ch, payload) }
    if err := p.conn.SendDatagram(e.scratch); err != nil { return fmt.Errorf("quic datagram: %w", err) }
    return nil
}

func (e *Engine) Configure(h engine.Handle, kp keepalive.Params) error {
    p, err := e.peer(h)
    if err != nil { return err }
    p.mon.Configure(kp)
    return nil
}

func (e *Engine) Disconnect(h engine.Handle) error {
    e.mu.Lock()
    if cancel, ok := e.dials[h]; ok {
        delete(e.dials, h)
        e.mu.Unlock()
        cancel()
        e.handles.Release(h)
        return nil
    }
    p := e.peers[h]
    delete(e.peers, h)
    e.mu.Unlock()
    if p == nil { return fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    e.handles.Release(h)
    p.abort(codeNone, "disconnect")
    return nil
}

func (e *Engine) RoundTripTime(h engine.Handle) (time.Duration, error) {
    p, err := e.peer(h)
    if err != nil { return 0, err }
    return p.mon.RTT(), nil
}

// Flush is a no-op: quic-go owns the send buffers once Write returns.
func (e *Engine) Flush() error {
    e.mu.Lock(); defer e.mu.Unlock()
    if !e.started { return engine.ErrNotStarted }
    return nil
}

func (e *Engine) Close() error {
    e.mu.Lock()
    if e.closed { e.mu.Unlock(); return nil }
    e.closed = true
    if !e.started { e.mu.Unlock(); return nil }
    peers := e.peers
    e.peers = make(map[engine.Handle]*peer)
    for h, cancel := range e.dials { cancel(); delete(e.dials, h) }
    e.mu.Unlock()

    for _, p := range peers { p.abort(codeNone, "shutdown") }
    e.cancel()
    var errs []error
    if e.ln != nil { errs = append(errs, e.ln.Close()) }
    errs = append(errs, e.tr.Close())
    _ = e.udp.Close()
    e.queue.Stop()
    e.wg.Wait()
    e.queue.Close()
    return errors.Join(errs...)
}

func (e *Engine) peer(h engine.Handle) (*peer, error) {
    e.mu.Lock(); defer e.mu.Unlock()
    if !e.started { return nil, engine.ErrNotStarted }
    p := e.peers[h]
    if p == nil { return nil, fmt.Errorf("%w: %d", engine.ErrUnknownHandle, h) }
    return p, nil
}

func (e *Engine) acceptLoop() {
    defer e.wg.Done()
    for {
        conn, err := e.ln.Accept(e.ctx)
        if err != nil {
            if e.ctx.Err() == nil { zap.L().Warn("quic accept failed", zap.Error(err)) }
            return
        }
        e.wg.Add(1)
        go e.accept(conn)
    }
}

// accept runs the server side of the hello exchange.
func (e *Engine) accept(conn quicgo.Connection) {
    defer e.wg.Done()
    log := zap.L().With(zap.String("raddr", conn.RemoteAddr().String()))
    if e.full() {
        log.Info("quic peer rejected: peer limit")
        _ = conn.CloseWithError(codePeerLimit, engine.ErrPeerLimit.Error())
        return
    }
    ctx, cancel := context.WithTimeout(e.ctx, e.cfg.KeepAlive.TimeoutMinimum)
    defer cancel()
    st, err := conn.AcceptStream(ctx)
    if err != nil { log.Debug("quic control stream not opened", zap.Error(err)); _ = conn.CloseWithError(codeHandshake, "no control stream"); return }
    ctrl, err := newControl(st, false)
    if err != nil { log.Debug("quic control preamble", zap.Error(err)); _ = conn.CloseWithError(codeHandshake, err.Error()); return }
    if err := ctrl.expectHello(e.cfg.ChannelCount, time.Now().Add(e.cfg.KeepAlive.TimeoutMinimum)); err != nil {
        log.Info("quic hello rejected", zap.Error(err))
        _ = conn.CloseWithError(codeHandshake, err.Error())
        return
    }
    if err := ctrl.write(engine.Hello(e.cfg.ChannelCount)); err != nil { _ = conn.CloseWithError(codeHandshake, err.Error()); return }

    e.mu.Lock()
    if e.closed || (e.cfg.MaxPeers > 0 && len(e.peers) >= e.cfg.MaxPeers) {
        e.mu.Unlock()
        _ = conn.CloseWithError(codePeerLimit, engine.ErrPeerLimit.Error())
        return
    }
    h := e.handles.Acquire()
    p := newPeer(e, h, conn, ctrl)
    e.peers[h] = p
    e.mu.Unlock()
    log.Info("quic peer connected", zap.Uint32("handle", uint32(h)))
    e.queue.Push(engine.Event{Type: engine.EventConnect, Peer: h})
    p.start()
}

// dial runs the client side of the hello exchange for h.
func (e *Engine) dial(ctx context.Context, h engine.Handle, raddr *net.UDPAddr) {
    defer e.wg.Done()
    log := zap.L().With(zap.String("raddr", raddr.String()), zap.Uint32("handle", uint32(h)))
    fail := func(err error) {
        log.Info("quic connect failed", zap.Error(err))
        e.mu.Lock(); delete(e.dials, h); e.mu.Unlock()
        e.queue.Push(engine.Event{Type: engine.EventDisconnect, Peer: h})
    }
    conn, err := e.tr.Dial(ctx, raddr, e.cliTLS, e.qconf)
    if err != nil { fail(err); return }
    st, err := conn.OpenStreamSync(ctx)
    if err != nil { _ = conn.CloseWithError(codeHandshake, "control stream"); fail(err); return }
    ctrl, err := newControl(st, true)
    if err == nil { err = ctrl.write(engine.Hello(e.cfg.ChannelCount)) }
    if err == nil {
        deadline, _ := ctx.Deadline()
        err = ctrl.expectHello(e.cfg.ChannelCount, deadline)
    }
    if err != nil { _ = conn.CloseWithError(codeHandshake, err.Error()); fail(err); return }

    e.mu.Lock()
    cancel, pending := e.dials[h]
    if !pending {
        e.mu.Unlock()
        _ = conn.CloseWithError(codeNone, "disconnect")
        return
    }
    delete(e.dials, h)
    p := newPeer(e, h, conn, ctrl)
    e.peers[h] = p
    e.mu.Unlock()
    cancel()
    log.Info("quic connected")
    e.queue.Push(engine.Event{Type: engine.EventConnect, Peer: h})
    p.start()
}

func (e *Engine) full() bool {
    e.mu.Lock(); defer e.mu.Unlock()
    return e.cfg.MaxPeers > 0 && len(e.peers) >= e.cfg.MaxPeers
}

// drop removes a peer that ended on its own and reports why.
func (e *Engine) drop(p *peer, typ engine.EventType) {
    e.mu.Lock()
    cur, ok := e.peers[p.h]
    if ok && cur == p { delete(e.peers, p.h) }
    e.mu.Unlock()
    if !ok || cur != p { return }
    e.queue.Push(engine.Event{Type: typ, Peer: p.h})
}
