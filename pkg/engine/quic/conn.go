package quic

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "sync"
    "sync/atomic"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "udplink/pkg/engine"
    "udplink/pkg/keepalive"
)

var errTimedOut = errors.New("quic: keepalive timeout")

// control is the bidirectional control stream of one connection.
type control struct {
    mu sync.Mutex
    st quicgo.Stream
    br *bufio.Reader
}

// newControl wraps st. The dialer writes the preamble, the acceptor
// checks it.
func newControl(st quicgo.Stream, dialer bool) (*control, error) {
    c := &control{st: st, br: bufio.NewReader(st)}
    if dialer {
        if _, err := st.Write(engine.AppendPreamble(nil, engine.ControlStream)); err != nil { return nil, err }
        return c, nil
    }
    id, err := engine.ReadPreamble(c.br)
    if err != nil { return nil, err }
    if id != engine.ControlStream { return nil, fmt.Errorf("%w: control preamble %d", engine.ErrMalformed, id) }
    return c, nil
}

func (c *control) write(m engine.Control) error {
    b, err := engine.EncodeControl(m)
    if err != nil { return err }
    c.mu.Lock(); defer c.mu.Unlock()
    return engine.WriteFrame(c.st, b)
}

func (c *control) read() (engine.Control, error) {
    p, err := engine.ReadFrame(c.br)
    if err != nil { return engine.Control{}, err }
    defer p.Release()
    return engine.DecodeControl(p.Bytes())
}

func (c *control) expectHello(channels int, deadline time.Time) error {
    if !deadline.IsZero() { _ = c.st.SetReadDeadline(deadline) }
    m, err := c.read()
    _ = c.st.SetReadDeadline(time.Time{})
    if err != nil { return err }
    return engine.CheckHello(m, channels)
}

// peer is one established connection.
type peer struct {
    e         *Engine
    h         engine.Handle
    conn      quicgo.Connection
    ctrl      *control
    mon       *keepalive.Monitor
    datagrams bool
    ctx       context.Context
    cancel    context.CancelFunc
    aborted   atomic.Bool

    // poll goroutine only
    out [256]quicgo.SendStream
    seq engine.Sequencer
}

func newPeer(e *Engine, h engine.Handle, conn quicgo.Connection, ctrl *control) *peer {
    ctx, cancel := context.WithCancel(e.ctx)
    return &peer{
        e: e, h: h, conn: conn, ctrl: ctrl,
        mon:       keepalive.New(e.cfg.KeepAlive, e.now()),
        datagrams: conn.ConnectionState().SupportsDatagrams,
        ctx:       ctx,
        cancel:    cancel,
    }
}

// sendStream writes payload on the reliable stream of ch, opening it on
// first use.
func (p *peer) sendStream(ch uint8, payload []byte) error {
    st := p.out[ch]
    if st == nil {
        var err error
        st, err = p.conn.OpenUniStream()
        if err != nil { return fmt.Errorf("quic open stream %d: %w", ch, err) }
        if _, err := st.Write(engine.AppendPreamble(nil, uint64(ch)+1)); err != nil { return fmt.Errorf("quic stream preamble: %w", err) }
        p.out[ch] = st
    }
    if err := engine.WriteFrame(st, payload); err != nil { return fmt.Errorf("quic stream %d: %w", ch, err) }
    return nil
}

// abort closes the connection without reporting an event.
func (p *peer) abort(code quicgo.ApplicationErrorCode, reason string) {
    p.aborted.Store(true)
    p.cancel()
    _ = p.conn.CloseWithError(code, reason)
}

func (p *peer) start() {
    p.e.wg.Add(1)
    go p.run()
}

func (p *peer) run() {
    defer p.e.wg.Done()
    g, ctx := errgroup.WithContext(p.ctx)
    g.Go(func() error { return p.readControl() })
    g.Go(func() error { return p.readDatagrams(ctx) })
    g.Go(func() error { return p.acceptStreams(ctx, g) })
    g.Go(func() error { return p.keepalive(ctx) })
    g.Go(func() error {
        <-ctx.Done()
        code := codeNone
        if errors.Is(context.Cause(ctx), errTimedOut) { code = codeTimeout }
        _ = p.conn.CloseWithError(code, "")
        return nil
    })
    err := g.Wait()
    if p.aborted.Load() { return }
    typ := engine.EventDisconnect
    var idle *quicgo.IdleTimeoutError
    if errors.Is(err, errTimedOut) || errors.As(err, &idle) { typ = engine.EventTimeout }
    zap.L().Info("quic peer closed", zap.Uint32("handle", uint32(p.h)), zap.String("event", typ.String()), zap.Error(err))
    p.e.drop(p, typ)
}

func (p *peer) readControl() error {
    for {
        m, err := p.ctrl.read()
        if err != nil { return err }
        now := p.e.now()
        p.mon.Received(now)
        switch m.Kind {
        case engine.ControlPing:
            if err := p.ctrl.write(m.Pong()); err != nil { return err }
        case engine.ControlPong:
            p.mon.Pong(m.SentTime(), now)
        }
    }
}

func (p *peer) readDatagrams(ctx context.Context) error {
    var filter engine.SequenceFilter
    for {
        b, err := p.conn.ReceiveDatagram(ctx)
        if err != nil { return err }
        now := p.e.now()
        p.mon.Received(now)
        ch, seq, payload, err := engine.ParseDatagram(b)
        if err != nil || int(ch) >= p.e.cfg.ChannelCount {
            zap.L().Debug("quic datagram dropped", zap.Uint32("handle", uint32(p.h)), zap.Error(err))
            continue
        }
        if seq != 0 && !filter.Accept(ch, seq) { continue }
        p.e.queue.Push(engine.Event{Type: engine.EventReceive, Peer: p.h, Channel: ch, Packet: engine.WrapPacket(payload), ReceivedAt: now})
    }
}

func (p *peer) acceptStreams(ctx context.Context, g *errgroup.Group) error {
    for {
        st, err := p.conn.AcceptUniStream(ctx)
        if err != nil { return err }
        g.Go(func() error { return p.readStream(st) })
    }
}

// readStream delivers frames of one reliable channel. A malformed stream is
// cancelled alone; the connection survives.
func (p *peer) readStream(st quicgo.ReceiveStream) error {
    br := bufio.NewReader(st)
    id, err := engine.ReadPreamble(br)
    if err != nil || id == engine.ControlStream || id > uint64(p.e.cfg.ChannelCount) {
        zap.L().Debug("quic stream rejected", zap.Uint32("handle", uint32(p.h)), zap.Uint64("stream", id), zap.Error(err))
        st.CancelRead(0)
        return nil
    }
    ch := uint8(id - 1)
    for {
        pkt, err := engine.ReadFrame(br)
        if err != nil {
            if errors.Is(err, io.EOF) { return nil }
            return err
        }
        now := p.e.now()
        p.mon.Received(now)
        p.e.queue.Push(engine.Event{Type: engine.EventReceive, Peer: p.h, Channel: ch, Packet: pkt, ReceivedAt: now})
    }
}

func (p *peer) keepalive(ctx context.Context) error {
    interval := p.mon.Params().PingInterval
    t := time.NewTicker(interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-t.C:
        }
        now := p.e.now()
        a := p.mon.Tick(now)
        if a.TimedOut { return errTimedOut }
        if a.Ping {
            if err := p.ctrl.write(engine.Ping(a.Seq, now)); err != nil { return err }
        }
        if cur := p.mon.Params().PingInterval; cur != interval {
            interval = cur
            t.Reset(interval)
        }
    }
}
