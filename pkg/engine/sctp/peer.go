package sctp

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "github.com/pion/sctp"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "udplink/pkg/channel"
    "udplink/pkg/engine"
    "udplink/pkg/keepalive"
)

var (
    errTimedOut = errors.New("sctp: keepalive timeout")
    errBye      = errors.New("sctp: remote disconnected")
)

// byeLinger bounds how long a closing peer waits for its bye to be acked.
const byeLinger = 300 * time.Millisecond

type peer struct {
    e       *Engine
    h       engine.Handle
    conn    net.Conn
    assoc   *sctp.Association
    ctrl    *sctp.Stream
    ctrlMu  sync.Mutex
    mon     *keepalive.Monitor
    ctx     context.Context
    cancel  context.CancelFunc
    aborted atomic.Bool

    // streams[c] carries channel c; written from the poll goroutine only.
    streams []*sctp.Stream
    modes   []channel.DeliveryMode
    modeSet []bool
}

func newPeer(e *Engine, conn net.Conn, assoc *sctp.Association, ctrl *sctp.Stream) *peer {
    ctx, cancel := context.WithCancel(e.ctx)
    ctrl.SetReliabilityParams(false, sctp.ReliabilityTypeReliable, 0)
    return &peer{
        e: e, conn: conn, assoc: assoc, ctrl: ctrl,
        mon:    keepalive.New(e.cfg.KeepAlive, e.now()),
        ctx:    ctx,
        cancel: cancel,
    }
}

// openChannels opens stream c+1 for every channel c.
func (p *peer) openChannels() error {
    n := p.e.cfg.ChannelCount
    p.streams = make([]*sctp.Stream, n)
    p.modes = make([]channel.DeliveryMode, n)
    p.modeSet = make([]bool, n)
    for c := 0; c < n; c++ {
        st, err := p.assoc.OpenStream(uint16(c+1), sctp.PayloadTypeWebRTCBinary)
        if err != nil { return fmt.Errorf("sctp open stream %d: %w", c+1, err) }
        p.streams[c] = st
    }
    return nil
}

func (p *peer) writeControl(m engine.Control) error {
    b, err := engine.EncodeControl(m)
    if err != nil { return err }
    p.ctrlMu.Lock(); defer p.ctrlMu.Unlock()
    _, err = p.ctrl.Write(b)
    return err
}

func (p *peer) readControl(buf []byte) (engine.Control, error) {
    n, err := p.ctrl.Read(buf)
    if err != nil { return engine.Control{}, err }
    return engine.DecodeControl(buf[:n])
}

func (p *peer) expectHello() error {
    buf := make([]byte, 256)
    m, err := p.readControl(buf)
    if err != nil { return err }
    return engine.CheckHello(m, p.e.cfg.ChannelCount)
}

func reliability(mode channel.DeliveryMode) (unordered bool, relType byte) {
    switch mode {
    case channel.ReliableOrdered:
        return false, sctp.ReliabilityTypeReliable
    case channel.UnreliableSequenced:
        return false, sctp.ReliabilityTypeRexmit
    default:
        return true, sctp.ReliabilityTypeRexmit
    }
}

// send writes one message. Empty payloads use the binary-empty payload
// type with a single filler byte, as WebRTC data channels do.
func (p *peer) send(ch uint8, mode channel.DeliveryMode, payload []byte) error {
    st := p.streams[ch]
    if !p.modeSet[ch] || p.modes[ch] != mode {
        unordered, rel := reliability(mode)
        st.SetReliabilityParams(unordered, rel, 0)
        p.modes[ch], p.modeSet[ch] = mode, true
    }
    var err error
    if len(payload) == 0 {
        _, err = st.WriteSCTP([]byte{0}, sctp.PayloadTypeWebRTCBinaryEmpty)
    } else {
        _, err = st.WriteSCTP(payload, sctp.PayloadTypeWebRTCBinary)
    }
    if err != nil { return fmt.Errorf("sctp stream %d: %w", ch+1, err) }
    return nil
}

func (p *peer) buffered() uint64 {
    var n uint64
    for _, st := range p.streams { n += st.BufferedAmount() }
    return n
}

// abort announces the disconnect to the remote and closes the association
// shortly after, without reporting an event.
func (p *peer) abort() {
    if p.aborted.Swap(true) { return }
    if err := p.writeControl(engine.Control{Kind: engine.ControlBye}); err != nil {
        p.cancel()
        _ = p.assoc.Close()
        _ = p.conn.Close()
        return
    }
    p.e.wg.Add(1)
    go func() {
        defer p.e.wg.Done()
        deadline := time.Now().Add(byeLinger)
        for p.ctrl.BufferedAmount() > 0 && time.Now().Before(deadline) { time.Sleep(5 * time.Millisecond) }
        p.cancel()
        _ = p.assoc.Close()
        _ = p.conn.Close()
    }()
}

func (p *peer) start() {
    p.e.wg.Add(1)
    go p.run()
}

func (p *peer) run() {
    defer p.e.wg.Done()
    g, ctx := errgroup.WithContext(p.ctx)
    g.Go(p.controlLoop)
    for c, st := range p.streams {
        g.Go(func() error { return p.streamLoop(uint8(c), st) })
    }
    g.Go(p.rejectStreams)
    g.Go(func() error { return p.keepalive(ctx) })
    g.Go(func() error {
        <-ctx.Done()
        _ = p.assoc.Close()
        _ = p.conn.Close()
        return nil
    })
    err := g.Wait()
    if p.aborted.Load() { return }
    typ := engine.EventDisconnect
    if errors.Is(err, errTimedOut) { typ = engine.EventTimeout }
    zap.L().Info("sctp peer closed", zap.Uint32("handle", uint32(p.h)), zap.String("event", typ.String()), zap.Error(err))
    p.e.drop(p, typ)
}

func (p *peer) controlLoop() error {
    buf := make([]byte, 256)
    for {
        m, err := p.readControl(buf)
        if err != nil {
            if errors.Is(err, engine.ErrMalformed) { continue }
            return err
        }
        now := p.e.now()
        p.mon.Received(now)
        switch m.Kind {
        case engine.ControlPing:
            if err := p.writeControl(m.Pong()); err != nil { return err }
        case engine.ControlPong:
            p.mon.Pong(m.SentTime(), now)
        case engine.ControlBye:
            return errBye
        }
    }
}

func (p *peer) streamLoop(ch uint8, st *sctp.Stream) error {
    for {
        pkt := engine.GetBuffer(MaxMessageSize)
        n, ppi, err := st.ReadSCTP(pkt.Space())
        if err != nil { pkt.Release(); return err }
        if ppi == sctp.PayloadTypeWebRTCBinaryEmpty { n = 0 }
        pkt.SetLen(n)
        now := p.e.now()
        p.mon.Received(now)
        p.e.queue.Push(engine.Event{Type: engine.EventReceive, Peer: p.h, Channel: ch, Packet: pkt, ReceivedAt: now})
    }
}

// rejectStreams drains streams the remote opens beyond the channel set so
// pion's accept queue never fills.
func (p *peer) rejectStreams() error {
    for {
        st, err := p.assoc.AcceptStream()
        if err != nil { return err }
        zap.L().Debug("sctp unexpected stream", zap.Uint32("handle", uint32(p.h)), zap.Uint16("stream", st.StreamIdentifier()))
        _ = st.Close()
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
            if err := p.writeControl(engine.Ping(a.Seq, now)); err != nil { return err }
        }
        if cur := p.mon.Params().PingInterval; cur != interval {
            interval = cur
            t.Reset(interval)
        }
    }
}
