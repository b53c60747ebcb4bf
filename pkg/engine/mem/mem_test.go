package mem

import (
    "context"
    "testing"

    "udplink/pkg/channel"
    "udplink/pkg/engine"
)

type tagged struct {
    host string
    ev   engine.Event
    data string
}

// pump services every engine until all inboxes and queues are empty.
func pump(t *testing.T, hosts map[string]*Engine) []tagged {
    t.Helper()
    var out []tagged
    for round := 0; round < 1000; round++ {
        progressed := false
        for name, e := range hosts {
            ev, ok := e.CheckEvents()
            if !ok { ev, ok = e.Service() }
            if !ok {
                if e.Pending() > 0 { progressed = true }
                continue
            }
            progressed = true
            tg := tagged{host: name, ev: ev}
            if ev.Packet != nil {
                buf := make([]byte, ev.Packet.Len())
                ev.Packet.CopyTo(buf)
                ev.Packet.Release()
                tg.data = string(buf)
            }
            out = append(out, tg)
        }
        if !progressed { return out }
    }
    t.Fatalf("network did not settle")
    return nil
}

func startPair(t *testing.T, n *Network, channels int) (*Engine, *Engine) {
    t.Helper()
    srv, cli := New(n), New(n)
    if err := srv.Start(context.Background(), engine.HostConfig{ListenAddr: ":7777", MaxPeers: 2, ChannelCount: channels}); err != nil { t.Fatalf("server start: %v", err) }
    if err := cli.Start(context.Background(), engine.HostConfig{ChannelCount: channels}); err != nil { t.Fatalf("client start: %v", err) }
    return srv, cli
}

func count(evs []tagged, host string, typ engine.EventType) int {
    n := 0
    for _, e := range evs { if e.host == host && e.ev.Type == typ { n++ } }
    return n
}

func TestConnectAndExchange(t *testing.T) {
    n := NewNetwork()
    srv, cli := startPair(t, n, 2)
    defer srv.Close()
    defer cli.Close()
    h, err := cli.Connect("127.0.0.1:7777")
    if err != nil { t.Fatalf("connect: %v", err) }
    evs := pump(t, map[string]*Engine{"srv": srv, "cli": cli})
    if count(evs, "srv", engine.EventConnect) != 1 || count(evs, "cli", engine.EventConnect) != 1 { t.Fatalf("events = %+v", evs) }
    if err := cli.Send(h, 1, channel.UnreliableUnordered, []byte("hi")); err != nil { t.Fatalf("send: %v", err) }
    evs = pump(t, map[string]*Engine{"srv": srv, "cli": cli})
    if len(evs) != 1 || evs[0].ev.Type != engine.EventReceive || evs[0].ev.Channel != 1 || evs[0].data != "hi" {
        t.Fatalf("receive = %+v", evs)
    }
    if rec := cli.SentModes(); len(rec) != 1 || rec[0].Mode != channel.UnreliableUnordered { t.Fatalf("sent = %+v", rec) }
    if err := cli.Send(h, 2, channel.ReliableOrdered, nil); err == nil { t.Fatalf("channel out of range accepted") }
}

func TestRejectsMismatchAndLimit(t *testing.T) {
    n := NewNetwork()
    srv, _ := startPair(t, n, 2)
    defer srv.Close()
    odd := New(n)
    if err := odd.Start(context.Background(), engine.HostConfig{ChannelCount: 3}); err != nil { t.Fatalf("start: %v", err) }
    odd.Connect(":7777")
    evs := pump(t, map[string]*Engine{"srv": srv, "odd": odd})
    if count(evs, "odd", engine.EventDisconnect) != 1 || count(evs, "srv", engine.EventConnect) != 0 { t.Fatalf("mismatch events = %+v", evs) }

    hosts := map[string]*Engine{"srv": srv}
    for _, name := range []string{"a", "b", "c"} {
        e := New(n)
        if err := e.Start(context.Background(), engine.HostConfig{ChannelCount: 2}); err != nil { t.Fatalf("start: %v", err) }
        defer e.Close()
        e.Connect("localhost:7777")
        hosts[name] = e
    }
    evs = pump(t, hosts)
    if got := count(evs, "srv", engine.EventConnect); got != 2 { t.Fatalf("server accepted %d, limit is 2", got) }
}

func TestSeverTimesOutBothSides(t *testing.T) {
    n := NewNetwork()
    srv, cli := startPair(t, n, 1)
    cli.Connect("127.0.0.1:7777")
    pump(t, map[string]*Engine{"srv": srv, "cli": cli})
    n.Sever(srv.LocalAddr().String(), cli.LocalAddr().String())
    evs := pump(t, map[string]*Engine{"srv": srv, "cli": cli})
    if count(evs, "srv", engine.EventTimeout) != 1 || count(evs, "cli", engine.EventTimeout) != 1 { t.Fatalf("events = %+v", evs) }
}

func TestDisconnectIsForceful(t *testing.T) {
    n := NewNetwork()
    srv, cli := startPair(t, n, 1)
    h, _ := cli.Connect("127.0.0.1:7777")
    pump(t, map[string]*Engine{"srv": srv, "cli": cli})
    if err := cli.Disconnect(h); err != nil { t.Fatalf("disconnect: %v", err) }
    evs := pump(t, map[string]*Engine{"srv": srv, "cli": cli})
    if count(evs, "cli", engine.EventDisconnect) != 0 { t.Fatalf("local disconnect must not raise a local event") }
    if count(evs, "srv", engine.EventDisconnect) != 1 { t.Fatalf("remote side not notified: %+v", evs) }
    if err := cli.Disconnect(h); err == nil { t.Fatalf("second disconnect should fail") }
}

func TestConnectToNobody(t *testing.T) {
    e := New(NewNetwork())
    if _, err := e.Connect("127.0.0.1:1"); err == nil { t.Fatalf("connect before start accepted") }
    e.Start(context.Background(), engine.HostConfig{ChannelCount: 1})
    h, err := e.Connect("127.0.0.1:1")
    if err != nil { t.Fatalf("connect: %v", err) }
    ev, ok := e.CheckEvents()
    if !ok || ev.Type != engine.EventDisconnect || ev.Peer != h { t.Fatalf("event = %+v %v", ev, ok) }
}
