package quic

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "udplink/pkg/channel"
    "udplink/pkg/engine"
    "udplink/pkg/keepalive"
)

func waitEvent(t *testing.T, e engine.Engine, typ engine.EventType) engine.Event {
    t.Helper()
    deadline := time.Now().Add(10 * time.Second)
    for time.Now().Before(deadline) {
        ev, ok := e.CheckEvents()
        if !ok { ev, ok = e.Service() }
        if !ok { time.Sleep(5 * time.Millisecond); continue }
        if ev.Type == typ { return ev }
        if ev.Packet != nil { ev.Packet.Release() }
    }
    t.Fatalf("no %s event", typ)
    return engine.Event{}
}

func payload(ev engine.Event) string {
    b := make([]byte, ev.Packet.Len())
    ev.Packet.CopyTo(b)
    ev.Packet.Release()
    return string(b)
}

func startHost(t *testing.T, listen string, channels int) *Engine {
    t.Helper()
    e := New()
    require.NoError(t, e.Start(context.Background(), engine.HostConfig{ListenAddr: listen, MaxPeers: 4, ChannelCount: channels, KeepAlive: keepalive.DefaultParams()}))
    t.Cleanup(func() { _ = e.Close() })
    return e
}

func TestLoopbackConnectAndSend(t *testing.T) {
    srv := startHost(t, "127.0.0.1:0", 3)
    cli := startHost(t, "", 3)

    h, err := cli.Connect(srv.LocalAddr().String())
    require.NoError(t, err)
    cev := waitEvent(t, cli, engine.EventConnect)
    require.Equal(t, h, cev.Peer)
    sev := waitEvent(t, srv, engine.EventConnect)

    require.NoError(t, cli.Send(h, 0, channel.ReliableOrdered, []byte("reliable")))
    ev := waitEvent(t, srv, engine.EventReceive)
    require.Equal(t, sev.Peer, ev.Peer)
    require.Equal(t, uint8(0), ev.Channel)
    require.False(t, ev.ReceivedAt.IsZero())
    require.Equal(t, "reliable", payload(ev))

    require.NoError(t, srv.Send(sev.Peer, 2, channel.UnreliableSequenced, []byte("seq")))
    ev = waitEvent(t, cli, engine.EventReceive)
    require.Equal(t, uint8(2), ev.Channel)
    require.Equal(t, "seq", payload(ev))

    big := make([]byte, 4000)
    require.NoError(t, cli.Send(h, 1, channel.UnreliableUnordered, big))
    ev = waitEvent(t, srv, engine.EventReceive)
    require.Equal(t, len(big), ev.Packet.Len())
    ev.Packet.Release()

    require.ErrorIs(t, cli.Send(h, 3, channel.ReliableOrdered, nil), engine.ErrChannelRange)
    _, err = cli.RoundTripTime(h)
    require.NoError(t, err)
}

func TestDisconnectReachesPeer(t *testing.T) {
    srv := startHost(t, "127.0.0.1:0", 1)
    cli := startHost(t, "", 1)
    h, err := cli.Connect(srv.LocalAddr().String())
    require.NoError(t, err)
    waitEvent(t, cli, engine.EventConnect)
    sev := waitEvent(t, srv, engine.EventConnect)

    require.NoError(t, cli.Disconnect(h))
    ev := waitEvent(t, srv, engine.EventDisconnect)
    require.Equal(t, sev.Peer, ev.Peer)
    require.ErrorIs(t, cli.Send(h, 0, channel.ReliableOrdered, nil), engine.ErrUnknownHandle)
}

func TestChannelMismatchRejected(t *testing.T) {
    srv := startHost(t, "127.0.0.1:0", 2)
    cli := startHost(t, "", 5)
    h, err := cli.Connect(srv.LocalAddr().String())
    require.NoError(t, err)
    ev := waitEvent(t, cli, engine.EventDisconnect)
    require.Equal(t, h, ev.Peer)
}

func TestConnectBadAddress(t *testing.T) {
    cli := startHost(t, "", 1)
    _, err := cli.Connect("not an address")
    require.Error(t, err)
}

func TestCloseWithFullQueue(t *testing.T) {
    srv := startHost(t, "127.0.0.1:0", 1)
    cli := startHost(t, "", 1)
    h, err := cli.Connect(srv.LocalAddr().String())
    require.NoError(t, err)
    waitEvent(t, cli, engine.EventConnect)

    // The server is never polled, so its readers block on the full queue.
    for i := 0; i < engine.DefaultQueueDepth+500; i++ {
        require.NoError(t, cli.Send(h, 0, channel.ReliableOrdered, []byte("frame")))
    }
    time.Sleep(time.Second)

    closed := make(chan error, 1)
    go func() { closed <- srv.Close() }()
    select {
    case <-closed:
    case <-time.After(5 * time.Second):
        t.Fatalf("server Close blocked with a full event queue")
    }
}
