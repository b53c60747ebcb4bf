package transport

import (
    "errors"
    "net"
    "strconv"
    "testing"
    "time"

    "udplink/pkg/identity"
)

// waitFor polls s until an event of type typ arrives. The payload is copied.
func waitFor(t *testing.T, s *Session, typ EventType) Event {
    t.Helper()
    deadline := time.Now().Add(10 * time.Second)
    for time.Now().Before(deadline) {
        ev, err := s.PollEvent()
        if err != nil { t.Fatalf("poll: %v", err) }
        if ev.Type == typ {
            ev.Payload = append([]byte(nil), ev.Payload...)
            return ev
        }
        if ev.Type == EventNothing { time.Sleep(2 * time.Millisecond) }
    }
    t.Fatalf("no %s event", typ)
    return Event{}
}

func startNetworkSession(t *testing.T, kind string, o Options) *Session {
    t.Helper()
    eng, err := NewEngine(kind)
    if err != nil { t.Fatalf("engine %s: %v", kind, err) }
    s := New(eng, o)
    if err := s.Init(); err != nil { t.Fatalf("init: %v", err) }
    t.Cleanup(s.Shutdown)
    return s
}

func TestSessionOverNetworkEngines(t *testing.T) {
    for _, kind := range []string{"quic", "sctp"} {
        t.Run(kind, func(t *testing.T) {
            o := testOptions()
            o.Port = 0
            o.BindAddress = "127.0.0.1"
            o.KeepAlive.TimeoutMinimum = 2 * time.Second

            srv := startNetworkSession(t, kind, o)
            if _, err := srv.StartServer(); err != nil { t.Fatalf("start server: %v", err) }
            _, port, err := net.SplitHostPort(srv.LocalAddr().String())
            if err != nil { t.Fatalf("server addr: %v", err) }
            if port == "0" || port == "7777" { t.Fatalf("server did not bind an ephemeral port: %s", port) }

            co := o
            co.Port, _ = strconv.Atoi(port)
            cli := startNetworkSession(t, kind, co)
            task, err := cli.StartClient()
            if err != nil { t.Fatalf("start client: %v", err) }

            if ev := waitFor(t, cli, EventConnect); ev.Identity != identity.Server { t.Fatalf("client saw server as %d", ev.Identity) }
            if !task.Success() { t.Fatalf("task not resolved as success") }
            if ev := waitFor(t, srv, EventConnect); ev.Identity != 1 { t.Fatalf("server saw client as %d", ev.Identity) }

            if err := cli.Send(identity.Server, []byte("hello"), "DEFAULT"); err != nil { t.Fatalf("send: %v", err) }
            d := waitFor(t, srv, EventData)
            if d.Identity != 1 || d.Channel != "DEFAULT" || string(d.Payload) != "hello" { t.Fatalf("server got %+v", d) }
            if d.ReceiveTime.IsZero() { t.Fatalf("receive time not set") }
            if _, err := srv.RoundTripTime(1); err != nil { t.Fatalf("rtt: %v", err) }

            if err := srv.DisconnectRemote(1); err != nil { t.Fatalf("disconnect remote: %v", err) }
            if err := srv.Send(1, []byte("x"), "DEFAULT"); !errors.Is(err, ErrUnknownIdentity) { t.Fatalf("send after disconnect: %v", err) }
            if ev := waitFor(t, cli, EventDisconnect); ev.Identity != identity.Server { t.Fatalf("client disconnect identity = %d", ev.Identity) }
            if err := cli.Send(identity.Server, nil, "DEFAULT"); !errors.Is(err, ErrNoServerConnection) { t.Fatalf("client send after drop: %v", err) }
            if len(srv.Peers()) != 0 { t.Fatalf("server peers left: %v", srv.Peers()) }
        })
    }
}
