package transport

import (
    "errors"
    "testing"
    "time"

    "udplink/pkg/channel"
    "udplink/pkg/config"
)

func TestOptionsFromConfig(t *testing.T) {
    s := config.DefaultSession()
    s.Port = 9000
    s.PingIntervalMS = 250
    o, err := OptionsFromConfig(s, []config.ChannelConfig{{Name: "chat", Delivery: "unreliable"}, {Name: "pos", Delivery: "sequenced"}})
    if err != nil { t.Fatalf("options: %v", err) }
    if o.Port != 9000 || o.MaxConnections != 100 || o.MessageBufferSize != 5*1024 { t.Fatalf("options = %+v", o) }
    if o.KeepAlive.PingInterval != 250*time.Millisecond || o.KeepAlive.TimeoutMaximum != 30*time.Second { t.Fatalf("keepalive = %+v", o.KeepAlive) }
    if len(o.Builtins) != 4 { t.Fatalf("builtins = %d", len(o.Builtins)) }
    want := []channel.User{{Name: "chat", Mode: channel.UnreliableUnordered}, {Name: "pos", Mode: channel.UnreliableSequenced}}
    if len(o.Channels) != 2 || o.Channels[0] != want[0] || o.Channels[1] != want[1] { t.Fatalf("channels = %+v", o.Channels) }
}

func TestOptionsFromConfigBadDelivery(t *testing.T) {
    _, err := OptionsFromConfig(config.DefaultSession(), []config.ChannelConfig{{Name: "x", Delivery: "carrier"}})
    if !errors.Is(err, channel.ErrUnknownDelivery) { t.Fatalf("err = %v", err) }
}
