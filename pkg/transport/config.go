package transport

import (
    "fmt"
    "time"

    "udplink/pkg/channel"
    "udplink/pkg/config"
    "udplink/pkg/keepalive"
)

// OptionsFromConfig maps the session and channel sections of a loaded
// configuration onto Options with the default built-in channels.
func OptionsFromConfig(s config.SessionConfig, chans []config.ChannelConfig) (Options, error) {
    o := DefaultOptions()
    o.Address = s.Address
    o.Port = s.Port
    o.BindAddress = s.BindAddress
    o.MaxConnections = s.MaxConnections
    o.MessageBufferSize = s.MessageBufferSize
    o.KeepAlive = keepalive.Params{
        PingInterval:   time.Duration(s.PingIntervalMS) * time.Millisecond,
        TimeoutLimit:   s.TimeoutLimit,
        TimeoutMinimum: time.Duration(s.TimeoutMinimumMS) * time.Millisecond,
        TimeoutMaximum: time.Duration(s.TimeoutMaximumMS) * time.Millisecond,
    }
    for _, c := range chans {
        mode, err := channel.ParseDeliveryMode(c.Delivery)
        if err != nil { return Options{}, fmt.Errorf("channel %q: %w", c.Name, err) }
        o.Channels = append(o.Channels, channel.User{Name: c.Name, Mode: mode})
    }
    return o, nil
}
