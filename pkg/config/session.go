package config

import (
    "fmt"
    "strings"

    "github.com/spf13/viper"
)

// SessionConfig describes the engine host. Durations are in milliseconds.
// Example YAML:
// session:
//   engine: quic
//   address: 10.0.0.2
//   port: 7777
//   max_connections: 100
//   ping_interval_ms: 500
type SessionConfig struct {
    Engine            string `mapstructure:"engine"`
    Address           string `mapstructure:"address"`
    Port              int    `mapstructure:"port"`
    BindAddress       string `mapstructure:"bind_address"`
    MaxConnections    int    `mapstructure:"max_connections"`
    MessageBufferSize int    `mapstructure:"message_buffer_size"`

    PingIntervalMS   int    `mapstructure:"ping_interval_ms"`
    TimeoutLimit     uint32 `mapstructure:"timeout_limit"`
    TimeoutMinimumMS int    `mapstructure:"timeout_minimum_ms"`
    TimeoutMaximumMS int    `mapstructure:"timeout_maximum_ms"`
}

// ChannelConfig is one user channel. Delivery is a delivery mode name such
// as reliable, unreliable or sequenced.
type ChannelConfig struct {
    Name     string `mapstructure:"name"`
    Delivery string `mapstructure:"delivery"`
}

func DefaultSession() SessionConfig {
    return SessionConfig{
        Engine:            "quic",
        Address:           "127.0.0.1",
        Port:              7777,
        MaxConnections:    100,
        MessageBufferSize: 5 * 1024,
        PingIntervalMS:    500,
        TimeoutLimit:      32,
        TimeoutMinimumMS:  5000,
        TimeoutMaximumMS:  30000,
    }
}

func seedSession(v *viper.Viper, s SessionConfig) {
    v.SetDefault("session.engine", s.Engine)
    v.SetDefault("session.address", s.Address)
    v.SetDefault("session.port", s.Port)
    v.SetDefault("session.bind_address", s.BindAddress)
    v.SetDefault("session.max_connections", s.MaxConnections)
    v.SetDefault("session.message_buffer_size", s.MessageBufferSize)
    v.SetDefault("session.ping_interval_ms", s.PingIntervalMS)
    v.SetDefault("session.timeout_limit", s.TimeoutLimit)
    v.SetDefault("session.timeout_minimum_ms", s.TimeoutMinimumMS)
    v.SetDefault("session.timeout_maximum_ms", s.TimeoutMaximumMS)
}

func (s *SessionConfig) validate() error {
    s.Engine = strings.ToLower(strings.TrimSpace(s.Engine))
    if s.Engine == "" { s.Engine = "quic" }
    if s.Port < 0 || s.Port > 65535 { return fmt.Errorf("invalid session.port: %d", s.Port) }
    if s.MaxConnections < 0 { return fmt.Errorf("invalid session.max_connections: %d", s.MaxConnections) }
    if s.MessageBufferSize < 0 { return fmt.Errorf("invalid session.message_buffer_size: %d", s.MessageBufferSize) }
    if s.TimeoutMinimumMS > 0 && s.TimeoutMaximumMS > 0 && s.TimeoutMinimumMS > s.TimeoutMaximumMS {
        return fmt.Errorf("session.timeout_minimum_ms %d exceeds timeout_maximum_ms %d", s.TimeoutMinimumMS, s.TimeoutMaximumMS)
    }
    return nil
}
