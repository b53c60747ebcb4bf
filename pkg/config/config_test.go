package config

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
)

func writeFile(t *testing.T, body string) string {
    t.Helper()
    p := filepath.Join(t.TempDir(), "udplink.yaml")
    if err := os.WriteFile(p, []byte(body), 0o644); err != nil { t.Fatalf("write: %v", err) }
    return p
}

func TestLoadDefaults(t *testing.T) {
    t.Setenv("UDPLINK_CONFIG", "")
    t.Chdir(t.TempDir())
    cfg, err := Load("")
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Session.Port != 7777 || cfg.Session.MaxConnections != 100 || cfg.Session.MessageBufferSize != 5*1024 {
        t.Fatalf("session defaults = %+v", cfg.Session)
    }
    if cfg.Session.TimeoutLimit != 32 || cfg.Session.PingIntervalMS != 500 { t.Fatalf("keepalive defaults = %+v", cfg.Session) }
    if len(cfg.Channels) != 1 || cfg.Channels[0].Name != "chat" { t.Fatalf("channels = %+v", cfg.Channels) }
}

func TestLoadFile(t *testing.T) {
    p := writeFile(t, `
log:
  level: debug
session:
  engine: SCTP
  port: 9000
  timeout_minimum_ms: 1000
channels:
  - name: chat
    delivery: Unreliable
  - name: state
`)
    cfg, err := Load(p)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Session.Engine != "sctp" || cfg.Session.Port != 9000 || cfg.Session.TimeoutMinimumMS != 1000 { t.Fatalf("session = %+v", cfg.Session) }
    if cfg.Session.TimeoutMaximumMS != 30000 { t.Fatalf("unset field lost its default: %+v", cfg.Session) }
    if len(cfg.Channels) != 2 || cfg.Channels[0].Delivery != "unreliable" || cfg.Channels[1].Delivery != "reliable" {
        t.Fatalf("channels = %+v", cfg.Channels)
    }
}

func TestEnvOverride(t *testing.T) {
    t.Setenv("UDPLINK_SESSION_PORT", "9100")
    cfg, err := Load(writeFile(t, "session:\n  port: 9000\n"))
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Session.Port != 9100 { t.Fatalf("port = %d", cfg.Session.Port) }
}

func TestValidateRejects(t *testing.T) {
    cases := map[string]string{
        "level":    "log:\n  level: loud\n",
        "port":     "session:\n  port: 70000\n",
        "timeouts": "session:\n  timeout_minimum_ms: 9000\n  timeout_maximum_ms: 100\n",
        "dup":      "channels:\n  - name: a\n  - name: a\n",
        "empty":    "channels:\n  - delivery: reliable\n",
    }
    for name, body := range cases {
        t.Run(name, func(t *testing.T) {
            if _, err := Load(writeFile(t, body)); err == nil { t.Fatalf("accepted %q", strings.TrimSpace(body)) }
        })
    }
}
