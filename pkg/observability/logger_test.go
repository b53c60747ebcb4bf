package observability

import (
    "os"
    "path/filepath"
    "strings"
    "testing"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"

    "udplink/pkg/config"
)

func TestSetupLoggerWritesFile(t *testing.T) {
    prev := zap.L()
    defer zap.ReplaceGlobals(prev)
    out := filepath.Join(t.TempDir(), "logs", "udplink.log")
    l, err := SetupLogger(config.LogConfig{Level: "debug", Format: "json", Outputs: []string{out}})
    if err != nil { t.Fatalf("setup: %v", err) }
    l.Debug("hello", zap.String("k", "v"))
    _ = l.Sync()
    b, err := os.ReadFile(out)
    if err != nil { t.Fatalf("read: %v", err) }
    if !strings.Contains(string(b), `"msg":"hello"`) || !strings.Contains(string(b), `"k":"v"`) { t.Fatalf("log = %s", b) }
    if zap.L() != l { t.Fatalf("global logger not replaced") }
}

func TestParseLevel(t *testing.T) {
    for in, want := range map[string]zapcore.Level{"debug": zap.DebugLevel, "WARNING": zap.WarnLevel, "error": zap.ErrorLevel, "": zap.InfoLevel} {
        if got := ParseLevel(in); got != want { t.Fatalf("ParseLevel(%q) = %v", in, got) }
    }
}

func TestPionBridge(t *testing.T) {
    core, logs := observer.New(zap.DebugLevel)
    f := PionLoggerFactory(zap.New(core))
    l := f.NewLogger("sctp")
    l.Tracef("dropped %d", 1)
    l.Debugf("assoc %d", 7)
    l.Warn("slow")
    entries := logs.All()
    if len(entries) != 2 { t.Fatalf("entries = %d", len(entries)) }
    if entries[0].Message != "assoc 7" || entries[0].LoggerName != "pion" { t.Fatalf("first = %+v", entries[0]) }
    if entries[0].ContextMap()["scope"] != "sctp" { t.Fatalf("scope = %v", entries[0].ContextMap()) }
}
