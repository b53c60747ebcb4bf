package main

import (
    "bytes"
    "encoding/json"
    "strings"
    "testing"

    "udplink/pkg/channel"
    "udplink/pkg/protocol/codec"
)

func run(t *testing.T, args ...string) string {
    t.Helper()
    t.Setenv("UDPLINK_CONFIG", "")
    t.Setenv("UDPLINK_LOG_OUTPUTS", "stderr")
    t.Chdir(t.TempDir())
    cmd := newRootCmd()
    var out bytes.Buffer
    cmd.SetOut(&out)
    cmd.SetArgs(args)
    if err := cmd.Execute(); err != nil { t.Fatalf("%v: %v", args, err) }
    return out.String()
}

func TestVersion(t *testing.T) {
    if out := run(t, "version"); !strings.HasPrefix(out, "udplink dev (protocol 1)") { t.Fatalf("version = %q", out) }
}

func TestChannelsJSON(t *testing.T) {
    var rows []channelRow
    if err := json.Unmarshal([]byte(run(t, "channels")), &rows); err != nil { t.Fatalf("decode: %v", err) }
    if len(rows) != 5 { t.Fatalf("rows = %+v", rows) }
    if rows[0].Name != "INTERNAL" || !rows[0].Builtin || rows[0].Delivery != channel.ReliableOrdered.String() { t.Fatalf("first = %+v", rows[0]) }
    if rows[4].Name != "chat" || rows[4].ID != 4 || rows[4].Builtin { t.Fatalf("chat = %+v", rows[4]) }
}

func TestEncodeChannelsProto(t *testing.T) {
    chans := []channel.Channel{{ID: 0, Name: "a", Mode: channel.ReliableOrdered}}
    b, err := encodeChannels(codec.Proto(), chans)
    if err != nil || len(b) == 0 { t.Fatalf("proto = %x, %v", b, err) }
}
