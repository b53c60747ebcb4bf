package keepalive

import (
    "testing"
    "time"
)

func TestTickSchedulesPings(t *testing.T) {
    t0 := time.Unix(1000, 0)
    m := New(Params{PingInterval: 100 * time.Millisecond, TimeoutLimit: 4, TimeoutMinimum: time.Second, TimeoutMaximum: 10 * time.Second}, t0)
    a := m.Tick(t0)
    if !a.Ping || a.Seq != 1 { t.Fatalf("first tick = %+v", a) }
    if a := m.Tick(t0.Add(50 * time.Millisecond)); a.Ping { t.Fatalf("ping before interval") }
    if a := m.Tick(t0.Add(100 * time.Millisecond)); !a.Ping || a.Seq != 2 { t.Fatalf("second ping = %+v", a) }
}

func TestTimeoutAfterUnansweredPings(t *testing.T) {
    t0 := time.Unix(1000, 0)
    m := New(Params{PingInterval: 100 * time.Millisecond, TimeoutLimit: 3, TimeoutMinimum: 500 * time.Millisecond, TimeoutMaximum: 10 * time.Second}, t0)
    now := t0
    for i := 0; i < 3; i++ {
        if a := m.Tick(now); a.TimedOut { t.Fatalf("timed out early at ping %d", i) }
        now = now.Add(100 * time.Millisecond)
    }
    // limit reached but minimum silence not yet
    if a := m.Tick(t0.Add(300 * time.Millisecond)); a.TimedOut { t.Fatalf("timed out before minimum") }
    if a := m.Tick(t0.Add(500 * time.Millisecond)); !a.TimedOut { t.Fatalf("expected timeout") }
    if a := m.Tick(t0.Add(600 * time.Millisecond)); a.TimedOut || a.Ping { t.Fatalf("timeout must be reported once: %+v", a) }
}

func TestTimeoutMaximumWithoutPings(t *testing.T) {
    t0 := time.Unix(1000, 0)
    m := New(Params{PingInterval: time.Hour, TimeoutLimit: 32, TimeoutMinimum: time.Second, TimeoutMaximum: 2 * time.Second}, t0)
    m.Tick(t0)
    m.Received(t0.Add(time.Second))
    if a := m.Tick(t0.Add(2500 * time.Millisecond)); a.TimedOut { t.Fatalf("traffic should have reset silence") }
    if a := m.Tick(t0.Add(3 * time.Second)); !a.TimedOut { t.Fatalf("expected timeout at maximum") }
}

func TestPongResetsAndSmooths(t *testing.T) {
    t0 := time.Unix(1000, 0)
    m := New(DefaultParams(), t0)
    if m.RTT() != InitialRTT { t.Fatalf("initial rtt = %v", m.RTT()) }
    m.Pong(t0, t0.Add(80*time.Millisecond))
    if m.RTT() != 80*time.Millisecond { t.Fatalf("first sample rtt = %v", m.RTT()) }
    m.Pong(t0, t0.Add(160*time.Millisecond))
    if m.RTT() != 90*time.Millisecond { t.Fatalf("smoothed rtt = %v", m.RTT()) }
}

func TestNormalize(t *testing.T) {
    p := Params{TimeoutMinimum: time.Minute, TimeoutMaximum: time.Second}.Normalize()
    if p.PingInterval != 500*time.Millisecond || p.TimeoutLimit != 32 { t.Fatalf("defaults not applied: %+v", p) }
    if p.TimeoutMinimum != time.Second { t.Fatalf("minimum not clamped: %v", p.TimeoutMinimum) }
}
