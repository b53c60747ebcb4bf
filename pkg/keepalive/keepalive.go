// Package keepalive tracks liveness of one connection: it schedules pings,
// smooths round-trip samples and decides when a silent peer has timed out.
package keepalive

import (
    "sync"
    "time"
)

// Params are the per-connection keep-alive and timeout thresholds.
type Params struct {
    PingInterval   time.Duration
    TimeoutLimit   uint32
    TimeoutMinimum time.Duration
    TimeoutMaximum time.Duration
}

// DefaultParams mirrors the classic ENet defaults.
func DefaultParams() Params {
    return Params{
        PingInterval:   500 * time.Millisecond,
        TimeoutLimit:   32,
        TimeoutMinimum: 5000 * time.Millisecond,
        TimeoutMaximum: 30000 * time.Millisecond,
    }
}

// Normalize fills zero fields from DefaultParams and keeps the minimum
// below the maximum.
func (p Params) Normalize() Params {
    d := DefaultParams()
    if p.PingInterval <= 0 { p.PingInterval = d.PingInterval }
    if p.TimeoutLimit == 0 { p.TimeoutLimit = d.TimeoutLimit }
    if p.TimeoutMinimum <= 0 { p.TimeoutMinimum = d.TimeoutMinimum }
    if p.TimeoutMaximum <= 0 { p.TimeoutMaximum = d.TimeoutMaximum }
    if p.TimeoutMinimum > p.TimeoutMaximum { p.TimeoutMinimum = p.TimeoutMaximum }
    return p
}

// InitialRTT is the round-trip estimate before the first sample.
const InitialRTT = 500 * time.Millisecond

// Action tells the owner what to do after a Tick.
type Action struct {
    // Ping is set when a ping with sequence Seq should be sent now.
    Ping bool
    Seq  uint32
    // TimedOut is set once; the owner should tear the connection down.
    TimedOut bool
}

// Monitor is safe for use by the reader and timer goroutines of one
// connection.
type Monitor struct {
    mu         sync.Mutex
    p          Params
    lastRecv   time.Time
    lastPing   time.Time
    seq        uint32
    unanswered uint32
    srtt       time.Duration
    sampled    bool
    timedOut   bool
}

func New(p Params, now time.Time) *Monitor {
    return &Monitor{p: p.Normalize(), lastRecv: now, srtt: InitialRTT}
}

// Configure replaces the thresholds of a live connection.
func (m *Monitor) Configure(p Params) {
    m.mu.Lock(); m.p = p.Normalize(); m.mu.Unlock()
}

// Params returns the thresholds in effect.
func (m *Monitor) Params() Params {
    m.mu.Lock(); defer m.mu.Unlock()
    return m.p
}

// Received records inbound traffic of any kind.
func (m *Monitor) Received(now time.Time) {
    m.mu.Lock()
    if now.After(m.lastRecv) { m.lastRecv = now }
    m.mu.Unlock()
}

// Pong records the answer to a ping sent at sent.
func (m *Monitor) Pong(sent, now time.Time) {
    m.mu.Lock(); defer m.mu.Unlock()
    if now.After(m.lastRecv) { m.lastRecv = now }
    m.unanswered = 0
    sample := now.Sub(sent)
    if sample < 0 { return }
    if !m.sampled {
        m.srtt = sample
        m.sampled = true
        return
    }
    m.srtt = (7*m.srtt + sample) / 8
}

// RTT is the smoothed round-trip time.
func (m *Monitor) RTT() time.Duration {
    m.mu.Lock(); defer m.mu.Unlock()
    return m.srtt
}

// Tick advances the monitor to now.
func (m *Monitor) Tick(now time.Time) Action {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.timedOut { return Action{} }
    silent := now.Sub(m.lastRecv)
    if silent >= m.p.TimeoutMaximum || (m.unanswered >= m.p.TimeoutLimit && silent >= m.p.TimeoutMinimum) {
        m.timedOut = true
        return Action{TimedOut: true}
    }
    if m.lastPing.IsZero() || now.Sub(m.lastPing) >= m.p.PingInterval {
        m.lastPing = now
        m.seq++
        m.unanswered++
        return Action{Ping: true, Seq: m.seq}
    }
    return Action{}
}
