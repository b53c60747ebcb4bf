// Package buffer owns the receive buffers a session copies payloads into.
//
// One primary buffer serves every payload up to its capacity. Larger
// payloads use an overflow buffer that is held only weakly, so the
// collector may reclaim it between bursts of oversized traffic. A returned
// buffer is valid until the next Acquire. Not safe for concurrent use.
package buffer

import (
    "unsafe"
    "weak"
)

// Manager hands out receive buffers.
type Manager struct {
    primary     []byte
    overflow    weak.Pointer[byte]
    overflowLen int
    allocs      uint64
}

func New(size int) *Manager {
    if size < 0 { size = 0 }
    return &Manager{primary: make([]byte, size)}
}

// Acquire returns a buffer of length at least n.
func (m *Manager) Acquire(n int) []byte {
    if n <= len(m.primary) { return m.primary }
    if p := m.overflow.Value(); p != nil && m.overflowLen >= n {
        return unsafe.Slice(p, m.overflowLen)
    }
    b := make([]byte, n)
    m.overflow = weak.Make(&b[0])
    m.overflowLen = n
    m.allocs++
    return b
}

// PrimaryCap is the capacity of the primary buffer.
func (m *Manager) PrimaryCap() int { return len(m.primary) }

// OverflowAllocs counts overflow allocations since New.
func (m *Manager) OverflowAllocs() uint64 { return m.allocs }

// Reclaim drops the overflow buffer, for callers reacting to memory pressure.
func (m *Manager) Reclaim() { m.overflow, m.overflowLen = weak.Pointer[byte]{}, 0 }

// Release drops every buffer. The manager must not be used afterwards.
func (m *Manager) Release() {
    m.primary = nil
    m.Reclaim()
}
