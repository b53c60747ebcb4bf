package engine

import "sync"

// MaxPacketSize is the size of pooled receive buffers.
const MaxPacketSize = 64 << 10

var bufferPool = sync.Pool{New: func() any { return &Buffer{b: make([]byte, MaxPacketSize), pooled: true} }}

// Buffer is the Packet implementation used by the network engines.
type Buffer struct {
    b      []byte
    n      int
    pooled bool
}

// GetBuffer returns a buffer able to hold size bytes. Buffers up to
// MaxPacketSize come from a pool.
func GetBuffer(size int) *Buffer {
    if size > MaxPacketSize { return &Buffer{b: make([]byte, size)} }
    p := bufferPool.Get().(*Buffer)
    p.n = 0
    return p
}

// CopyPacket stores a copy of payload in a buffer.
func CopyPacket(payload []byte) *Buffer {
    p := GetBuffer(len(payload))
    p.n = copy(p.b, payload)
    return p
}

// Space is the writable backing storage.
func (p *Buffer) Space() []byte { return p.b }

// SetLen marks the first n bytes of Space as payload.
func (p *Buffer) SetLen(n int) { p.n = n }

// Bytes is the payload.
func (p *Buffer) Bytes() []byte { return p.b[:p.n] }

func (p *Buffer) Len() int { return p.n }

func (p *Buffer) CopyTo(dst []byte) int { return copy(dst, p.b[:p.n]) }

func (p *Buffer) Release() {
    if !p.pooled { p.b = nil; return }
    p.n = 0
    bufferPool.Put(p)
}

// WrapPacket adopts b as a packet without copying.
func WrapPacket(b []byte) *Buffer { return &Buffer{b: b, n: len(b)} }
