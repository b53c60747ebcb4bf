package engine

// Sequencer numbers outgoing sequenced datagrams per channel. Not safe for
// concurrent use.
type Sequencer struct{ next [256]uint32 }

// Next never returns 0, which marks an unsequenced datagram.
func (s *Sequencer) Next(ch uint8) uint32 {
    s.next[ch]++
    if s.next[ch] == 0 { s.next[ch] = 1 }
    return s.next[ch]
}

// SequenceFilter drops sequenced datagrams older than the newest seen on
// their channel, using serial-number arithmetic so the counter may wrap.
// Not safe for concurrent use.
type SequenceFilter struct {
    last [256]uint32
    seen [256]bool
}

func (f *SequenceFilter) Accept(ch uint8, seq uint32) bool {
    if f.seen[ch] && int32(seq-f.last[ch]) <= 0 { return false }
    f.last[ch] = seq
    f.seen[ch] = true
    return true
}
