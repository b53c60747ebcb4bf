package transport

import (
    "sort"
    "time"

    "udplink/pkg/engine"
    "udplink/pkg/identity"
)

// Stats are the traffic counters of one live connection.
type Stats struct {
    Identity    identity.ID
    ConnectedAt time.Time
    LastSeen    time.Time
    MessagesIn  uint64
    MessagesOut uint64
    BytesIn     uint64
    BytesOut    uint64
}

type connEntry struct {
    handle engine.Handle
    stats  Stats
}

// connTable is the single source of truth for which handles are live.
type connTable struct {
    byHandle map[engine.Handle]*connEntry
}

func newConnTable() *connTable { return &connTable{byHandle: make(map[engine.Handle]*connEntry)} }

// add inserts h, replacing a stale entry if one exists.
func (t *connTable) add(h engine.Handle, id identity.ID, now time.Time) (replaced bool) {
    _, replaced = t.byHandle[h]
    t.byHandle[h] = &connEntry{handle: h, stats: Stats{Identity: id, ConnectedAt: now, LastSeen: now}}
    return replaced
}

func (t *connTable) get(h engine.Handle) (*connEntry, bool) {
    e, ok := t.byHandle[h]
    return e, ok
}

func (t *connTable) remove(h engine.Handle) bool {
    if _, ok := t.byHandle[h]; !ok { return false }
    delete(t.byHandle, h)
    return true
}

func (t *connTable) len() int { return len(t.byHandle) }

// snapshot returns a copy of every entry's stats ordered by identity.
func (t *connTable) snapshot() []Stats {
    out := make([]Stats, 0, len(t.byHandle))
    for _, e := range t.byHandle { out = append(out, e.stats) }
    sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
    return out
}

func (t *connTable) clear() { clear(t.byHandle) }

func (e *connEntry) received(n int, now time.Time) {
    e.stats.MessagesIn++
    e.stats.BytesIn += uint64(n)
    e.stats.LastSeen = now
}

func (e *connEntry) sent(n int) {
    e.stats.MessagesOut++
    e.stats.BytesOut += uint64(n)
}
