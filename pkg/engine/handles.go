package engine

import "sync"

// Handles allocates native handles. Allocation is monotonic and skips
// handles that are still live, so a handle is not handed out again before
// the adapter has seen the terminal event of its previous owner.
type Handles struct {
    mu   sync.Mutex
    next Handle
    live map[Handle]struct{}
}

func NewHandles() *Handles { return &Handles{live: make(map[Handle]struct{})} }

// Acquire returns a fresh live handle.
func (a *Handles) Acquire() Handle {
    a.mu.Lock(); defer a.mu.Unlock()
    for {
        h := a.next
        a.next++
        if _, busy := a.live[h]; busy { continue }
        a.live[h] = struct{}{}
        return h
    }
}

// Release ends the life of h. Releasing a dead handle is a no-op.
func (a *Handles) Release(h Handle) {
    a.mu.Lock(); delete(a.live, h); a.mu.Unlock()
}

func (a *Handles) Live(h Handle) bool {
    a.mu.Lock(); defer a.mu.Unlock()
    _, ok := a.live[h]
    return ok
}

// Count is the number of live handles.
func (a *Handles) Count() int {
    a.mu.Lock(); defer a.mu.Unlock()
    return len(a.live)
}
