package engine

import "sync"

// DefaultQueueDepth bounds the events buffered between engine goroutines
// and the poll loop.
const DefaultQueueDepth = 4096

// EventQueue carries events from engine goroutines to the poll loop.
// Push may be called from any goroutine; Emit, Drain and Pop only from the
// poll goroutine.
type EventQueue struct {
    feed    chan Event
    done    chan struct{}
    once    sync.Once
    ready   []Event
    head    int
    handles *Handles
}

func NewEventQueue(depth int, handles *Handles) *EventQueue {
    if depth <= 0 { depth = DefaultQueueDepth }
    return &EventQueue{feed: make(chan Event, depth), done: make(chan struct{}), handles: handles}
}

// Push hands ev to the poll loop, blocking while the queue is full. It
// returns false once the queue is closed; the packet is released then.
func (q *EventQueue) Push(ev Event) bool {
    select {
    case <-q.done:
        releaseEvent(ev)
        return false
    default:
    }
    select {
    case q.feed <- ev:
        return true
    case <-q.done:
        releaseEvent(ev)
        return false
    }
}

// Emit queues ev directly from the poll goroutine.
func (q *EventQueue) Emit(ev Event) { q.ready = append(q.ready, ev) }

// Drain moves up to max pushed events into the ready list without blocking.
func (q *EventQueue) Drain(max int) int {
    n := 0
    for n < max {
        select {
        case ev := <-q.feed:
            q.ready = append(q.ready, ev)
            n++
        default:
            return n
        }
    }
    return n
}

// Pop returns the oldest ready event. Events for handles that are no longer
// live are discarded. Popping a terminal event releases its handle.
func (q *EventQueue) Pop() (Event, bool) {
    for q.head < len(q.ready) {
        ev := q.ready[q.head]
        q.ready[q.head] = Event{}
        q.head++
        if q.head == len(q.ready) { q.ready, q.head = q.ready[:0], 0 }
        if q.handles != nil && !q.handles.Live(ev.Peer) {
            releaseEvent(ev)
            continue
        }
        if ev.Type.Terminal() && q.handles != nil { q.handles.Release(ev.Peer) }
        return ev, true
    }
    return Event{}, false
}

// Len is the number of ready events.
func (q *EventQueue) Len() int { return len(q.ready) - q.head }

// Stop makes every pending and future Push return false. Engines call it
// before waiting on goroutines that may be blocked in Push.
func (q *EventQueue) Stop() { q.once.Do(func() { close(q.done) }) }

// Close stops Push and releases every queued packet.
func (q *EventQueue) Close() {
    q.Stop()
    for _, ev := range q.ready[q.head:] { releaseEvent(ev) }
    q.ready, q.head = nil, 0
    for {
        select {
        case ev := <-q.feed:
            releaseEvent(ev)
        default:
            return
        }
    }
}

func releaseEvent(ev Event) {
    if ev.Packet != nil { ev.Packet.Release() }
}
