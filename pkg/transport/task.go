package transport

import (
    "context"
    "sync"
    "time"
)

// ConnectTask is the completion handle of StartServer and StartClient. It
// resolves exactly once.
type ConnectTask struct {
    once    sync.Once
    done    chan struct{}
    success bool
}

func newTask() *ConnectTask { return &ConnectTask{done: make(chan struct{})} }

func doneTask(success bool) *ConnectTask {
    t := newTask()
    t.resolve(success)
    return t
}

// resolve completes the task. It reports false if the task had already
// been resolved.
func (t *ConnectTask) resolve(success bool) bool {
    resolved := false
    t.once.Do(func() {
        t.success = success
        resolved = true
        close(t.done)
    })
    return resolved
}

// Done is closed once the task resolves.
func (t *ConnectTask) Done() <-chan struct{} { return t.done }

func (t *ConnectTask) IsDone() bool {
    select {
    case <-t.done:
        return true
    default:
        return false
    }
}

// Success reports the outcome. It is false while the task is pending.
func (t *ConnectTask) Success() bool { return t.IsDone() && t.success }

// pollIdle is how long AwaitConnect sleeps after a poll that yielded nothing.
const pollIdle = 2 * time.Millisecond

// AwaitConnect polls s until task resolves or ctx ends. Every event other
// than Nothing is passed to onEvent, which may be nil; payloads are valid
// only for the duration of the callback.
func AwaitConnect(ctx context.Context, s *Session, task *ConnectTask, onEvent func(Event)) error {
    for {
        if task.IsDone() {
            if task.Success() { return nil }
            return ErrConnectFailed
        }
        if ctx.Err() != nil { return ErrHandshakeTimeout }
        ev, err := s.PollEvent()
        if err != nil { return err }
        if ev.Type != EventNothing {
            if onEvent != nil { onEvent(ev) }
            continue
        }
        select {
        case <-ctx.Done():
            return ErrHandshakeTimeout
        case <-time.After(pollIdle):
        }
    }
}
