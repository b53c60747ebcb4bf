package channel

import "fmt"

// Registry is the immutable name/id/mode table of one session. Built-in
// channels take ids 0..K-1 in the order given, user channels follow.
type Registry struct {
    byName   map[string]byte
    channels []Channel
    builtins int
}

// NewRegistry assigns ids and validates uniqueness of names.
func NewRegistry(builtins []Builtin, user []User) (*Registry, error) {
    total := len(builtins) + len(user)
    if total > MaxChannels { return nil, fmt.Errorf("%w: %d > %d", ErrTooManyChannels, total, MaxChannels) }
    r := &Registry{byName: make(map[string]byte, total), channels: make([]Channel, 0, total), builtins: len(builtins)}
    for _, b := range builtins {
        mode, err := ModeFor(b.Type)
        if err != nil { return nil, fmt.Errorf("builtin %q: %w", b.Name, err) }
        if err := r.add(b.Name, mode, true); err != nil { return nil, err }
    }
    for _, u := range user {
        if u.Mode > ReliableOrdered { return nil, fmt.Errorf("channel %q: %w: %d", u.Name, ErrUnknownDelivery, uint8(u.Mode)) }
        if err := r.add(u.Name, u.Mode, false); err != nil { return nil, err }
    }
    return r, nil
}

func (r *Registry) add(name string, mode DeliveryMode, builtin bool) error {
    if _, ok := r.byName[name]; ok { return fmt.Errorf("%w: %q", ErrDuplicateName, name) }
    id := byte(len(r.channels))
    r.byName[name] = id
    r.channels = append(r.channels, Channel{ID: id, Name: name, Mode: mode, Builtin: builtin})
    return nil
}

// IDOf returns the id registered for name.
func (r *Registry) IDOf(name string) (byte, error) {
    id, ok := r.byName[name]
    if !ok { return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, name) }
    return id, nil
}

// NameOf returns the name registered for id.
func (r *Registry) NameOf(id byte) (string, error) {
    if int(id) >= len(r.channels) { return "", fmt.Errorf("%w: id %d", ErrUnknownChannel, id) }
    return r.channels[id].Name, nil
}

// ModeOf returns the delivery mode registered for id.
func (r *Registry) ModeOf(id byte) (DeliveryMode, error) {
    if int(id) >= len(r.channels) { return 0, fmt.Errorf("%w: id %d", ErrUnknownChannel, id) }
    return r.channels[id].Mode, nil
}

// Resolve returns id and mode for name in one lookup.
func (r *Registry) Resolve(name string) (byte, DeliveryMode, error) {
    id, ok := r.byName[name]
    if !ok { return 0, 0, fmt.Errorf("%w: %q", ErrUnknownChannel, name) }
    return id, r.channels[id].Mode, nil
}

// Len is the number of registered channels.
func (r *Registry) Len() int { return len(r.channels) }

// BuiltinCount is K, the number of framework-reserved channels.
func (r *Registry) BuiltinCount() int { return r.builtins }

// All returns a copy of the registry in id order.
func (r *Registry) All() []Channel {
    out := make([]Channel, len(r.channels))
    copy(out, r.channels)
    return out
}
