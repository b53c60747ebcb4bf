// Package channel maps human-readable channel names to dense numeric ids and
// the delivery guarantee applied to traffic on each of them.
package channel

import (
    "errors"
    "fmt"
    "strings"
)

// MaxChannels is the number of distinct ids representable on the wire.
const MaxChannels = 256

var (
    ErrUnknownChannel   = errors.New("channel: unknown channel")
    ErrDuplicateName    = errors.New("channel: duplicate channel name")
    ErrTooManyChannels  = errors.New("channel: too many channels")
    ErrUnknownType      = errors.New("channel: unknown channel type")
    ErrUnknownDelivery  = errors.New("channel: unknown delivery mode")
)

// DeliveryMode is the guarantee an engine applies to a channel's traffic.
type DeliveryMode uint8

const (
    UnreliableUnordered DeliveryMode = iota
    UnreliableSequenced
    ReliableOrdered
)

func (m DeliveryMode) String() string {
    switch m {
    case UnreliableUnordered:
        return "unreliable"
    case UnreliableSequenced:
        return "unreliable_sequenced"
    case ReliableOrdered:
        return "reliable"
    default:
        return fmt.Sprintf("delivery(%d)", uint8(m))
    }
}

// Reliable reports whether the mode guarantees delivery.
func (m DeliveryMode) Reliable() bool { return m == ReliableOrdered }

// ParseDeliveryMode accepts the names produced by String plus the common
// engine spellings used in configuration files.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "unreliable", "unreliable_unordered", "unsequenced":
        return UnreliableUnordered, nil
    case "unreliable_sequenced", "sequenced":
        return UnreliableSequenced, nil
    case "reliable", "reliable_ordered", "reliable_sequenced":
        return ReliableOrdered, nil
    default:
        return 0, fmt.Errorf("%w: %q", ErrUnknownDelivery, s)
    }
}

// Type is the host framework's channel taxonomy, richer than what the
// engines provide.
type Type uint8

const (
    TypeUnreliable Type = iota
    TypeReliable
    TypeReliableSequenced
    TypeReliableFragmentedSequenced
    TypeUnreliableSequenced
)

func (t Type) String() string {
    switch t {
    case TypeUnreliable:
        return "unreliable"
    case TypeReliable:
        return "reliable"
    case TypeReliableSequenced:
        return "reliable_sequenced"
    case TypeReliableFragmentedSequenced:
        return "reliable_fragmented_sequenced"
    case TypeUnreliableSequenced:
        return "unreliable_sequenced"
    default:
        return fmt.Sprintf("type(%d)", uint8(t))
    }
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "unreliable":
        return TypeUnreliable, nil
    case "reliable":
        return TypeReliable, nil
    case "reliable_sequenced":
        return TypeReliableSequenced, nil
    case "reliable_fragmented_sequenced":
        return TypeReliableFragmentedSequenced, nil
    case "unreliable_sequenced":
        return TypeUnreliableSequenced, nil
    default:
        return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
    }
}

// ModeFor folds a framework channel type onto the engine delivery modes.
// The engines have no reliable-unordered mode, so plain TypeReliable is carried
// as ReliableOrdered rather than weakened.
func ModeFor(t Type) (DeliveryMode, error) {
    switch t {
    case TypeUnreliable:
        return UnreliableUnordered, nil
    case TypeUnreliableSequenced:
        return UnreliableSequenced, nil
    case TypeReliable, TypeReliableSequenced, TypeReliableFragmentedSequenced:
        return ReliableOrdered, nil
    default:
        return 0, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
    }
}

// Builtin is a framework-reserved channel whose type is forced by the host.
type Builtin struct {
    Name string
    Type Type
}

// User is a channel configured by the application with an explicit mode.
type User struct {
    Name string
    Mode DeliveryMode
}

// Channel is one registered entry.
type Channel struct {
    ID      byte
    Name    string
    Mode    DeliveryMode
    Builtin bool
}

// DefaultBuiltins returns the channels the host framework reserves.
func DefaultBuiltins() []Builtin {
    return []Builtin{
        {Name: "INTERNAL", Type: TypeReliableSequenced},
        {Name: "TIME_SYNC", Type: TypeUnreliable},
        {Name: "DEFAULT", Type: TypeReliableFragmentedSequenced},
        {Name: "POSITION_UPDATE", Type: TypeUnreliableSequenced},
    }
}
