// Package identity translates between caller-facing remote identities and
// native engine handles.
//
// Identity 0 always denotes the server endpoint. Any other identity is the
// native handle plus one, so the mapping needs no table of its own.
package identity

import (
    "errors"
    "fmt"
    "math"

    "udplink/pkg/engine"
)

// ID is a caller-facing remote identity.
type ID uint64

// Server is the reserved identity of the server endpoint.
const Server ID = 0

var (
    ErrNoServerConnection = errors.New("identity: no server connection")
    ErrUnknownIdentity    = errors.New("identity: unknown identity")
)

// Role is the side a session plays.
type Role uint8

const (
    RoleNone Role = iota
    RoleServer
    RoleClient
)

func (r Role) String() string {
    switch r {
    case RoleServer:
        return "server"
    case RoleClient:
        return "client"
    default:
        return "none"
    }
}

// FromHandle is the identity of a peer handle.
func FromHandle(h engine.Handle) ID { return ID(h) + 1 }

// Translator holds the single piece of state the mapping needs: the handle
// of the server connection on a client. The zero value has no role.
type Translator struct {
    role   Role
    server engine.Handle
    bound  bool
}

func NewTranslator(role Role) Translator { return Translator{role: role} }

func (t *Translator) Role() Role { return t.role }

// BindServer records h as the live server connection of a client.
func (t *Translator) BindServer(h engine.Handle) { t.server, t.bound = h, true }

// UnbindServer forgets the server connection.
func (t *Translator) UnbindServer() { t.server, t.bound = 0, false }

// ServerHandle returns the live server connection, if any.
func (t *Translator) ServerHandle() (engine.Handle, bool) { return t.server, t.bound }

// IsServerHandle reports whether h is the live server connection.
func (t *Translator) IsServerHandle(h engine.Handle) bool { return t.bound && t.server == h }

// ToIdentity maps a handle to its identity. isServer marks h as the server
// connection, which is always identity 0.
func (t *Translator) ToIdentity(h engine.Handle, isServer bool) ID {
    if isServer { return Server }
    return FromHandle(h)
}

// Identify maps h using the bound server connection.
func (t *Translator) Identify(h engine.Handle) ID { return t.ToIdentity(h, t.IsServerHandle(h)) }

// ToNative maps an identity to its handle. Identity 0 resolves to the
// server connection on a client and fails everywhere else.
func (t *Translator) ToNative(id ID) (engine.Handle, error) {
    if id == Server {
        if t.role != RoleClient || !t.bound { return 0, ErrNoServerConnection }
        return t.server, nil
    }
    if id-1 > math.MaxUint32 { return 0, fmt.Errorf("%w: %d", ErrUnknownIdentity, id) }
    return engine.Handle(id - 1), nil
}
