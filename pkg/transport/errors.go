package transport

import (
    "errors"

    "udplink/pkg/channel"
    "udplink/pkg/identity"
)

var (
    ErrUnknownChannel     = channel.ErrUnknownChannel
    ErrUnknownIdentity    = identity.ErrUnknownIdentity
    ErrNoServerConnection = identity.ErrNoServerConnection

    ErrHandshakeTimeout = errors.New("transport: handshake timeout")
    ErrConnectFailed    = errors.New("transport: connect failed")
    ErrNotInitialized   = errors.New("transport: not initialized")
    ErrNotRunning       = errors.New("transport: not running")
    ErrAlreadyRunning   = errors.New("transport: already running")
    ErrNotServer        = errors.New("transport: not a server session")
    ErrNotClient        = errors.New("transport: not a client session")
)
