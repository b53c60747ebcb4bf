package transport

import (
    "context"
    "fmt"
    "net"
    "strconv"
    "time"

    "go.uber.org/zap"

    "udplink/pkg/buffer"
    "udplink/pkg/channel"
    "udplink/pkg/engine"
    "udplink/pkg/identity"
)

// Session binds one engine to the generic networking API.
type Session struct {
    eng   engine.Engine
    opts  Options
    log   *zap.Logger
    state State

    channels *channel.Registry
    ids      identity.Translator
    buffers  *buffer.Manager
    conns    *connTable

    pending       *ConnectTask
    pendingHandle engine.Handle
}

// New returns an uninitialized session driving eng.
func New(eng engine.Engine, opts Options) *Session {
    opts = opts.withDefaults()
    return &Session{eng: eng, opts: opts, log: opts.Logger.With(zap.String("engine", eng.Kind().String()))}
}

// Init builds the channel registry and allocates the receive buffer. It is
// a no-op on an initialized session.
func (s *Session) Init() error {
    switch s.state {
    case StateInitialized:
        return nil
    case StateUninitialized:
    default:
        return fmt.Errorf("%w: state %s", ErrAlreadyRunning, s.state)
    }
    reg, err := channel.NewRegistry(s.opts.Builtins, s.opts.Channels)
    if err != nil { return err }
    s.channels = reg
    s.buffers = buffer.New(s.opts.MessageBufferSize)
    s.conns = newConnTable()
    s.state = StateInitialized
    s.log.Debug("session initialized", zap.Int("channels", reg.Len()), zap.Int("builtins", reg.BuiltinCount()), zap.Int("buffer", s.opts.MessageBufferSize))
    return nil
}

func (s *Session) State() State { return s.state }

// Role is the side this session plays once started.
func (s *Session) Role() identity.Role { return s.ids.Role() }

// ServerClientID is the identity that always denotes the server.
func (s *Session) ServerClientID() identity.ID { return identity.Server }

func (s *Session) hostConfig(listen string) engine.HostConfig {
    return engine.HostConfig{
        ListenAddr:   listen,
        MaxPeers:     s.opts.MaxConnections,
        ChannelCount: s.channels.Len(),
        KeepAlive:    s.opts.KeepAlive,
    }
}

// StartServer opens the listening socket. The returned task is already
// resolved.
func (s *Session) StartServer() (*ConnectTask, error) {
    if err := s.requireInitialized(); err != nil { return nil, err }
    listen := net.JoinHostPort(s.opts.BindAddress, strconv.Itoa(s.opts.Port))
    if err := s.eng.Start(context.Background(), s.hostConfig(listen)); err != nil {
        return nil, fmt.Errorf("start server on %s: %w", listen, err)
    }
    s.ids = identity.NewTranslator(identity.RoleServer)
    s.state = StateServerRunning
    s.log.Info("server started", zap.String("addr", addrString(s.eng.LocalAddr())), zap.Int("max_connections", s.opts.MaxConnections))
    return doneTask(true), nil
}

// StartClient opens an ephemeral socket and issues one outbound connect.
// The returned task resolves on the first Connect or Disconnect observed by
// PollEvent.
func (s *Session) StartClient() (*ConnectTask, error) {
    if err := s.requireInitialized(); err != nil { return nil, err }
    target := net.JoinHostPort(s.opts.Address, strconv.Itoa(s.opts.Port))
    if err := s.eng.Start(context.Background(), s.hostConfig("")); err != nil {
        return nil, fmt.Errorf("start client: %w", err)
    }
    h, err := s.eng.Connect(target)
    if err != nil {
        if cerr := s.eng.Close(); cerr != nil { s.log.Warn("close after failed connect", zap.Error(cerr)) }
        return nil, fmt.Errorf("connect %s: %w", target, err)
    }
    s.ids = identity.NewTranslator(identity.RoleClient)
    s.pending, s.pendingHandle = newTask(), h
    s.state = StateClientConnecting
    s.log.Info("client connecting", zap.String("target", target), zap.Uint32("handle", uint32(h)))
    return s.pending, nil
}

func (s *Session) requireInitialized() error {
    switch s.state {
    case StateInitialized:
        return nil
    case StateUninitialized:
        return ErrNotInitialized
    default:
        return fmt.Errorf("%w: state %s", ErrAlreadyRunning, s.state)
    }
}

func (s *Session) requireRunning() error {
    if !s.state.Running() { return fmt.Errorf("%w: state %s", ErrNotRunning, s.state) }
    return nil
}

// lookup resolves a caller identity to a live connection.
func (s *Session) lookup(id identity.ID) (*connEntry, error) {
    h, err := s.ids.ToNative(id)
    if err != nil { return nil, err }
    e, ok := s.conns.get(h)
    if !ok { return nil, fmt.Errorf("%w: %d", ErrUnknownIdentity, id) }
    return e, nil
}

// Send queues payload to id on the named channel with that channel's
// delivery mode.
func (s *Session) Send(id identity.ID, payload []byte, channelName string) error {
    if err := s.requireRunning(); err != nil { return err }
    ch, mode, err := s.channels.Resolve(channelName)
    if err != nil { return err }
    e, err := s.lookup(id)
    if err != nil { return err }
    if err := s.eng.Send(e.handle, ch, mode, payload); err != nil {
        return fmt.Errorf("send to %d on %q: %w", id, channelName, err)
    }
    e.sent(len(payload))
    return nil
}

// DisconnectRemote forcefully drops one peer of a server. No Disconnect
// event is reported for it afterwards.
func (s *Session) DisconnectRemote(id identity.ID) error {
    if err := s.requireRunning(); err != nil { return err }
    if s.ids.Role() != identity.RoleServer { return ErrNotServer }
    e, err := s.lookup(id)
    if err != nil { return err }
    s.conns.remove(e.handle)
    if err := s.eng.Disconnect(e.handle); err != nil { return fmt.Errorf("disconnect %d: %w", id, err) }
    s.log.Info("peer disconnected", zap.Uint64("identity", uint64(id)))
    return nil
}

// DisconnectLocal drops the server connection of a client, or abandons a
// connect still in progress.
func (s *Session) DisconnectLocal() error {
    if err := s.requireRunning(); err != nil { return err }
    if s.ids.Role() != identity.RoleClient { return ErrNotClient }
    if err := s.eng.Flush(); err != nil { s.log.Warn("flush before disconnect", zap.Error(err)) }
    if h, ok := s.ids.ServerHandle(); ok {
        s.conns.remove(h)
        s.ids.UnbindServer()
        if err := s.eng.Disconnect(h); err != nil { return fmt.Errorf("disconnect server: %w", err) }
        s.log.Info("disconnected from server")
    }
    if s.pending != nil {
        if err := s.eng.Disconnect(s.pendingHandle); err != nil { s.log.Debug("abandon connect", zap.Error(err)) }
        s.resolvePending(false)
    }
    return nil
}

// RoundTripTime is the engine's smoothed RTT estimate for id.
func (s *Session) RoundTripTime(id identity.ID) (time.Duration, error) {
    if err := s.requireRunning(); err != nil { return 0, err }
    e, err := s.lookup(id)
    if err != nil { return 0, err }
    rtt, err := s.eng.RoundTripTime(e.handle)
    if err != nil { return 0, fmt.Errorf("rtt of %d: %w", id, err) }
    return rtt, nil
}

// Shutdown flushes best-effort, closes the engine and returns the session
// to Uninitialized. Failures are logged, not returned.
func (s *Session) Shutdown() {
    if s.state == StateUninitialized { return }
    wasRunning := s.state.Running()
    s.state = StateShuttingDown
    if wasRunning {
        if err := s.eng.Flush(); err != nil { s.log.Warn("flush on shutdown", zap.Error(err)) }
        if err := s.eng.Close(); err != nil { s.log.Warn("engine close", zap.Error(err)) }
    }
    s.resolvePending(false)
    s.conns.clear()
    s.buffers.Release()
    s.channels = nil
    s.buffers = nil
    s.ids = identity.Translator{}
    s.state = StateUninitialized
    s.log.Info("session shut down")
}

func (s *Session) resolvePending(success bool) {
    if s.pending == nil { return }
    s.pending.resolve(success)
    s.pending = nil
}

// Stats returns the traffic counters of id.
func (s *Session) Stats(id identity.ID) (Stats, error) {
    if s.conns == nil { return Stats{}, ErrNotInitialized }
    e, err := s.lookup(id)
    if err != nil { return Stats{}, err }
    return e.stats, nil
}

// Peers lists every live connection ordered by identity.
func (s *Session) Peers() []Stats {
    if s.conns == nil { return nil }
    return s.conns.snapshot()
}

// LocalAddr is the bound address of the engine host, nil before start.
func (s *Session) LocalAddr() net.Addr {
    if !s.state.Running() { return nil }
    return s.eng.LocalAddr()
}

// Channels lists the registry in id order.
func (s *Session) Channels() []channel.Channel {
    if s.channels == nil { return nil }
    return s.channels.All()
}

func addrString(a net.Addr) string {
    if a == nil { return "" }
    return a.String()
}
