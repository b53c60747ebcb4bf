// Package mem is an in-process engine. Hosts attached to one Network
// exchange messages through in-memory inboxes; Service processes exactly
// one inbound message per call, so tests drive both sides
// deterministically from a single goroutine.
package mem

import (
    "errors"
    "net"
    "strconv"
    "sync"
)

var (
    ErrAddrInUse  = errors.New("mem: address already in use")
    ErrNoListener = errors.New("mem: no such listener")
)

// Network is a registry of hosts by address.
type Network struct {
    mu      sync.Mutex
    hosts   map[string]*Engine
    severed map[[2]string]bool
    nextEph int
}

func NewNetwork() *Network {
    return &Network{hosts: make(map[string]*Engine), severed: make(map[[2]string]bool), nextEph: 49152}
}

// Default is the network used by engines built without an explicit one.
var Default = NewNetwork()

func (n *Network) attach(addr string, e *Engine) (string, error) {
    n.mu.Lock(); defer n.mu.Unlock()
    host, port, err := net.SplitHostPort(addr)
    if addr == "" || (err == nil && port == "0") {
        for {
            cand := normalize(net.JoinHostPort(host, strconv.Itoa(n.nextEph)))
            n.nextEph++
            if n.nextEph > 65535 { n.nextEph = 49152 }
            if _, busy := n.hosts[cand]; !busy { addr = cand; break }
        }
    } else {
        addr = normalize(addr)
        if _, busy := n.hosts[addr]; busy { return "", ErrAddrInUse }
    }
    n.hosts[addr] = e
    return addr, nil
}

func (n *Network) detach(addr string, e *Engine) {
    n.mu.Lock(); defer n.mu.Unlock()
    if n.hosts[addr] == e { delete(n.hosts, addr) }
}

func (n *Network) lookup(addr string) *Engine {
    n.mu.Lock(); defer n.mu.Unlock()
    return n.hosts[normalize(addr)]
}

// Sever cuts the path between the hosts at a and b. Every connection
// between them times out on both sides, and later traffic is dropped.
func (n *Network) Sever(a, b string) {
    a, b = normalize(a), normalize(b)
    n.mu.Lock()
    n.severed[pairKey(a, b)] = true
    ea, eb := n.hosts[a], n.hosts[b]
    n.mu.Unlock()
    if ea != nil { ea.deliver(message{kind: msgSevered, from: b}) }
    if eb != nil { eb.deliver(message{kind: msgSevered, from: a}) }
}

// Heal restores the path between a and b for new connections.
func (n *Network) Heal(a, b string) {
    n.mu.Lock(); delete(n.severed, pairKey(normalize(a), normalize(b))); n.mu.Unlock()
}

func (n *Network) isSevered(a, b string) bool {
    n.mu.Lock(); defer n.mu.Unlock()
    return n.severed[pairKey(a, b)]
}

func pairKey(a, b string) [2]string {
    if a > b { a, b = b, a }
    return [2]string{a, b}
}

// normalize folds wildcard and loopback hosts together so ":7777" and
// "127.0.0.1:7777" name the same host.
func normalize(addr string) string {
    host, port, err := net.SplitHostPort(addr)
    if err != nil { return addr }
    switch host {
    case "", "0.0.0.0", "::", "localhost", "127.0.0.1", "::1":
        host = "127.0.0.1"
    }
    return net.JoinHostPort(host, port)
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
