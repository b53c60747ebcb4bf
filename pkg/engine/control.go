package engine

import (
    "errors"
    "fmt"
    "sync"
    "time"

    "udplink/pkg/protocol/codec"
)

// ProtocolVersion is carried in every hello.
const ProtocolVersion = 1

var ErrHandshake = errors.New("engine: handshake rejected")

// ControlKind tags control frames.
type ControlKind uint8

const (
    ControlHello ControlKind = iota + 1
    ControlPing
    ControlPong
    // ControlBye announces a local disconnect on engines whose transport
    // has no close notification of its own.
    ControlBye
)

// Control is a CBOR encoded frame on the control stream.
type Control struct {
    Kind     ControlKind `cbor:"1,keyasint"`
    Version  uint8       `cbor:"2,keyasint,omitempty"`
    Channels uint16      `cbor:"3,keyasint,omitempty"`
    Seq      uint32      `cbor:"4,keyasint,omitempty"`
    // Sent is the sender's clock in unix nanoseconds, echoed by pongs.
    Sent int64 `cbor:"5,keyasint,omitempty"`
}

var (
    controlOnce  sync.Once
    controlCodec codec.Codec
    controlErr   error
)

func cborCodec() (codec.Codec, error) {
    controlOnce.Do(func() { controlCodec, controlErr = codec.CBOR() })
    return controlCodec, controlErr
}

// Hello builds the hello frame for a host with channels channels.
func Hello(channels int) Control {
    return Control{Kind: ControlHello, Version: ProtocolVersion, Channels: uint16(channels)}
}

// Ping builds a ping stamped with now.
func Ping(seq uint32, now time.Time) Control {
    return Control{Kind: ControlPing, Seq: seq, Sent: now.UnixNano()}
}

// Pong answers ping.
func (c Control) Pong() Control { return Control{Kind: ControlPong, Seq: c.Seq, Sent: c.Sent} }

// SentTime decodes Sent.
func (c Control) SentTime() time.Time { return time.Unix(0, c.Sent) }

// EncodeControl marshals c.
func EncodeControl(c Control) ([]byte, error) {
    cc, err := cborCodec()
    if err != nil { return nil, err }
    return cc.Marshal(c)
}

// DecodeControl unmarshals a control frame.
func DecodeControl(b []byte) (Control, error) {
    cc, err := cborCodec()
    if err != nil { return Control{}, err }
    var c Control
    if err := cc.Unmarshal(b, &c); err != nil { return Control{}, fmt.Errorf("%w: %v", ErrMalformed, err) }
    if c.Kind < ControlHello || c.Kind > ControlBye { return Control{}, fmt.Errorf("%w: control kind %d", ErrMalformed, c.Kind) }
    return c, nil
}

// CheckHello validates a peer's hello against the local channel count.
func CheckHello(c Control, channels int) error {
    if c.Kind != ControlHello { return fmt.Errorf("%w: expected hello, got kind %d", ErrHandshake, c.Kind) }
    if c.Version != ProtocolVersion { return fmt.Errorf("%w: version %d", ErrHandshake, c.Version) }
    if int(c.Channels) != channels { return fmt.Errorf("%w: peer has %d channels, local %d", ErrHandshake, c.Channels, channels) }
    return nil
}
