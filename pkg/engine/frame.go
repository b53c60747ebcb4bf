package engine

import (
    "encoding/binary"
    "errors"
    "fmt"
    "io"

    "google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single length-prefixed stream frame.
const MaxFrameSize = 1 << 24

// ControlStream is the stream preamble of the control stream; channel c
// travels on stream c+1.
const ControlStream = 0

var (
    ErrMalformed     = errors.New("engine: malformed frame")
    ErrFrameTooLarge = errors.New("engine: frame too large")
)

// AppendDatagram encodes a datagram: varint channel, varint sequence, payload.
func AppendDatagram(dst []byte, ch uint8, seq uint32, payload []byte) []byte {
    dst = protowire.AppendVarint(dst, uint64(ch))
    dst = protowire.AppendVarint(dst, uint64(seq))
    return append(dst, payload...)
}

// DatagramOverhead is the worst-case header size of AppendDatagram.
const DatagramOverhead = 2 + 5

// ParseDatagram is the inverse of AppendDatagram. The payload aliases b.
func ParseDatagram(b []byte) (ch uint8, seq uint32, payload []byte, err error) {
    v, n := protowire.ConsumeVarint(b)
    if n < 0 || v > 0xff { return 0, 0, nil, fmt.Errorf("%w: channel", ErrMalformed) }
    ch = uint8(v)
    b = b[n:]
    v, n = protowire.ConsumeVarint(b)
    if n < 0 || v > 0xffffffff { return 0, 0, nil, fmt.Errorf("%w: sequence", ErrMalformed) }
    return ch, uint32(v), b[n:], nil
}

// AppendPreamble encodes the stream id a freshly opened stream starts with.
func AppendPreamble(dst []byte, stream uint64) []byte { return protowire.AppendVarint(dst, stream) }

// ReadPreamble reads the stream id written by AppendPreamble; protowire
// varints share the uvarint encoding.
func ReadPreamble(r io.ByteReader) (uint64, error) { return binary.ReadUvarint(r) }

// WriteFrame writes b with a u32 LE length prefix in one call.
func WriteFrame(w io.Writer, b []byte) error {
    if len(b) > MaxFrameSize { return ErrFrameTooLarge }
    buf := make([]byte, 4+len(b))
    binary.LittleEndian.PutUint32(buf, uint32(len(b)))
    copy(buf[4:], b)
    _, err := w.Write(buf)
    return err
}

// ReadFrame reads one length-prefixed frame into a fresh Buffer.
func ReadFrame(r io.Reader) (*Buffer, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(r, lenbuf[:]); err != nil { return nil, err }
    n := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if n > MaxFrameSize { return nil, ErrFrameTooLarge }
    p := GetBuffer(n)
    if _, err := io.ReadFull(r, p.Space()[:n]); err != nil { p.Release(); return nil, err }
    p.SetLen(n)
    return p, nil
}
