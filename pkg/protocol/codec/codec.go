// Package codec holds the serialization formats used for control frames and
// CLI output.
package codec

import (
    "errors"
    "fmt"
    "strings"
)

var ErrUnknownFormat = errors.New("codec: unknown format")

// Codec marshals typed values. Implementations are deterministic.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types and short format names to codecs.
type Registry struct {
    byType  map[string]Codec
    byAlias map[string]string
}

// NewRegistry constructs a registry preloaded with JSON, CBOR and Protobuf.
func NewRegistry() (*Registry, error) {
    r := &Registry{byType: make(map[string]Codec), byAlias: make(map[string]string)}
    r.Register(JSON(), "json")
    r.Register(Proto(), "proto", "protobuf", "pb")
    c, err := CBOR()
    if err != nil { return nil, fmt.Errorf("cbor codec: %w", err) }
    r.Register(c, "cbor")
    return r, nil
}

// Register adds a codec under its content type and any aliases.
func (r *Registry) Register(c Codec, aliases ...string) {
    r.byType[c.ContentType()] = c
    for _, a := range aliases { r.byAlias[strings.ToLower(a)] = c.ContentType() }
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// Lookup resolves a content type or short name such as "json".
func (r *Registry) Lookup(format string) (Codec, error) {
    f := strings.ToLower(strings.TrimSpace(format))
    if ct, ok := r.byAlias[f]; ok { f = ct }
    if c := r.byType[f]; c != nil { return c, nil }
    return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
