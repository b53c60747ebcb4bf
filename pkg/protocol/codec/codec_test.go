package codec

import (
    "errors"
    "testing"

    "google.golang.org/protobuf/types/known/structpb"
)

func TestJSONCodec(t *testing.T) {
    c := JSON()
    in := map[string]any{"a": 1, "b": "x"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out map[string]any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out["a"].(float64) != 1 || out["b"].(string) != "x" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

type frame struct {
    Kind uint8  `cbor:"1,keyasint"`
    Seq  uint32 `cbor:"2,keyasint,omitempty"`
}

func TestCBORCodecIsCanonical(t *testing.T) {
    c, err := CBOR()
    if err != nil { t.Fatalf("new cbor: %v", err) }
    a, err := c.Marshal(map[string]int{"b": 2, "a": 1})
    if err != nil { t.Fatalf("marshal: %v", err) }
    b, err := c.Marshal(map[string]int{"a": 1, "b": 2})
    if err != nil { t.Fatalf("marshal: %v", err) }
    if string(a) != string(b) { t.Fatalf("map encoding depends on insertion order") }

    enc, err := c.Marshal(frame{Kind: 2, Seq: 9})
    if err != nil { t.Fatalf("marshal frame: %v", err) }
    var out frame
    if err := c.Unmarshal(enc, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out != (frame{Kind: 2, Seq: 9}) { t.Fatalf("roundtrip mismatch: %+v", out) }
}

func TestProtoCodec(t *testing.T) {
    c := Proto()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    if err != nil { t.Fatalf("struct: %v", err) }
    b, err := c.Marshal(s)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out structpb.Struct
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Fields["k"].GetStringValue() != "v" { t.Fatalf("roundtrip mismatch") }
    if _, err := c.Marshal(map[string]any{}); err == nil { t.Fatalf("non-message accepted") }
}

func TestRegistryLookup(t *testing.T) {
    r, err := NewRegistry()
    if err != nil { t.Fatalf("registry: %v", err) }
    for alias, ct := range map[string]string{"json": "application/json", "CBOR": "application/cbor", "pb": "application/x-protobuf", "application/json": "application/json"} {
        c, err := r.Lookup(alias)
        if err != nil || c.ContentType() != ct { t.Fatalf("lookup %q = %v, %v", alias, c, err) }
    }
    if _, err := r.Lookup("xml"); !errors.Is(err, ErrUnknownFormat) { t.Fatalf("xml: %v", err) }
}
