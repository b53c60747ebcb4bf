package main

import (
    "encoding/hex"
    "fmt"

    "github.com/spf13/cobra"
    "google.golang.org/protobuf/types/known/structpb"

    "udplink/pkg/channel"
    "udplink/pkg/protocol/codec"
)

// channelRow is the printable form of one registry entry.
type channelRow struct {
    ID       uint8  `json:"id" cbor:"1,keyasint"`
    Name     string `json:"name" cbor:"2,keyasint"`
    Delivery string `json:"delivery" cbor:"3,keyasint"`
    Builtin  bool   `json:"builtin" cbor:"4,keyasint"`
}

func newChannelsCmd(a *app) *cobra.Command {
    var format string
    cmd := &cobra.Command{
        Use:   "channels",
        Short: "Print the channel registry built from the configuration",
        RunE: func(cmd *cobra.Command, args []string) error {
            o, err := a.options()
            if err != nil { return err }
            reg, err := channel.NewRegistry(o.Builtins, o.Channels)
            if err != nil { return err }
            codecs, err := codec.NewRegistry()
            if err != nil { return err }
            c, err := codecs.Lookup(format)
            if err != nil { return err }
            b, err := encodeChannels(c, reg.All())
            if err != nil { return fmt.Errorf("encode channels: %w", err) }
            if c.ContentType() == "application/json" {
                _, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
            } else {
                _, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))
            }
            return err
        },
    }
    cmd.Flags().StringVar(&format, "format", "json", "output format: json, cbor or proto (binary formats print as hex)")
    return cmd
}

func encodeChannels(c codec.Codec, chans []channel.Channel) ([]byte, error) {
    rows := make([]channelRow, len(chans))
    for i, ch := range chans {
        rows[i] = channelRow{ID: ch.ID, Name: ch.Name, Delivery: ch.Mode.String(), Builtin: ch.Builtin}
    }
    if c.ContentType() != "application/x-protobuf" { return c.Marshal(rows) }
    list := make([]any, len(rows))
    for i, r := range rows {
        list[i] = map[string]any{"id": float64(r.ID), "name": r.Name, "delivery": r.Delivery, "builtin": r.Builtin}
    }
    msg, err := structpb.NewStruct(map[string]any{"channels": list})
    if err != nil { return nil, err }
    return c.Marshal(msg)
}
