package main

import (
    "fmt"

    "github.com/spf13/cobra"

    "udplink/pkg/engine"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "version",
        Short: "Print the build and wire protocol versions",
        // Skip config loading.
        PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
        RunE: func(cmd *cobra.Command, args []string) error {
            _, err := fmt.Fprintf(cmd.OutOrStdout(), "udplink %s (protocol %d)\n", version, engine.ProtocolVersion)
            return err
        },
    }
}
