package main

import (
    "bufio"
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "udplink/pkg/identity"
    "udplink/pkg/transport"
)

func newConnectCmd(a *app) *cobra.Command {
    var (
        channelName string
        timeout     time.Duration
    )
    cmd := &cobra.Command{
        Use:   "connect",
        Short: "Connect to a server and send stdin lines on a channel",
        RunE: func(cmd *cobra.Command, args []string) error {
            o, err := a.options()
            if err != nil { return err }
            if cmd.Flags().Changed("address") { o.Address, _ = cmd.Flags().GetString("address") }
            if cmd.Flags().Changed("port") { o.Port, _ = cmd.Flags().GetInt("port") }
            s, err := a.newSession(o)
            if err != nil { return err }
            defer s.Shutdown()
            task, err := s.StartClient()
            if err != nil { return err }

            ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
            defer stop()
            hctx, cancel := context.WithTimeout(ctx, timeout)
            err = transport.AwaitConnect(hctx, s, task, nil)
            cancel()
            if err != nil { return err }
            a.log.Info("connected", zap.String("server", fmt.Sprintf("%s:%d", o.Address, o.Port)))

            lines := make(chan string)
            go func() {
                defer close(lines)
                sc := bufio.NewScanner(os.Stdin)
                for sc.Scan() {
                    select {
                    case lines <- sc.Text():
                    case <-ctx.Done():
                        return
                    }
                }
            }()

            out := cmd.OutOrStdout()
            return pollLoop(ctx, s, func() error {
                select {
                case line, ok := <-lines:
                    if !ok {
                        if err := s.DisconnectLocal(); err != nil { return err }
                        return errStop
                    }
                    return s.Send(identity.Server, []byte(line), channelName)
                default:
                    return nil
                }
            }, func(ev transport.Event) error {
                switch ev.Type {
                case transport.EventDisconnect:
                    a.log.Info("server closed the connection")
                    return errStop
                case transport.EventData:
                    fmt.Fprintf(out, "[%s] %s\n", ev.Channel, ev.Payload)
                }
                return nil
            })
        },
    }
    cmd.Flags().String("address", "", "server address (overrides session.address)")
    cmd.Flags().Int("port", 0, "server port (overrides session.port)")
    cmd.Flags().StringVar(&channelName, "channel", "chat", "channel stdin lines are sent on")
    cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "handshake timeout")
    return cmd
}
