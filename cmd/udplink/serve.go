package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "udplink/pkg/transport"
)

func newServeCmd(a *app) *cobra.Command {
    var echo string
    cmd := &cobra.Command{
        Use:   "serve",
        Short: "Run a server session, logging events and echoing one channel",
        RunE: func(cmd *cobra.Command, args []string) error {
            o, err := a.options()
            if err != nil { return err }
            if cmd.Flags().Changed("port") { o.Port, _ = cmd.Flags().GetInt("port") }
            if cmd.Flags().Changed("bind") { o.BindAddress, _ = cmd.Flags().GetString("bind") }
            s, err := a.newSession(o)
            if err != nil { return err }
            defer s.Shutdown()
            if _, err := s.StartServer(); err != nil { return err }
            a.log.Info("serving", zap.String("engine", a.cfg.Session.Engine), zap.Stringer("addr", s.LocalAddr()))

            ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
            defer stop()
            return pollLoop(ctx, s, nil, func(ev transport.Event) error {
                switch ev.Type {
                case transport.EventConnect:
                    a.log.Info("client connected", zap.Uint64("identity", uint64(ev.Identity)))
                case transport.EventDisconnect:
                    a.log.Info("client disconnected", zap.Uint64("identity", uint64(ev.Identity)))
                case transport.EventData:
                    a.log.Debug("data", zap.Uint64("identity", uint64(ev.Identity)), zap.String("channel", ev.Channel), zap.Int("len", len(ev.Payload)))
                    if ev.Channel != echo { return nil }
                    if err := s.Send(ev.Identity, ev.Payload, ev.Channel); err != nil {
                        a.log.Warn("echo failed", zap.Uint64("identity", uint64(ev.Identity)), zap.Error(err))
                    }
                }
                return nil
            })
        },
    }
    cmd.Flags().Int("port", 0, "listen port (overrides session.port)")
    cmd.Flags().String("bind", "", "bind address (overrides session.bind_address)")
    cmd.Flags().StringVar(&echo, "echo", "chat", "channel whose messages are echoed back")
    return cmd
}
