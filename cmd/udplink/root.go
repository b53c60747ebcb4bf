package main

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "udplink/pkg/config"
    "udplink/pkg/observability"
    "udplink/pkg/transport"
)

// app carries state shared by every subcommand.
type app struct {
    configPath string
    engine     string

    cfg *config.Config
    log *zap.Logger
}

func newRootCmd() *cobra.Command {
    a := &app{}
    root := &cobra.Command{
        Use:           "udplink",
        Short:         "Message sessions over pluggable UDP engines",
        SilenceUsage:  true,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.load() },
        PersistentPostRun: func(cmd *cobra.Command, args []string) {
            if a.log != nil { _ = a.log.Sync() }
        },
    }
    root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
    root.PersistentFlags().StringVar(&a.engine, "engine", "", "engine kind: quic, sctp or mem (overrides session.engine)")
    root.AddCommand(newServeCmd(a), newConnectCmd(a), newChannelsCmd(a), newVersionCmd())
    return root
}

func (a *app) load() error {
    cfg, err := config.Load(a.configPath)
    if err != nil { return fmt.Errorf("load config: %w", err) }
    if a.engine != "" { cfg.Session.Engine = a.engine }
    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil { return fmt.Errorf("setup logger: %w", err) }
    a.cfg, a.log = cfg, logger
    a.log.Debug("effective configuration", zap.Any("session", cfg.Session), zap.Any("channels", cfg.Channels))
    return nil
}

func (a *app) options() (transport.Options, error) {
    o, err := transport.OptionsFromConfig(a.cfg.Session, a.cfg.Channels)
    if err != nil { return transport.Options{}, err }
    o.Logger = a.log
    return o, nil
}

// newSession builds an initialized session on the configured engine.
func (a *app) newSession(o transport.Options) (*transport.Session, error) {
    eng, err := transport.NewEngine(a.cfg.Session.Engine)
    if err != nil { return nil, err }
    s := transport.New(eng, o)
    if err := s.Init(); err != nil { return nil, err }
    return s, nil
}

// idle is how long the poll loops sleep after a poll that yielded nothing.
const idle = 2 * time.Millisecond

// pollLoop polls s until ctx ends or handle returns an error. Returning
// errStop from handle ends the loop without error.
func pollLoop(ctx context.Context, s *transport.Session, tick func() error, handle func(transport.Event) error) error {
    for {
        if ctx.Err() != nil { return nil }
        if tick != nil {
            if err := tick(); err != nil { return stopped(err) }
        }
        ev, err := s.PollEvent()
        if err != nil { return err }
        if ev.Type != transport.EventNothing {
            if err := handle(ev); err != nil { return stopped(err) }
            continue
        }
        select {
        case <-ctx.Done():
            return nil
        case <-time.After(idle):
        }
    }
}

var errStop = errors.New("stop")

func stopped(err error) error {
    if errors.Is(err, errStop) { return nil }
    return err
}
