package observability

import (
    "github.com/pion/logging"
    "go.uber.org/zap"
)

// PionLoggerFactory adapts zap to pion's logging.LoggerFactory so pion
// libraries log through the process logger. A nil logger means zap.L().
func PionLoggerFactory(l *zap.Logger) logging.LoggerFactory { return pionFactory{base: l} }

type pionFactory struct{ base *zap.Logger }

func (f pionFactory) NewLogger(scope string) logging.LeveledLogger {
    base := f.base
    if base == nil { base = zap.L() }
    return &pionLogger{l: base.Named("pion").With(zap.String("scope", scope)).Sugar()}
}

// pionLogger implements logging.LeveledLogger. Trace is dropped.
type pionLogger struct{ l *zap.SugaredLogger }

func (p *pionLogger) Trace(string)                       {}
func (p *pionLogger) Tracef(string, ...any)              {}
func (p *pionLogger) Debug(msg string)                   { p.l.Debug(msg) }
func (p *pionLogger) Debugf(format string, args ...any)  { p.l.Debugf(format, args...) }
func (p *pionLogger) Info(msg string)                    { p.l.Info(msg) }
func (p *pionLogger) Infof(format string, args ...any)   { p.l.Infof(format, args...) }
func (p *pionLogger) Warn(msg string)                    { p.l.Warn(msg) }
func (p *pionLogger) Warnf(format string, args ...any)   { p.l.Warnf(format, args...) }
func (p *pionLogger) Error(msg string)                   { p.l.Error(msg) }
func (p *pionLogger) Errorf(format string, args ...any)  { p.l.Errorf(format, args...) }
