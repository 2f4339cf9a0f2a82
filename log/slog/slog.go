//go:build go1.21

// Package slog adapts a *log/slog.Logger to the cache logging contract.
package slog

import (
	"context"
	stdslog "log/slog"

	corelog "github.com/vikyol/awsideman-cache/log"
)

// Logger forwards cache log records to the wrapped slog logger.
type Logger struct{ L *stdslog.Logger }

var _ corelog.Logger = Logger{}

func (a Logger) Debug(msg string, f corelog.Fields) { a.emit(stdslog.LevelDebug, msg, f) }
func (a Logger) Info(msg string, f corelog.Fields)  { a.emit(stdslog.LevelInfo, msg, f) }
func (a Logger) Warn(msg string, f corelog.Fields)  { a.emit(stdslog.LevelWarn, msg, f) }
func (a Logger) Error(msg string, f corelog.Fields) { a.emit(stdslog.LevelError, msg, f) }

func (a Logger) emit(lvl stdslog.Level, msg string, f corelog.Fields) {
	attrs := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		attrs = append(attrs, stdslog.Any(k, v))
	}
	a.L.LogAttrs(context.Background(), lvl, msg, attrs...)
}
