package zap

import (
	"go.uber.org/zap"

	corelog "github.com/vikyol/awsideman-cache/log"
)

var _ corelog.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f corelog.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f corelog.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f corelog.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f corelog.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f corelog.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
