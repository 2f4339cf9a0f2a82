package awscache

import "github.com/vikyol/awsideman-cache/log"

// Fields is a minimal structured field map for logs.
type Fields = log.Fields

// Logger is the leveled logging contract used across the cache core.
// Adapters live in log/zap, log/slog and log/logrus.
type Logger = log.Logger

// NopLogger discards all log output. It is the default when no Logger is set.
type NopLogger = log.Nop
