// Package logging builds the zap loggers used by grammarctl.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the logger flavour.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// JSON keeps the production JSON encoder instead of the console one.
	JSON bool
}

// New returns a production logger writing to stderr. Stdout stays reserved
// for reports and operation logs.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !opts.JSON {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.DisableStacktrace = !opts.Verbose
	return config.Build()
}

// Sync flushes logger, ignoring the error returned for unsyncable stderr.
func Sync(logger *zap.Logger) {
	if logger != nil {
		_ = logger.Sync()
	}
}
