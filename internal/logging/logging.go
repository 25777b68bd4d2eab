// Package logging builds the zap logger shared by every runner component.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// LogFile receives every record in addition to stderr. Empty disables
	// the file sink.
	LogFile string

	// Debug switches to the development config (console encoding, debug
	// level, caller info).
	Debug bool

	// Quiet drops the stderr sink; used by subcommands that print their own
	// output.
	Quiet bool
}

// New builds a sugared logger writing to the job log file and stderr, and
// installs it as the zap global.
func New(opts Options) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if opts.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
	}

	cfg.OutputPaths = nil
	if !opts.Quiet {
		cfg.OutputPaths = append(cfg.OutputPaths, "stderr")
	}
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.LogFile)
	}
	if len(cfg.OutputPaths) == 0 {
		return zap.NewNop().Sugar(), nil
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zap.ReplaceGlobals(logger)

	return logger.Sugar(), nil
}
