// Package logger builds the logr.Logger used across dap-inferiors on top of zap.
// Console output always goes to stderr because stdout may carry DAP traffic.
package logger

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
)

type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger named name. JSON selects the JSON encoder instead of the console one.
func New(name string, json bool) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel)
	zapLogger := zap.New(core)

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

// SetLevelText accepts "debug", "info", "error" or a positive integer verbosity.
func (l *Logger) SetLevelText(text string) error {
	level, err := ParseLevel(text)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

func (l *Logger) Flush() {
	l.flush()
}

// ParseLevel converts a level name or a logr verbosity into a zap level.
// logr V(n) maps to zap level -n, so verbosity 2 enables V(2) messages.
func ParseLevel(text string) (zapcore.Level, error) {
	text = strings.TrimSpace(text)
	if n, err := strconv.Atoi(text); err == nil {
		if n < 0 {
			return zapcore.InfoLevel, fmt.Errorf("verbosity must not be negative: %d", n)
		}
		return zapcore.Level(-n), nil
	}
	level, err := zapcore.ParseLevel(text)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", text, err)
	}
	return level, nil
}

// AddLevelFlag registers -v/--verbosity on fs.
func AddLevelFlag(fs *pflag.FlagSet) {
	fs.StringP(verbosityFlagName, verbosityFlagShortName, "", "Logging verbosity level (e.g. -v=debug). Can be one of 'debug', 'info', or 'error', or a positive integer for increasing debug verbosity (2 logs every DAP message).")
}

// VerbosityFlagName is the long name registered by AddLevelFlag.
func VerbosityFlagName() string {
	return verbosityFlagName
}
