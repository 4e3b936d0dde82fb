package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/offlinefirst/bouncekeys/pkg/config"
)

// Options describe how to configure a logger instance.
type Options struct {
	Level  string
	Format string
	Output io.Writer
	// File, when set, tees every entry into a size-rotated JSON log file.
	File string
}

// New creates a structured zap logger.
func New(opts Options) (*zap.Logger, error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "text":
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), lvl)

	if file := strings.TrimSpace(opts.File); file != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   file,
				MaxSize:    20, // MB
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   true,
			}),
			lvl,
		)
		core = zapcore.NewTee(core, fileCore)
	}

	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func parseLevel(level string) (zap.AtomicLevel, error) {
	normalized, err := config.NormalizeLogLevel(level)
	if err != nil {
		return zap.AtomicLevel{}, err
	}

	switch normalized {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	case "info":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel), nil
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel), nil
	default:
		return zap.AtomicLevel{}, fmt.Errorf("unhandled log level %q", normalized)
	}
}
