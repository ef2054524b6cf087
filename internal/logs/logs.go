// Package logs configures the process-wide slog logger: a colorized tint
// handler on stderr for interactive use, and a smithy-go logging.Logger
// adapter for the AWS SDK calls the storage client makes underneath.
package logs

import (
	"log/slog"
	"os"
	"strings"

	"github.com/aws/smithy-go/logging"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

const LevelNone = slog.Level(12)

var logLevel string

// SetLogLevel records the level NewLogger and AwsCliLogger should use.
func SetLogLevel(level string) {
	logLevel = level
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return LevelNone
	}
}

// NewLogger builds the interactive logger: tint on stderr, colorized when
// stderr is a terminal.
func NewLogger() *slog.Logger {
	w := os.Stderr
	handler := tint.NewHandler(w, &tint.Options{
		Level:   levelFromString(logLevel),
		NoColor: !isatty.IsTerminal(w.Fd()),
	})
	return slog.New(handler)
}

// ConfigureDefaults sets the process-wide default logger at the given level.
func ConfigureDefaults(level string) {
	SetLogLevel(level)
	slog.SetDefault(NewLogger())
}

// AwsCliLogger adapts the configured level to smithy-go's logging.Logger
// interface so AWS SDK client calls log through the same slog pipeline as
// the rest of the CLI, writing to iamlens.log rather than stderr so SDK
// request tracing doesn't interleave with command output.
func AwsCliLogger() logging.Logger {
	return logging.LoggerFunc(func(classification logging.Classification, format string, v ...interface{}) {
		level := levelFromString(logLevel)
		if level == LevelNone {
			return
		}

		f, err := os.OpenFile("iamlens.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		defer f.Close()

		logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		switch classification {
		case logging.Debug:
			logger.Debug(format, v...)
		case logging.Warn:
			logger.Warn(format, v...)
		default:
			logger.Debug(format, v...)
		}
	})
}

// CommandLogger returns a logger scoped to one of the simulate / who-can /
// principal-can subcommands, tagged so --verbose diagnostics can be
// attributed to the operation that produced them.
func CommandLogger(command string) *slog.Logger {
	return NewLogger().With("command", command)
}
