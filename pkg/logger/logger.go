package logger

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.Nop()

// Levels accepted by Init.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel, nil
	case LevelInfo, "":
		return zerolog.InfoLevel, nil
	case LevelWarn, "warning":
		return zerolog.WarnLevel, nil
	case LevelError:
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Init initializes the logger writing to stdout.
func Init(level string, isService bool) error {
	return InitWriter(os.Stdout, level, isService)
}

// InitWriter initializes the logger on an arbitrary writer. Services run
// under a journal that stamps records already, so timestamps are dropped.
func InitWriter(w io.Writer, level string, isService bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    isService,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)

	return nil
}

// IsService checks if the application is running as a service
func IsService() bool {
	if fi, err := os.Stdin.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return true
	}
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// With returns a child logger tagged with a component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

// ErrorWithCode logs an error message with its error code when it has one
func ErrorWithCode(err error) *zerolog.Event {
	ev := log.Error().Err(err)
	if code := errors.CodeOf(err); code != "" {
		ev = ev.Str("error_code", string(code))
	}
	return ev
}

// FatalWithCode logs a fatal message with its error code and exits the program
func FatalWithCode(err error) *zerolog.Event {
	ev := log.Fatal().Err(err)
	if code := errors.CodeOf(err); code != "" {
		ev = ev.Str("error_code", string(code))
	}
	return ev
}
