package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerolog(writer io.Writer, level LogLevel) *ZerologAdapter {
	logger := zerolog.New(writer).
		Level(level.zerolog()).
		With().
		Timestamp().
		Logger()

	return &ZerologAdapter{logger: logger}
}

// NewConsoleLogger writes human readable lines to stderr. Stdout carries results only.
func NewConsoleLogger(level LogLevel) *ZerologAdapter {
	return NewWithWriter(os.Stderr, "console", level)
}

// New picks the console or JSON encoder by format name and writes to stderr.
func New(format string, level LogLevel) *ZerologAdapter {
	return NewWithWriter(os.Stderr, format, level)
}

// NewWithWriter is New on an arbitrary destination.
func NewWithWriter(w io.Writer, format string, level LogLevel) *ZerologAdapter {
	if format == "json" {
		return NewZerolog(w, level)
	}
	return NewZerolog(zerolog.ConsoleWriter{Out: w, NoColor: w != os.Stderr}, level)
}

// OpenOutput resolves a log destination: "" or "stderr" is os.Stderr, anything else is a
// file opened for append. The returned close func is a no-op for stderr.
func OpenOutput(output string) (io.Writer, func() error, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output %s: %w", output, err)
	}
	return f, f.Close, nil
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	event := z.logger.Info().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	event := z.logger.Error().Str("component", component).Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("operation failed")
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	event := z.logger.Warn().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	event := z.logger.Debug().Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}
