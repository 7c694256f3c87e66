package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/chepyr/go-task-api/internal/config"
)

// New builds the application logger for env. An explicit level overrides the
// env default.
func New(env, level string) (zerolog.Logger, error) {
	// per-logger levels decide; the global gate stays fully open
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	return newWithWriter(env, level, os.Stdout)
}

func newWithWriter(env, level string, out io.Writer) (zerolog.Logger, error) {
	zerolog.TimestampFieldName = "timestamp"

	var lvl zerolog.Level
	w := out
	switch env {
	case config.EnvDev:
		lvl = zerolog.DebugLevel
	case config.EnvProd:
		lvl = zerolog.InfoLevel
	case config.EnvLocal:
		lvl = zerolog.TraceLevel

		consoleWriter := zerolog.NewConsoleWriter()
		consoleWriter.TimeFormat = time.DateTime
		consoleWriter.Out = out
		w = consoleWriter
	default:
		return zerolog.Nop(), fmt.Errorf("unknown env: %s", env)
	}

	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
		}
		lvl = parsed
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Int("pid", os.Getpid()).
		Logger(), nil
}
