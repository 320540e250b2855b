package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chepyr/task-store/internal/config"
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the application logger for cfg.Env. When cfg.Log.File is set
// the log is also written, as JSON, to a rotating file; the returned closer
// releases it.
func New(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	var file io.Writer
	if cfg.Log.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    100, // MB
			MaxBackups: 30,
			MaxAge:     90, // days
		}
		file, closer = rotating, rotating
	}

	log, err := NewWithWriter(cfg.Env, os.Stdout, file)
	if err != nil {
		closer.Close()
		return zerolog.Nop(), nil, err
	}
	return log, closer, nil
}

// NewWithWriter is New with explicit sinks. file may be nil.
func NewWithWriter(env string, out io.Writer, file io.Writer) (zerolog.Logger, error) {
	var level zerolog.Level
	switch env {
	case config.EnvLocal:
		level = zerolog.DebugLevel
		console := zerolog.NewConsoleWriter()
		console.TimeFormat = time.DateTime
		console.Out = out
		out = console
	case config.EnvDev:
		level = zerolog.DebugLevel
	case config.EnvProd:
		level = zerolog.InfoLevel
	default:
		return zerolog.Nop(), fmt.Errorf("unknown env: %s", env)
	}

	if file != nil {
		out = zerolog.MultiLevelWriter(out, file)
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Caller().
		Int("pid", os.Getpid()).
		Logger(), nil
}
