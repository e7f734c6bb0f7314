package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wdalert/alertd/internal/alerter"
	"github.com/wdalert/alertd/internal/config"
	"github.com/wdalert/alertd/internal/logbuffer"
	"github.com/wdalert/alertd/internal/version"
)

// Setup holds the process logger and the outputs behind it
type Setup struct {
	Logger zerolog.Logger
	Buffer *logbuffer.LogBuffer

	file *lumberjack.Logger
}

// New builds the process logger. Lines go to stdout, the in-memory buffer,
// and, when a file is configured, a size-rotated log file.
func New(cfg config.LoggingConfig, stdout io.Writer, bufferSize int) *Setup {
	if stdout == nil {
		stdout = os.Stdout
	}

	s := &Setup{Buffer: logbuffer.New(bufferSize)}
	writers := []io.Writer{stdout, s.Buffer}
	if cfg.File != "" {
		s.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, s.file)
	}

	s.Logger = zerolog.New(io.MultiWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("version", version.Version).
		Logger()
	return s
}

// Close flushes and closes the log file, if any
func (s *Setup) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// ParseLevel maps a level name to zerolog, defaulting to info
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Callback adapts a zerolog logger to the dispatcher's log callback
func Callback(logger zerolog.Logger) alerter.LogFunc {
	log := logger.With().Str("component", "alerts").Logger()
	return func(level, msg string) {
		log.WithLevel(callbackLevel(level)).Msg(msg)
	}
}

func callbackLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		// never exit the process from a callback
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
