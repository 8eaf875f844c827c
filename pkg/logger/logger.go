// pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Setup(consoleWriter(os.Stdout))
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}
}

// Setup points Log, and the zerolog/log logger the internal packages write
// through, at out. The current global level is kept.
func Setup(out io.Writer) {
	Log = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("service", "ingest").
		Logger()
	log.Logger = Log
}

// Configure selects the output format and level. Unknown formats fall back to
// the console writer.
func Configure(level, format string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		Setup(os.Stdout)
	case FormatConsole, "":
		Setup(consoleWriter(os.Stdout))
	default:
		Setup(consoleWriter(os.Stdout))
		Log.Warn().Str("format", format).Msg("unknown log format, using console")
	}
	SetLevel(level)
}

// SetLevel sets the global log level, defaulting to info.
func SetLevel(levelStr string) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil || level == zerolog.NoLevel {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
