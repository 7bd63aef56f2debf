package bmff

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// log is the package-level logger. By default it is disabled and writes to
// io.Discard; CLI front-ends call SetLogger to attach a console writer at a
// chosen level.
var log = zerolog.New(io.Discard).With().Timestamp().Logger().Level(zerolog.Disabled)

// SetLogger replaces the package logger, e.g. with a console writer wired
// to stderr by a cmd/ front-end. Analysis never writes to stdout/stderr
// directly; every non-fatal condition goes through this logger.
func SetLogger(l zerolog.Logger) {
	log = l
}

// NewConsoleLogger builds a human-readable logger at the given level,
// suitable for wiring into cmd/ binaries via SetLogger.
func NewConsoleLogger(level zerolog.Level) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

func warnTruncated(boxType BoxType, offset int64, reason string) string {
	log.Warn().
		Str("box", boxType.String()).
		Int64("offset", offset).
		Str("reason", reason).
		Msg("truncated")
	return "truncated: " + boxType.String() + " at " + itoa(offset) + ": " + reason
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
