package ctxlog

import (
	"github.com/rs/zerolog"
)

func Op(logger zerolog.Logger, op string) zerolog.Logger {
	return logger.With().Str("op", op).Logger()
}

// Server tags logger with the network a connection belongs to.
func Server(logger zerolog.Logger, name string, attempt int64) zerolog.Logger {
	return logger.With().Str("server", name).Int64("attempt", attempt).Logger()
}
