package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory hands pion a zerolog backed logger per scope.
type LoggerFactory struct{}

func (LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return zeroLogger{l: log.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type zeroLogger struct {
	l zerolog.Logger
}

// pion is chatty; its info level maps to debug.
func (z zeroLogger) Trace(msg string)                  { z.l.Trace().Msg(msg) }
func (z zeroLogger) Tracef(format string, args ...any) { z.l.Trace().Msg(fmt.Sprintf(format, args...)) }
func (z zeroLogger) Debug(msg string)                  { z.l.Debug().Msg(msg) }
func (z zeroLogger) Debugf(format string, args ...any) { z.l.Debug().Msg(fmt.Sprintf(format, args...)) }
func (z zeroLogger) Info(msg string)                   { z.l.Debug().Msg(msg) }
func (z zeroLogger) Infof(format string, args ...any)  { z.l.Debug().Msg(fmt.Sprintf(format, args...)) }
func (z zeroLogger) Warn(msg string)                   { z.l.Warn().Msg(msg) }
func (z zeroLogger) Warnf(format string, args ...any)  { z.l.Warn().Msg(fmt.Sprintf(format, args...)) }
func (z zeroLogger) Error(msg string)                  { z.l.Error().Msg(msg) }
func (z zeroLogger) Errorf(format string, args ...any) { z.l.Error().Msg(fmt.Sprintf(format, args...)) }
