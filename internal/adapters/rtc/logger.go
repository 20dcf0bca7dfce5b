package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// zerologFactory routes pion's internal logging into the global zerolog
// logger so media-stack noise carries the same fields as ours.
type zerologFactory struct{}

func (zerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLogger{logger: log.With().Str("module", "pion."+scope).Logger()}
}

type zerologLogger struct {
	logger zerolog.Logger
}

func (l *zerologLogger) Trace(msg string)                  { l.logger.Trace().Msg(msg) }
func (l *zerologLogger) Tracef(format string, args ...any) { l.logger.Trace().Msgf(format, args...) }
func (l *zerologLogger) Debug(msg string)                  { l.logger.Debug().Msg(msg) }
func (l *zerologLogger) Debugf(format string, args ...any) { l.logger.Debug().Msgf(format, args...) }
func (l *zerologLogger) Info(msg string)                   { l.logger.Info().Msg(msg) }
func (l *zerologLogger) Infof(format string, args ...any)  { l.logger.Info().Msgf(format, args...) }
func (l *zerologLogger) Warn(msg string)                   { l.logger.Warn().Msg(msg) }
func (l *zerologLogger) Warnf(format string, args ...any)  { l.logger.Warn().Msgf(format, args...) }
func (l *zerologLogger) Error(msg string)                  { l.logger.Error().Msg(msg) }
func (l *zerologLogger) Errorf(format string, args ...any) { l.logger.Error().Msgf(format, args...) }
