package logging

import (
	"log/slog"
)

// CronLogger satisfies cron.Logger. Cron's routine scheduling chatter is
// logged at debug level.
type CronLogger struct {
	logger *slog.Logger
}

func NewCronLogger(logger *slog.Logger, source string) *CronLogger {
	return &CronLogger{logger: logger.With(slog.String("source", source))}
}

func (l *CronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *CronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
