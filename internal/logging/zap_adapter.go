package logging

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger returns a zap.Logger whose entries are written to logger,
// honouring the slog handler's level. certmagic only logs through zap.
func NewZapLogger(logger *slog.Logger, source string) *zap.Logger {
	return zap.New(&zapCore{logger: logger.With(slog.String("source", source))})
}

type zapCore struct {
	logger *slog.Logger
}

func toSlogLevel(l zapcore.Level) slog.Level {
	switch l {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.InfoLevel:
		return slog.LevelInfo
	case zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func (c *zapCore) Enabled(l zapcore.Level) bool {
	return c.logger.Enabled(context.Background(), toSlogLevel(l))
}

func (c *zapCore) With(fields []zapcore.Field) zapcore.Core {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, toSlogAttr(f))
	}
	return &zapCore{logger: c.logger.With(args...)}
}

func (c *zapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *zapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	if ent.LoggerName != "" {
		attrs = append(attrs, slog.String("logger", ent.LoggerName))
	}
	for _, f := range fields {
		attrs = append(attrs, toSlogAttr(f))
	}
	c.logger.LogAttrs(context.Background(), toSlogLevel(ent.Level), ent.Message, attrs...)
	return nil
}

func (c *zapCore) Sync() error {
	return nil
}

func toSlogAttr(f zapcore.Field) slog.Attr {
	switch f.Type {
	case zapcore.StringType:
		return slog.String(f.Key, f.String)
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return slog.Int64(f.Key, f.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return slog.Uint64(f.Key, uint64(f.Integer))
	case zapcore.BoolType:
		return slog.Bool(f.Key, f.Integer == 1)
	case zapcore.DurationType:
		return slog.Duration(f.Key, time.Duration(f.Integer))
	case zapcore.TimeType:
		t := time.Unix(0, f.Integer)
		if loc, ok := f.Interface.(*time.Location); ok {
			t = t.In(loc)
		}
		return slog.Time(f.Key, t)
	case zapcore.StringerType:
		if s, ok := f.Interface.(interface{ String() string }); ok {
			return slog.String(f.Key, s.String())
		}
	}
	return slog.Any(f.Key, f.Interface)
}
