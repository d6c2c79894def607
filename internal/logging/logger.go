package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	TextFormat = "text"
	JSONFormat = "json"
)

// New builds the application logger. Errors logged as attributes also get
// their verbose form (with stack trace) under "stack_trace".
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: ReplaceAttr}
	switch strings.ToLower(format) {
	case JSONFormat:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case TextFormat, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, errors.Newf("unknown log format %q", format)
	}
}

func ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	err, ok := a.Value.Any().(error)
	if !ok || err == nil {
		return a
	}
	verbose := fmt.Sprintf("%+v", err)
	if verbose == err.Error() {
		return a
	}
	return slog.Group("",
		slog.String(a.Key, err.Error()),
		slog.String("stack_trace", verbose),
	)
}
