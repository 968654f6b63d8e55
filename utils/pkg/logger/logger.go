package logger

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// timeFormat pins log timestamps to UTC with millisecond precision so lines
// from different hosts sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000Z"

func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(timeFormat))
			}
			// Drop empty-string attrs to keep lines tidy.
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
