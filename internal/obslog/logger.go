// Package obslog is Arcadia Forge's observability facility: a
// structured, rotated log file (spec.md §A "Logging") plus the
// Prometheus metrics registry the supervisor reports budget spend,
// hook latency, and session outcomes to. It is deliberately separate
// from the Event Log (internal/eventlog): the Event Log is durable
// domain history replayed for audit; obslog is operator-facing
// diagnostic noise that may be lossy and is never replayed.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/muesli/termenv"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. Quiet suppresses the stdout mirror, the way
// a daemon-mode invocation of cmd/forge would.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Level      slog.Level
	Quiet      bool
}

// New builds the process-wide logger: JSON records written through a
// lumberjack.Logger (size- and count-bounded rotation, so a long-lived
// supervisor never fills a disk), mirrored to stdout as colorized text
// when the terminal supports it and Quiet is false. The returned
// io.Closer flushes and closes the rotated file; callers should defer
// it from cmd/forge's root command.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: true,
	})

	if opts.Quiet {
		return slog.New(fileHandler).With("component", "forge"), rotator, nil
	}

	profile := termenv.ColorProfile()
	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && profile != termenv.Ascii {
				return colorizeLevel(a)
			}
			return a
		},
	})

	handler := &teeHandler{file: fileHandler, stdout: stdoutHandler}
	return slog.New(handler).With("component", "forge"), rotator, nil
}

// colorizeLevel re-renders a slog level attribute with termenv styling
// so WARN/ERROR stand out in an interactive terminal; it is a no-op
// attribute rewrite, not a direct termenv.String() call, since
// slog.TextHandler renders attrs itself after ReplaceAttr runs — the
// color codes travel inside the string value.
func colorizeLevel(a slog.Attr) slog.Attr {
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	var styled string
	switch {
	case level >= slog.LevelError:
		styled = termenv.String(level.String()).Foreground(termenv.ANSIRed).String()
	case level >= slog.LevelWarn:
		styled = termenv.String(level.String()).Foreground(termenv.ANSIYellow).String()
	default:
		styled = level.String()
	}
	return slog.String(a.Key, styled)
}

// teeHandler fans every record out to the rotated file and (when
// present) the colorized stdout mirror, mirroring the teacher's
// io.MultiWriter approach but per-handler rather than per-writer so
// the file always stays plain JSON regardless of terminal capability.
type teeHandler struct {
	file   slog.Handler
	stdout slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.file.Enabled(ctx, level) || (t.stdout != nil && t.stdout.Enabled(ctx, level))
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := t.file.Handle(ctx, r.Clone()); err != nil {
		return err
	}
	if t.stdout != nil {
		return t.stdout.Handle(ctx, r.Clone())
	}
	return nil
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &teeHandler{file: t.file.WithAttrs(attrs)}
	if t.stdout != nil {
		next.stdout = t.stdout.WithAttrs(attrs)
	}
	return next
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := &teeHandler{file: t.file.WithGroup(name)}
	if t.stdout != nil {
		next.stdout = t.stdout.WithGroup(name)
	}
	return next
}
