// Package logx builds the process logger and renders access log lines.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/r9s-ai/cardq/pkg/config"
)

// New returns a logger writing to out. An empty format selects the
// console writer when out is a terminal and JSON otherwise.
func New(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("invalid logging.level %q: %w", cfg.Level, err)
		}
		level = l
	}
	var w io.Writer = out
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "console":
		w = consoleWriter(out)
	case "json":
	case "":
		if IsTerminal(out) {
			w = consoleWriter(out)
		}
	default:
		return zerolog.Logger{}, fmt.Errorf("invalid logging.format %q", cfg.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.DateTime,
		NoColor:    !IsTerminal(out) || os.Getenv("NO_COLOR") != "",
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorEnabled reports whether stdout accepts ANSI colors.
func ColorEnabled() bool {
	return os.Getenv("NO_COLOR") == "" && IsTerminal(os.Stdout)
}
