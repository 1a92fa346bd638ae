// Package logging wires the process-wide slog handler.
package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Initialize sets the default slog handler. Engine logs go to stderr so they
// never interleave with step output or the run summary on stdout.
func Initialize(format string, levelName string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return fmt.Errorf("could not parse log level: %v", err)
	}

	var handler slog.Handler
	switch format {
	case JSON:
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case Text:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case Tint:
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
