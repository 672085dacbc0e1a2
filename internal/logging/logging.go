// Package logging builds the slog.Logger used by the commands from their
// shared log flags.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options are the log settings common to every command.
type Options struct {
	Debug  bool
	Format string
}

// AddFlags binds the options to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Debug, "debug", false, "Enable debug logs")
	fs.StringVar(
		&o.Format,
		"log-format",
		FormatText,
		"Log output format, 'text' or 'json'",
	)
}

func (o *Options) validate() error {
	switch strings.ToLower(o.Format) {
	case "", FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid log-format '%s': must be 'text' or 'json'", o.Format)
	}
}

// New creates a logger writing to w. It doesn't touch the default logger.
func New(w io.Writer, o Options) (*slog.Logger, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if o.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler

	if strings.ToLower(o.Format) == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}
