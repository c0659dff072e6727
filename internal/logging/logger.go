package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler: dev builds get colored tint output, anything
// else gets JSON tagged with version and env.
type Options struct {
	Level   slog.Level
	AppEnv  string
	Version string
	AppName string
	Out     io.Writer
}

func New(opts Options) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if opts.Version == "dev" {
		h := tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", opts.AppName)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: opts.Level,
	})
	return slog.New(h).With(
		"app", opts.AppName,
		"version", opts.Version,
		"env", opts.AppEnv,
	)
}
