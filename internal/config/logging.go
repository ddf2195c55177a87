package config

import (
	"io"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// stackedError is the pkg/errors surface the marshal hooks probe for.
type stackedError interface{ StackTrace() pkgerrors.StackTrace }

func marshalErrorStack(err error) interface{} {
	if _, ok := err.(stackedError); !ok {
		err = pkgerrors.WithStack(err)
	}
	return zpkgerrors.MarshalStack(err)
}

func ensureErrorStack(err error) interface{} {
	if _, ok := err.(stackedError); ok {
		return err
	}
	return pkgerrors.WithStack(err)
}

// NewLogger builds the engine's logger for the resolved environment:
// human-readable console output at debug level while developing, JSON at
// info level everywhere else. Error events carry pkg/errors stacks in
// both modes; call sites use .Stack() to render them.
func (c *Config) NewLogger() zerolog.Logger {
	zerolog.ErrorStackMarshaler = marshalErrorStack
	zerolog.ErrorMarshalFunc = ensureErrorStack

	level := zerolog.InfoLevel
	var out io.Writer = os.Stdout
	if c.Environment == EnvDevelopment {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().
		Str("environment", string(c.Environment)).
		Timestamp().
		Logger()
}
