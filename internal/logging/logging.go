// Package logging sets up zerolog for the binary.
package logging

import (
	"io"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/ziprofs/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// Configure configures logger
func Configure(cli config.Cli) {
	var w io.Writer

	// Adds support for NO_COLOR. More info https://no-color.org/
	_, noColor := os.LookupEnv("NO_COLOR")

	if !cli.LogJSON {
		w = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    noColor || cli.LogNoColor,
			TimeFormat: time.RFC1123,
		}
	} else {
		w = os.Stderr
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	ctx := zerolog.New(w).With().Timestamp()
	if cli.LogCaller {
		ctx = ctx.Caller()
	}

	log.Logger = ctx.Logger()

	logLevel, err := zerolog.ParseLevel(cli.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msgf("Unknown log level")
	} else {
		zerolog.SetGlobalLevel(logLevel)
	}

	if cli.Debug {
		EnableFUSEDebug()
	}
}

// EnableFUSEDebug logs every FUSE protocol message at debug level.
func EnableFUSEDebug() {
	fuse.Debug = func(msg interface{}) {
		log.Debug().Str("component", "fuse").Msgf("%v", msg)
	}
}
