package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. level is one of debug, info, warn, error
// (default info); format "json" writes structured lines, anything else uses
// the human-readable console writer.
func Init(level, format string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// Startup emits a single structured event summarising how the process was configured.
func Startup(component string, fields map[string]string, features map[string]bool) {
	evt := log.Info().Str("component", component)

	if len(fields) > 0 {
		d := zerolog.Dict()
		for k, v := range fields {
			d = d.Str(k, v)
		}
		evt = evt.Dict("config", d)
	}
	if len(features) > 0 {
		d := zerolog.Dict()
		for k, v := range features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	evt.Msg("Startup complete")
}
