package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging sets the global level and returns the service logger.
// "json" in the level string (e.g. "info,json") keeps structured output
// instead of the console writer.
func SetupLogging(level string) zerolog.Logger {
	parts := strings.Split(strings.ToLower(level), ",")
	switch strings.TrimSpace(parts[0]) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	json := len(parts) > 1 && strings.TrimSpace(parts[1]) == "json"
	if !json {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("service", "popup-engine").Logger()
	return log.Logger
}
