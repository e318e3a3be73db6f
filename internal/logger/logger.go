package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "swecc-sockets").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// HTTP creates a logger for the plain HTTP routes (/, /ping).
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}

// Dispatcher creates a logger for the WebSocket upgrade/auth/receive-loop path.
func Dispatcher() *zerolog.Logger {
	l := Log.With().Str("component", "dispatcher").Logger()
	return &l
}

// Registry creates a logger for the connection registry.
func Registry() *zerolog.Logger {
	l := Log.With().Str("component", "registry").Logger()
	return &l
}

// Room creates a logger for the presence/chat room handler.
func Room() *zerolog.Logger {
	l := Log.With().Str("component", "room").Logger()
	return &l
}

// LogStream creates a logger for the container log stream handler.
func LogStream() *zerolog.Logger {
	l := Log.With().Str("component", "logstream").Logger()
	return &l
}

// Broker creates a logger for the AMQP bridge.
func Broker() *zerolog.Logger {
	l := Log.With().Str("component", "broker").Logger()
	return &l
}
