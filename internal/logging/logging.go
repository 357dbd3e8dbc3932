// Package logging builds the structured loggers shared by all services.
// HTTP code logs through slog directly; watermill components receive an
// adapter over the same logger so event-pipeline logs land in one stream.
package logging

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
)

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// New returns a JSON slog logger tagged with the service name. Development
// mode lowers the level to debug so proxy and consumer internals are
// visible locally.
func New(service string, development bool) *slog.Logger {
	level := slog.LevelInfo
	if development {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", service)
}

// NewWatermillAdapter wraps a slog logger so watermill routers, publishers,
// and subscribers log through it.
func NewWatermillAdapter(log *slog.Logger) watermill.LoggerAdapter {
	if log == nil {
		panic("shopmesh: slog logger cannot be nil")
	}
	return watermill.NewSlogLoggerWithLevelMapping(log, logLevelMapping)
}
