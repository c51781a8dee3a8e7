// Package logging adapts third-party logger interfaces to zerolog.
package logging

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

func withKeyvals(event *zerolog.Event, keyvals ...interface{}) *zerolog.Event {
	if len(keyvals) == 0 {
		return event
	}
	// Ensure even number of keyvals. If not, add a placeholder.
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}

	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		event = event.Interface(key, keyvals[i+1])
	}
	return event
}

// CronAdapter satisfies cron.Logger.
type CronAdapter struct {
	logger zerolog.Logger
}

func NewCronAdapter(logger zerolog.Logger) *CronAdapter {
	return &CronAdapter{
		logger: logger.With().Str("component", "cron").Logger(),
	}
}

// Info is chatty in cron (every wake-up), so it goes to debug.
func (a *CronAdapter) Info(msg string, keyvals ...interface{}) {
	withKeyvals(a.logger.Debug(), keyvals...).Msg(msg)
}

func (a *CronAdapter) Error(err error, msg string, keyvals ...interface{}) {
	withKeyvals(a.logger.Error().Err(err), keyvals...).Msg(msg)
}

// GooseAdapter satisfies goose.Logger.
type GooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) *GooseAdapter {
	return &GooseAdapter{
		logger: logger.With().Str("component", "goose").Logger(),
	}
}

func (a *GooseAdapter) Printf(format string, v ...interface{}) {
	a.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a *GooseAdapter) Fatalf(format string, v ...interface{}) {
	a.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
