package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogGateway writes messages to the log instead of sending them. Used in
// development and wherever no SMS provider is configured.
type LogGateway struct {
	logger zerolog.Logger
}

func NewLogGateway(logger zerolog.Logger) *LogGateway {
	return &LogGateway{logger: logger.With().Str("gateway", "log").Logger()}
}

func (g *LogGateway) String() string { return "log" }

func (g *LogGateway) Send(_ context.Context, to, body string) Result {
	to = sanitizePhone(to)
	if to == "" {
		return failed("recipient phone is empty")
	}
	id := "log-" + uuid.NewString()
	g.logger.Info().Str("to", to).Str("id", id).Str("body", body).Msg("sms")
	return Result{Success: true, ID: id}
}
