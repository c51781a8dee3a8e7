package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Result is the outcome of one delivery attempt. Failures are reported here,
// never as a Go error.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failed(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Gateway delivers a text message to one phone number.
type Gateway interface {
	Send(ctx context.Context, to, body string) Result
}

func sanitizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// LogSendFailure records a failed delivery. Callers do not retry.
func LogSendFailure(logger zerolog.Logger, res Result, recipientID, waterTestID string) {
	if res.Success {
		return
	}
	logger.Warn().
		Str("recipient_id", recipientID).
		Str("water_test_id", waterTestID).
		Str("error", res.Error).
		Msg("failed to deliver notification")
}
