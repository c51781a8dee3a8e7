package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stanstork/waterwatch-api/internal/config"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioGateway sends SMS through the Twilio Messages API. Calls go through a
// circuit breaker; while it is open, Send fails immediately.
type TwilioGateway struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

type twilioMessage struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func NewTwilioGateway(cfg config.NotificationConfig, logger zerolog.Logger) (*TwilioGateway, error) {
	tw := cfg.Twilio
	if strings.TrimSpace(tw.AccountSID) == "" || strings.TrimSpace(tw.AuthToken) == "" {
		return nil, fmt.Errorf("twilio account_sid and auth_token are required")
	}
	if strings.TrimSpace(tw.From) == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}
	baseURL := strings.TrimRight(tw.BaseURL, "/")
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}
	timeout := tw.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g := &TwilioGateway{
		accountSID: strings.TrimSpace(tw.AccountSID),
		authToken:  tw.AuthToken,
		from:       strings.TrimSpace(tw.From),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("gateway", "twilio").Logger(),
	}
	g.breaker = newBreaker("twilio", cfg.Breaker, g.logger)
	return g, nil
}

func newBreaker(name string, cfg config.BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	fails := cfg.MaxFailures
	if fails == 0 {
		fails = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

func (g *TwilioGateway) String() string { return "twilio" }

func (g *TwilioGateway) Send(ctx context.Context, to, body string) Result {
	to = sanitizePhone(to)
	if to == "" {
		return failed("recipient phone is empty")
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.post(ctx, to, body)
	})
	if err != nil {
		return failed(err.Error())
	}
	return Result{Success: true, ID: out.(string)}
}

func (g *TwilioGateway) post(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, url.PathEscape(g.accountSID))
	form := url.Values{
		"To":   {to},
		"From": {g.from},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("twilio error %d: %s", apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("twilio returned status %d", resp.StatusCode)
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("decode twilio response: %w", err)
	}
	if msg.ErrorMessage != nil && *msg.ErrorMessage != "" {
		return "", fmt.Errorf("twilio message %s: %s", msg.SID, *msg.ErrorMessage)
	}

	g.logger.Debug().Str("sid", msg.SID).Str("status", msg.Status).Msg("sms queued")
	return msg.SID, nil
}
