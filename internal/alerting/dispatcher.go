// Package alerting decides, from a new water test's quality alone, which
// alert records to write and who gets a text message.
package alerting

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/notification"
	"github.com/stanstork/waterwatch-api/internal/observability"
)

// RecipientDirectory is read-only access to the people alerts can reach.
type RecipientDirectory interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	ListAll(ctx context.Context) ([]models.User, error)
}

type AlertStore interface {
	CreateLeaderAlerts(ctx context.Context, waterTestID, message string, leaderIDs []string) ([]models.Alert, error)
	CreateGlobalAlert(ctx context.Context, waterTestID, message string) (models.Alert, error)
}

// Outcome summarizes one dispatch.
type Outcome struct {
	Alerts    []models.Alert
	Attempts  int
	Delivered int
}

type Dispatcher struct {
	alerts     AlertStore
	recipients RecipientDirectory
	gateway    notification.Gateway
	formatter  *notification.Formatter
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewDispatcher(
	alerts AlertStore,
	recipients RecipientDirectory,
	gateway notification.Gateway,
	formatter *notification.Formatter,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		alerts:     alerts,
		recipients: recipients,
		gateway:    gateway,
		formatter:  formatter,
		metrics:    metrics,
		logger:     logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Dispatch writes the alerts for wt and then sends the text messages one
// recipient at a time. Alert or directory failures abort and are returned;
// delivery failures are logged and counted only.
func (d *Dispatcher) Dispatch(ctx context.Context, wt models.WaterTest) (Outcome, error) {
	switch wt.Quality {
	case models.QualityMedium:
		return d.dispatchLeaders(ctx, wt)
	case models.QualityHigh:
		return d.dispatchBroadcast(ctx, wt, fmt.Sprintf("High risk water quality at %s", wt.WaterbodyName))
	case models.QualityDisease:
		return d.dispatchBroadcast(ctx, wt, fmt.Sprintf("Disease detected in water at %s", wt.WaterbodyName))
	default:
		return Outcome{}, nil
	}
}

func (d *Dispatcher) dispatchLeaders(ctx context.Context, wt models.WaterTest) (Outcome, error) {
	leaders, err := d.recipients.ListByRole(ctx, models.RoleLeader)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "list leaders")
	}

	ids := make([]string, 0, len(leaders))
	for _, l := range leaders {
		ids = append(ids, l.ID)
	}
	alerts, err := d.alerts.CreateLeaderAlerts(ctx, wt.ID, fmt.Sprintf("Water quality medium at %s", wt.WaterbodyName), ids)
	if err != nil {
		d.logger.Error().Err(err).Str("water_test_id", wt.ID).Msg("failed to persist leader alerts")
		return Outcome{}, err
	}
	d.metrics.AlertsCreated.WithLabelValues(string(models.AlertKindLeader)).Add(float64(len(alerts)))

	out := Outcome{Alerts: alerts}
	d.sendAll(ctx, wt, leaders, d.formatter.MediumMessage(wt), &out)
	return out, nil
}

func (d *Dispatcher) dispatchBroadcast(ctx context.Context, wt models.WaterTest, message string) (Outcome, error) {
	alert, err := d.alerts.CreateGlobalAlert(ctx, wt.ID, message)
	if err != nil {
		d.logger.Error().Err(err).Str("water_test_id", wt.ID).Msg("failed to persist global alert")
		return Outcome{}, err
	}
	d.metrics.AlertsCreated.WithLabelValues(string(models.AlertKindGlobal)).Inc()
	out := Outcome{Alerts: []models.Alert{alert}}

	users, err := d.recipients.ListAll(ctx)
	if err != nil {
		return out, errors.Wrap(err, "list recipients")
	}
	d.sendAll(ctx, wt, users, d.formatter.UrgentMessage(wt), &out)
	return out, nil
}

func (d *Dispatcher) sendAll(ctx context.Context, wt models.WaterTest, users []models.User, body string, out *Outcome) {
	for _, u := range users {
		if !u.HasPhone() {
			continue
		}
		out.Attempts++
		res := d.gateway.Send(ctx, *u.Phone, body)
		if !res.Success {
			d.metrics.Notifications.WithLabelValues("failed").Inc()
			notification.LogSendFailure(d.logger, res, u.ID, wt.ID)
			continue
		}
		out.Delivered++
		d.metrics.Notifications.WithLabelValues("sent").Inc()
	}
	d.logger.Info().
		Str("water_test_id", wt.ID).
		Str("quality", string(wt.Quality)).
		Int("attempts", out.Attempts).
		Int("delivered", out.Delivered).
		Msg("alert fan-out complete")
}
