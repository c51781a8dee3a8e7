package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/repository"
)

const recentAlertWindow = 24 * time.Hour

type AlertReader interface {
	List(ctx context.Context, filter repository.AlertFilter) (repository.AlertPage, error)
	Stats(ctx context.Context, since time.Time) (models.AlertStats, error)
}

type AlertHandler struct {
	alerts AlertReader
	clock  clockwork.Clock
	logger zerolog.Logger
}

func NewAlertHandler(alerts AlertReader, clock clockwork.Clock, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		clock:  clock,
		logger: logger.With().Str("component", "alert_handler").Logger(),
	}
}

func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, repository.AlertFilter{})
}

// ListLeaderAlerts returns the targeted alerts addressed to the caller.
func (h *AlertHandler) ListLeaderAlerts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.list(w, r, repository.AlertFilter{Kind: models.AlertKindLeader, LeaderID: actor.ID})
}

func (h *AlertHandler) ListGlobalAlerts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, repository.AlertFilter{Kind: models.AlertKindGlobal})
}

func (h *AlertHandler) GetAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerts.Stats(r.Context(), h.clock.Now().Add(-recentAlertWindow))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AlertHandler) list(w http.ResponseWriter, r *http.Request, filter repository.AlertFilter) {
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = v
	}
	if c := q.Get("cursor"); c != "" {
		if _, err := uuid.Parse(c); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		filter.Cursor = c
	}

	page, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
