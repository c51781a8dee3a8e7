package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/healthcard"
	"github.com/stanstork/waterwatch-api/internal/models"
)

type HealthCardService interface {
	Create(ctx context.Context, in healthcard.CreateInput) (models.HealthCard, error)
	Get(ctx context.Context, waterbodyID string) (models.HealthCard, error)
	Refresh(ctx context.Context, waterbodyID string) (models.HealthCard, error)
	List(ctx context.Context) ([]models.HealthCard, error)
}

type HealthCardHandler struct {
	service HealthCardService
	logger  zerolog.Logger
}

type healthCardResponse struct {
	HealthCard models.HealthCard `json:"healthCard"`
	IsDemo     bool              `json:"isDemo,omitempty"`
}

func NewHealthCardHandler(service HealthCardService, logger zerolog.Logger) *HealthCardHandler {
	return &HealthCardHandler{
		service: service,
		logger:  logger.With().Str("component", "health_card_handler").Logger(),
	}
}

func (h *HealthCardHandler) CreateHealthCard(w http.ResponseWriter, r *http.Request) {
	var in healthcard.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	card, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, healthCardResponse{HealthCard: card, IsDemo: card.IsDemo})
}

// GetHealthCard is the public target of the printed QR code.
func (h *HealthCardHandler) GetHealthCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.service.Get(r.Context(), mux.Vars(r)["waterbodyId"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, healthCardResponse{HealthCard: card, IsDemo: card.IsDemo})
}

func (h *HealthCardHandler) RefreshHealthCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.service.Refresh(r.Context(), mux.Vars(r)["waterbodyId"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, healthCardResponse{HealthCard: card, IsDemo: card.IsDemo})
}

func (h *HealthCardHandler) ListHealthCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if cards == nil {
		cards = []models.HealthCard{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.HealthCard{"healthCards": cards})
}
