package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/observation"
)

const maxWaterTestBody = 1 << 20

type WaterTestService interface {
	Create(ctx context.Context, actor observation.Actor, in observation.CreateInput) (models.WaterTest, error)
	Update(ctx context.Context, actor observation.Actor, id string, in observation.UpdateInput) (models.WaterTest, error)
	Delete(ctx context.Context, actor observation.Actor, id string) error
	ListAll(ctx context.Context, actor observation.Actor) ([]models.WaterTest, error)
}

type WaterTestHandler struct {
	service WaterTestService
	logger  zerolog.Logger
}

type createdWaterTest struct {
	ID string `json:"id"`
}

type dispatchFailure struct {
	Message   string           `json:"message"`
	WaterTest createdWaterTest `json:"waterTest"`
}

func NewWaterTestHandler(service WaterTestService, logger zerolog.Logger) *WaterTestHandler {
	return &WaterTestHandler{
		service: service,
		logger:  logger.With().Str("component", "water_test_handler").Logger(),
	}
}

func (h *WaterTestHandler) CreateWaterTest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in observation.CreateInput
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWaterTestBody)).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wt, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		if wt.ID != "" {
			// stored already; hand back the id so the client does not resubmit
			h.logger.Error().Err(err).Str("water_test_id", wt.ID).Msg("water test stored but alert dispatch failed")
			writeJSON(w, http.StatusInternalServerError, dispatchFailure{
				Message:   "water test stored but alert dispatch failed",
				WaterTest: createdWaterTest{ID: wt.ID},
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]createdWaterTest{"waterTest": {ID: wt.ID}})
}

func (h *WaterTestHandler) UpdateWaterTest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	in, err := decodeUpdate(io.LimitReader(r.Body, maxWaterTestBody))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wt, err := h.service.Update(r.Context(), actor, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.WaterTest{"waterTest": wt})
}

func (h *WaterTestHandler) DeleteWaterTest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.service.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *WaterTestHandler) ListWaterTests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tests, err := h.service.ListAll(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if tests == nil {
		tests = []models.WaterTest{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.WaterTest{"waterTests": tests})
}

// decodeUpdate decodes a patch body. A waterbodyId sent as null or "" clears
// the stored id, while an absent one leaves it unchanged.
func decodeUpdate(body io.Reader) (observation.UpdateInput, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return observation.UpdateInput{}, err
	}
	var in observation.UpdateInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return observation.UpdateInput{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return observation.UpdateInput{}, err
	}
	if v, ok := fields["waterbodyId"]; ok {
		v = bytes.TrimSpace(v)
		if bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`)) {
			in.WaterbodyID = nil
			in.ClearWaterbodyID = true
		}
	}
	return in, nil
}
