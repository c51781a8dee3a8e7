// Package observation accepts water tests from field workers and triggers
// alerting and health card refresh for each accepted test.
package observation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/alerting"
	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/observability"
	"github.com/stanstork/waterwatch-api/internal/repository"
)

const requiredFieldsMessage = "waterbodyName, dateTime, location, photoUrl, notes, quality are required"

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role models.UserRole
}

type CreateInput struct {
	WaterbodyName string   `json:"waterbodyName"`
	WaterbodyID   *string  `json:"waterbodyId"`
	DateTime      string   `json:"dateTime"`
	Location      string   `json:"location"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	PhotoURL      string   `json:"photoUrl"`
	Notes         string   `json:"notes"`
	Quality       string   `json:"quality"`
}

// UpdateInput carries the editable fields; nil means unchanged.
type UpdateInput struct {
	WaterbodyName *string  `json:"waterbodyName"`
	WaterbodyID   *string  `json:"waterbodyId"`
	DateTime      *string  `json:"dateTime"`
	Location      *string  `json:"location"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	PhotoURL      *string  `json:"photoUrl"`
	Notes         *string  `json:"notes"`
	Quality       *string  `json:"quality"`

	// ClearWaterbodyID is set by the decoder when waterbodyId was sent as null or "".
	ClearWaterbodyID bool `json:"-"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, wt models.WaterTest) (alerting.Outcome, error)
}

type CardRefresher interface {
	RefreshByWaterbodyName(ctx context.Context, name string) (int, error)
}

type Service struct {
	repo       repository.WaterTestRepository
	dispatcher Dispatcher
	cards      CardRefresher
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewService(
	repo repository.WaterTestRepository,
	dispatcher Dispatcher,
	cards CardRefresher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		cards:      cards,
		metrics:    metrics,
		logger:     logger.With().Str("component", "observation_service").Logger(),
	}
}

// Create validates, stores, dispatches alerts for, and refreshes health cards
// for one water test. An error from the dispatcher is returned after the test
// has been stored; delivery failures never are.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (models.WaterTest, error) {
	in.WaterbodyName = strings.TrimSpace(in.WaterbodyName)
	in.Location = strings.TrimSpace(in.Location)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	in.DateTime = strings.TrimSpace(in.DateTime)

	if in.WaterbodyName == "" || in.DateTime == "" || in.Location == "" ||
		in.PhotoURL == "" || strings.TrimSpace(in.Notes) == "" || strings.TrimSpace(in.Quality) == "" {
		return models.WaterTest{}, apperrors.Validation(requiredFieldsMessage)
	}
	if !models.HasAnyRole(actor.Role, models.RoleASHA, models.RoleAdmin) {
		return models.WaterTest{}, apperrors.ErrForbidden
	}
	quality, ok := models.ParseQuality(in.Quality)
	if !ok {
		return models.WaterTest{}, apperrors.Validation("invalid quality")
	}
	when, err := parseDateTime(in.DateTime)
	if err != nil {
		return models.WaterTest{}, err
	}

	wt, err := s.repo.Create(ctx, repository.CreateWaterTestParams{
		WaterbodyName: in.WaterbodyName,
		WaterbodyID:   nonEmpty(in.WaterbodyID),
		DateTime:      when,
		Location:      in.Location,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		PhotoURL:      in.PhotoURL,
		Notes:         in.Notes,
		Quality:       quality,
		ASHAID:        actor.ID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("waterbody", in.WaterbodyName).Msg("failed to persist water test")
		return models.WaterTest{}, err
	}
	s.metrics.WaterTestsIngested.WithLabelValues(string(wt.Quality)).Inc()

	if _, err := s.dispatcher.Dispatch(ctx, wt); err != nil {
		s.logger.Error().Err(err).Str("water_test_id", wt.ID).Msg("alert dispatch failed")
		return wt, err
	}

	if n, err := s.cards.RefreshByWaterbodyName(ctx, wt.WaterbodyName); err != nil {
		s.logger.Warn().Err(err).Str("waterbody", wt.WaterbodyName).Msg("failed to refresh health cards")
	} else if n > 0 {
		s.logger.Debug().Int("cards", n).Str("waterbody", wt.WaterbodyName).Msg("health cards refreshed")
	}

	return wt, nil
}

// Update edits an existing test. Only the submitter or an admin may do so, and
// the quality of a stored test cannot change.
func (s *Service) Update(ctx context.Context, actor Actor, id string, in UpdateInput) (models.WaterTest, error) {
	existing, err := s.authorize(ctx, actor, id)
	if err != nil {
		return models.WaterTest{}, err
	}

	if in.Quality != nil {
		q, ok := models.ParseQuality(*in.Quality)
		if !ok {
			return models.WaterTest{}, apperrors.Validation("invalid quality")
		}
		if q != existing.Quality {
			return models.WaterTest{}, apperrors.Validation("quality cannot be changed")
		}
	}

	params := repository.UpdateWaterTestParams{
		WaterbodyName: nonEmpty(in.WaterbodyName),
		Location:      nonEmpty(in.Location),
		PhotoURL:      nonEmpty(in.PhotoURL),
		Notes:         nonEmpty(in.Notes),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
	}
	if in.ClearWaterbodyID || in.WaterbodyID != nil {
		params.SetWaterbodyID = true
		params.WaterbodyID = nonEmpty(in.WaterbodyID)
	}
	if raw := nonEmpty(in.DateTime); raw != nil {
		when, err := parseDateTime(*raw)
		if err != nil {
			return models.WaterTest{}, err
		}
		params.DateTime = &when
	}

	updated, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return models.WaterTest{}, err
	}

	s.refreshAfterEdit(ctx, existing.WaterbodyName, updated.WaterbodyName)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	existing, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshAfterEdit(ctx, existing.WaterbodyName)
	return nil
}

// ListAll returns every water test, newest first. Admin only.
func (s *Service) ListAll(ctx context.Context, actor Actor) ([]models.WaterTest, error) {
	if actor.Role != models.RoleAdmin {
		return nil, apperrors.ErrForbidden
	}
	return s.repo.ListAll(ctx)
}

func (s *Service) authorize(ctx context.Context, actor Actor, id string) (models.WaterTest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.WaterTest{}, apperrors.ErrNotFound
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.WaterTest{}, err
	}
	if actor.Role != models.RoleAdmin && actor.ID != existing.ASHAID {
		return models.WaterTest{}, apperrors.ErrForbidden
	}
	return existing, nil
}

func (s *Service) refreshAfterEdit(ctx context.Context, names ...string) {
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, err := s.cards.RefreshByWaterbodyName(ctx, name); err != nil {
			s.logger.Warn().Err(err).Str("waterbody", name).Msg("failed to refresh health cards")
		}
	}
}

func parseDateTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.Validation("invalid dateTime")
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
