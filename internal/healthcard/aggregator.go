package healthcard

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/observability"
	"github.com/stanstork/waterwatch-api/internal/qrcode"
	"github.com/stanstork/waterwatch-api/internal/risk"
)

const (
	demoWaterbodyName = "Demo Waterbody"
	demoLocation      = "Demo Location"
)

type WaterTestSource interface {
	ListRecentByWaterbodyName(ctx context.Context, name string, limit int) ([]models.WaterTest, error)
}

type CardStore interface {
	Upsert(ctx context.Context, card models.HealthCard) (models.HealthCard, error)
	GetByWaterbodyID(ctx context.Context, waterbodyID string) (models.HealthCard, error)
	ListAll(ctx context.Context) ([]models.HealthCard, error)
	ListByWaterbodyName(ctx context.Context, name string) ([]models.HealthCard, error)
}

type CreateInput struct {
	WaterbodyName string   `json:"waterbodyName"`
	WaterbodyID   string   `json:"waterbodyId"`
	Location      string   `json:"location"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// Aggregator builds and stores health cards. When the database cannot be
// reached it returns placeholder cards flagged IsDemo instead of failing.
type Aggregator struct {
	tests        WaterTestSource
	cards        CardStore
	qr           qrcode.Generator
	clock        clockwork.Clock
	historyLimit int
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewAggregator(
	tests WaterTestSource,
	cards CardStore,
	qr qrcode.Generator,
	clock clockwork.Clock,
	historyLimit int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Aggregator {
	if historyLimit <= 0 {
		historyLimit = risk.HistoryWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{
		tests:        tests,
		cards:        cards,
		qr:           qr,
		clock:        clock,
		historyLimit: historyLimit,
		metrics:      metrics,
		logger:       logger.With().Str("component", "health_card_aggregator").Logger(),
	}
}

func (a *Aggregator) Create(ctx context.Context, in CreateInput) (models.HealthCard, error) {
	in.WaterbodyName = strings.TrimSpace(in.WaterbodyName)
	in.Location = strings.TrimSpace(in.Location)
	if in.WaterbodyName == "" || in.Location == "" {
		return models.HealthCard{}, apperrors.Validation("waterbodyName and location are required")
	}
	in.WaterbodyID = strings.TrimSpace(in.WaterbodyID)
	if in.WaterbodyID == "" {
		in.WaterbodyID = uuid.NewString()
	}

	return a.rebuild(ctx, models.HealthCard{
		WaterbodyName: in.WaterbodyName,
		WaterbodyID:   in.WaterbodyID,
		Location:      in.Location,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
	})
}

func (a *Aggregator) Get(ctx context.Context, waterbodyID string) (models.HealthCard, error) {
	card, err := a.cards.GetByWaterbodyID(ctx, waterbodyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPersistence) {
			a.logger.Warn().Err(err).Str("waterbody_id", waterbodyID).Msg("store unavailable, serving demo health card")
			return a.placeholder(ctx, waterbodyID), nil
		}
		return models.HealthCard{}, err
	}
	return card, nil
}

// Refresh recomputes the stored card for waterbodyID from current water tests.
func (a *Aggregator) Refresh(ctx context.Context, waterbodyID string) (models.HealthCard, error) {
	card, err := a.cards.GetByWaterbodyID(ctx, waterbodyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPersistence) {
			a.logger.Warn().Err(err).Str("waterbody_id", waterbodyID).Msg("store unavailable, serving demo health card")
			return a.placeholder(ctx, waterbodyID), nil
		}
		return models.HealthCard{}, err
	}
	return a.rebuild(ctx, card)
}

// RefreshByWaterbodyName refreshes every card sharing the given name.
func (a *Aggregator) RefreshByWaterbodyName(ctx context.Context, name string) (int, error) {
	cards, err := a.cards.ListByWaterbodyName(ctx, name)
	if err != nil {
		return 0, err
	}
	return a.refreshCards(ctx, cards)
}

// RefreshAll recomputes every stored card.
func (a *Aggregator) RefreshAll(ctx context.Context) (int, error) {
	cards, err := a.cards.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return a.refreshCards(ctx, cards)
}

func (a *Aggregator) List(ctx context.Context) ([]models.HealthCard, error) {
	cards, err := a.cards.ListAll(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrPersistence) {
			a.logger.Warn().Err(err).Msg("store unavailable, serving demo health cards")
			return []models.HealthCard{a.placeholder(ctx, "wb-demo")}, nil
		}
		return nil, err
	}
	return cards, nil
}

func (a *Aggregator) refreshCards(ctx context.Context, cards []models.HealthCard) (int, error) {
	var firstErr error
	refreshed := 0
	for _, card := range cards {
		updated, err := a.rebuild(ctx, card)
		if err == nil && !updated.IsDemo {
			refreshed++
			continue
		}
		if err == nil {
			err = errors.New("health card store unavailable")
		}
		a.logger.Error().Err(err).Str("waterbody_id", card.WaterbodyID).Msg("failed to refresh health card")
		if firstErr == nil {
			firstErr = err
		}
	}
	return refreshed, firstErr
}

// rebuild recomputes the derived fields of card and upserts it.
func (a *Aggregator) rebuild(ctx context.Context, card models.HealthCard) (models.HealthCard, error) {
	tests, err := a.tests.ListRecentByWaterbodyName(ctx, card.WaterbodyName, a.historyLimit)
	if err != nil {
		if !errors.Is(err, apperrors.ErrPersistence) {
			a.metrics.HealthCardBuilds.WithLabelValues("error").Inc()
			return models.HealthCard{}, err
		}
		// score an empty history but keep the caller's waterbody; nothing is stored
		a.logger.Warn().Err(err).Str("waterbody_id", card.WaterbodyID).Msg("water tests unavailable, returning unsaved health card")
		unsaved, buildErr := a.build(ctx, card, nil)
		if buildErr != nil {
			a.metrics.HealthCardBuilds.WithLabelValues("error").Inc()
			return models.HealthCard{}, buildErr
		}
		a.metrics.HealthCardBuilds.WithLabelValues("demo").Inc()
		unsaved.IsDemo = true
		return unsaved, nil
	}

	built, err := a.build(ctx, card, tests)
	if err != nil {
		a.metrics.HealthCardBuilds.WithLabelValues("error").Inc()
		return models.HealthCard{}, err
	}

	saved, err := a.cards.Upsert(ctx, built)
	if err != nil {
		if errors.Is(err, apperrors.ErrPersistence) {
			a.logger.Warn().Err(err).Str("waterbody_id", card.WaterbodyID).Msg("could not store health card, returning unsaved copy")
			a.metrics.HealthCardBuilds.WithLabelValues("demo").Inc()
			built.IsDemo = true
			return built, nil
		}
		a.metrics.HealthCardBuilds.WithLabelValues("error").Inc()
		return models.HealthCard{}, err
	}

	a.metrics.HealthCardBuilds.WithLabelValues("ok").Inc()
	a.metrics.RiskScore.Observe(float64(saved.RiskScore))
	a.logger.Debug().
		Str("waterbody_id", saved.WaterbodyID).
		Int("risk_score", saved.RiskScore).
		Str("risk_level", saved.RiskLevel).
		Bool("has_data", saved.HasData()).
		Int("tests", len(tests)).
		Msg("health card rebuilt")
	return saved, nil
}

// build is the pure part of a rebuild: tests must be most recent first.
func (a *Aggregator) build(ctx context.Context, card models.HealthCard, tests []models.WaterTest) (models.HealthCard, error) {
	if len(tests) > a.historyLimit {
		tests = tests[:a.historyLimit]
	}

	score, ok := risk.Evaluate(tests)
	if !ok {
		a.logger.Debug().Str("waterbody", card.WaterbodyName).Msg("no water tests yet, using default risk score")
	}
	card.RiskScore = score
	card.RiskLevel = risk.Level(score)
	card.ContaminationHistory = risk.ContaminationHistory(tests)
	card.LastTestedDate = nil
	if len(tests) > 0 {
		last := tests[0].DateTime
		card.LastTestedDate = &last
	}

	qr, err := a.qr.Generate(ctx, card.WaterbodyID)
	if err != nil {
		return models.HealthCard{}, errors.Wrap(err, "generate qr code")
	}
	card.QRCode = qr

	now := a.clock.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	card.IsDemo = false
	return card, nil
}

func (a *Aggregator) placeholder(ctx context.Context, waterbodyID string) models.HealthCard {
	a.metrics.HealthCardBuilds.WithLabelValues("demo").Inc()
	now := a.clock.Now().UTC()
	card := models.HealthCard{
		ID:                   "demo-" + waterbodyID,
		WaterbodyName:        demoWaterbodyName,
		WaterbodyID:          waterbodyID,
		Location:             demoLocation,
		RiskScore:            risk.DefaultScore,
		RiskLevel:            risk.Level(risk.DefaultScore),
		ContaminationHistory: []models.ContaminationEvent{},
		CreatedAt:            now,
		UpdatedAt:            now,
		IsDemo:               true,
	}
	if qr, err := a.qr.Generate(ctx, waterbodyID); err == nil {
		card.QRCode = qr
	}
	return card
}
