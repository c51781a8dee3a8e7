package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/risk"
)

type HealthCardRepository interface {
	// Upsert is keyed by waterbody id; the last writer wins.
	Upsert(ctx context.Context, card models.HealthCard) (models.HealthCard, error)
	GetByWaterbodyID(ctx context.Context, waterbodyID string) (models.HealthCard, error)
	ListAll(ctx context.Context) ([]models.HealthCard, error)
	ListByWaterbodyName(ctx context.Context, name string) ([]models.HealthCard, error)
}

type healthCardRepository struct {
	db *sql.DB
}

func NewHealthCardRepository(db *sql.DB) HealthCardRepository {
	return &healthCardRepository{db: db}
}

const healthCardColumns = `id, waterbody_name, waterbody_id, location, latitude, longitude, risk_score,
		last_tested_date, contamination_history, qr_code, created_at, updated_at`

func (r *healthCardRepository) Upsert(ctx context.Context, card models.HealthCard) (models.HealthCard, error) {
	history := card.ContaminationHistory
	if history == nil {
		history = []models.ContaminationEvent{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return models.HealthCard{}, apperrors.Persistence(err, "marshal contamination history")
	}

	query := `
		INSERT INTO health_cards (waterbody_id, waterbody_name, location, latitude, longitude, risk_score,
			last_tested_date, contamination_history, qr_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (waterbody_id) DO UPDATE SET
			waterbody_name        = EXCLUDED.waterbody_name,
			location              = EXCLUDED.location,
			latitude              = EXCLUDED.latitude,
			longitude             = EXCLUDED.longitude,
			risk_score            = EXCLUDED.risk_score,
			last_tested_date      = EXCLUDED.last_tested_date,
			contamination_history = EXCLUDED.contamination_history,
			qr_code               = EXCLUDED.qr_code,
			updated_at            = EXCLUDED.updated_at
		RETURNING ` + healthCardColumns

	row := r.db.QueryRowContext(ctx, query,
		card.WaterbodyID,
		card.WaterbodyName,
		card.Location,
		card.Latitude,
		card.Longitude,
		card.RiskScore,
		card.LastTestedDate,
		historyJSON,
		card.QRCode,
		card.UpdatedAt,
	)
	saved, err := scanHealthCard(row)
	if err != nil {
		return models.HealthCard{}, apperrors.Persistence(err, "upsert health card")
	}
	return saved, nil
}

func (r *healthCardRepository) GetByWaterbodyID(ctx context.Context, waterbodyID string) (models.HealthCard, error) {
	query := `SELECT ` + healthCardColumns + ` FROM health_cards WHERE waterbody_id = $1`

	card, err := scanHealthCard(r.db.QueryRowContext(ctx, query, waterbodyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.HealthCard{}, apperrors.ErrNotFound
		}
		return models.HealthCard{}, apperrors.Persistence(err, "get health card")
	}
	return card, nil
}

func (r *healthCardRepository) ListAll(ctx context.Context) ([]models.HealthCard, error) {
	query := `SELECT ` + healthCardColumns + ` FROM health_cards ORDER BY updated_at DESC`
	return r.list(ctx, query)
}

func (r *healthCardRepository) ListByWaterbodyName(ctx context.Context, name string) ([]models.HealthCard, error) {
	query := `SELECT ` + healthCardColumns + ` FROM health_cards WHERE waterbody_name = $1 ORDER BY updated_at DESC`
	return r.list(ctx, query, name)
}

func (r *healthCardRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.HealthCard, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Persistence(err, "list health cards")
	}
	defer rows.Close()

	cards := []models.HealthCard{}
	for rows.Next() {
		card, err := scanHealthCard(rows)
		if err != nil {
			return nil, apperrors.Persistence(err, "scan health card")
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "iterate health cards")
	}
	return cards, nil
}

func scanHealthCard(scanner interface {
	Scan(dest ...interface{}) error
}) (models.HealthCard, error) {
	var (
		card       models.HealthCard
		latitude   sql.NullFloat64
		longitude  sql.NullFloat64
		lastTested sql.NullTime
		historyRaw []byte
	)

	if err := scanner.Scan(
		&card.ID,
		&card.WaterbodyName,
		&card.WaterbodyID,
		&card.Location,
		&latitude,
		&longitude,
		&card.RiskScore,
		&lastTested,
		&historyRaw,
		&card.QRCode,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return models.HealthCard{}, err
	}

	if latitude.Valid {
		v := latitude.Float64
		card.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		card.Longitude = &v
	}
	if lastTested.Valid {
		t := lastTested.Time
		card.LastTestedDate = &t
	}
	card.RiskLevel = risk.Level(card.RiskScore)
	card.ContaminationHistory = []models.ContaminationEvent{}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &card.ContaminationHistory); err != nil {
			return models.HealthCard{}, err
		}
	}
	return card, nil
}
