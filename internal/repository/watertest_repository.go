package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
)

type WaterTestRepository interface {
	Create(ctx context.Context, params CreateWaterTestParams) (models.WaterTest, error)
	GetByID(ctx context.Context, id string) (models.WaterTest, error)
	Update(ctx context.Context, id string, params UpdateWaterTestParams) (models.WaterTest, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]models.WaterTest, error)
	// ListRecentByWaterbodyName matches the name exactly and returns newest first.
	ListRecentByWaterbodyName(ctx context.Context, name string, limit int) ([]models.WaterTest, error)
}

type CreateWaterTestParams struct {
	WaterbodyName string
	WaterbodyID   *string
	DateTime      time.Time
	Location      string
	Latitude      *float64
	Longitude     *float64
	PhotoURL      string
	Notes         string
	Quality       models.Quality
	ASHAID        string
}

// UpdateWaterTestParams leaves nil fields untouched. Quality is not editable.
type UpdateWaterTestParams struct {
	WaterbodyName *string
	// SetWaterbodyID applies WaterbodyID even when it is nil (clearing it).
	SetWaterbodyID bool
	WaterbodyID    *string
	DateTime       *time.Time
	Location       *string
	Latitude       *float64
	Longitude      *float64
	PhotoURL       *string
	Notes          *string
}

type waterTestRepository struct {
	db *sql.DB
}

func NewWaterTestRepository(db *sql.DB) WaterTestRepository {
	return &waterTestRepository{db: db}
}

const waterTestColumns = `id, waterbody_name, waterbody_id, date_time, location, latitude, longitude,
		photo_url, notes, quality, asha_id, created_at, updated_at`

func (r *waterTestRepository) Create(ctx context.Context, params CreateWaterTestParams) (models.WaterTest, error) {
	query := `
		INSERT INTO water_tests (waterbody_name, waterbody_id, date_time, location, latitude, longitude, photo_url, notes, quality, asha_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + waterTestColumns

	row := r.db.QueryRowContext(ctx, query,
		params.WaterbodyName,
		params.WaterbodyID,
		params.DateTime,
		params.Location,
		params.Latitude,
		params.Longitude,
		params.PhotoURL,
		params.Notes,
		string(params.Quality),
		params.ASHAID,
	)
	wt, err := scanWaterTest(row)
	if err != nil {
		return models.WaterTest{}, apperrors.Persistence(err, "insert water test")
	}
	return wt, nil
}

func (r *waterTestRepository) GetByID(ctx context.Context, id string) (models.WaterTest, error) {
	query := `SELECT ` + waterTestColumns + ` FROM water_tests WHERE id = $1`

	wt, err := scanWaterTest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WaterTest{}, apperrors.ErrNotFound
		}
		return models.WaterTest{}, apperrors.Persistence(err, "get water test")
	}
	return wt, nil
}

func (r *waterTestRepository) Update(ctx context.Context, id string, params UpdateWaterTestParams) (models.WaterTest, error) {
	query := `
		UPDATE water_tests SET
			waterbody_name = COALESCE($2, waterbody_name),
			waterbody_id   = CASE WHEN $3 THEN $4 ELSE waterbody_id END,
			date_time      = COALESCE($5, date_time),
			location       = COALESCE($6, location),
			latitude       = COALESCE($7, latitude),
			longitude      = COALESCE($8, longitude),
			photo_url      = COALESCE($9, photo_url),
			notes          = COALESCE($10, notes),
			updated_at     = now()
		WHERE id = $1
		RETURNING ` + waterTestColumns

	row := r.db.QueryRowContext(ctx, query,
		id,
		params.WaterbodyName,
		params.SetWaterbodyID,
		params.WaterbodyID,
		params.DateTime,
		params.Location,
		params.Latitude,
		params.Longitude,
		params.PhotoURL,
		params.Notes,
	)
	wt, err := scanWaterTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WaterTest{}, apperrors.ErrNotFound
		}
		return models.WaterTest{}, apperrors.Persistence(err, "update water test")
	}
	return wt, nil
}

func (r *waterTestRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM water_tests WHERE id = $1`, id)
	if err != nil {
		return apperrors.Persistence(err, "delete water test")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Persistence(err, "delete water test")
	}
	if rows == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *waterTestRepository) ListAll(ctx context.Context) ([]models.WaterTest, error) {
	query := `SELECT ` + waterTestColumns + ` FROM water_tests ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Persistence(err, "list water tests")
	}
	defer rows.Close()
	return collectWaterTests(rows)
}

func (r *waterTestRepository) ListRecentByWaterbodyName(ctx context.Context, name string, limit int) ([]models.WaterTest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + waterTestColumns + `
		FROM water_tests
		WHERE waterbody_name = $1
		ORDER BY date_time DESC, created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, apperrors.Persistence(err, "list water tests by waterbody")
	}
	defer rows.Close()
	return collectWaterTests(rows)
}

func collectWaterTests(rows *sql.Rows) ([]models.WaterTest, error) {
	tests := []models.WaterTest{}
	for rows.Next() {
		wt, err := scanWaterTest(rows)
		if err != nil {
			return nil, apperrors.Persistence(err, "scan water test")
		}
		tests = append(tests, wt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(err, "iterate water tests")
	}
	return tests, nil
}

func scanWaterTest(scanner interface {
	Scan(dest ...interface{}) error
}) (models.WaterTest, error) {
	var (
		wt          models.WaterTest
		waterbodyID sql.NullString
		latitude    sql.NullFloat64
		longitude   sql.NullFloat64
		quality     string
	)

	if err := scanner.Scan(
		&wt.ID,
		&wt.WaterbodyName,
		&waterbodyID,
		&wt.DateTime,
		&wt.Location,
		&latitude,
		&longitude,
		&wt.PhotoURL,
		&wt.Notes,
		&quality,
		&wt.ASHAID,
		&wt.CreatedAt,
		&wt.UpdatedAt,
	); err != nil {
		return models.WaterTest{}, err
	}

	wt.Quality = models.Quality(quality)
	if waterbodyID.Valid {
		v := waterbodyID.String
		wt.WaterbodyID = &v
	}
	if latitude.Valid {
		v := latitude.Float64
		wt.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		wt.Longitude = &v
	}
	return wt, nil
}
