package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/models"
)

// broadcastRecipientKey is the recipient key of the single global alert per water test.
const broadcastRecipientKey = "broadcast"

type AlertRepository interface {
	// CreateLeaderAlerts writes one alert per leader in a single transaction.
	// Replaying the same water test returns the existing rows instead of duplicating them.
	CreateLeaderAlerts(ctx context.Context, waterTestID, message string, leaderIDs []string) ([]models.Alert, error)
	CreateGlobalAlert(ctx context.Context, waterTestID, message string) (models.Alert, error)
	List(ctx context.Context, filter AlertFilter) (AlertPage, error)
	Stats(ctx context.Context, since time.Time) (models.AlertStats, error)
}

type AlertFilter struct {
	Kind     models.AlertKind
	LeaderID string
	Limit    int
	// Cursor is the id of the last alert of the previous page.
	Cursor string
}

type AlertPage struct {
	Alerts     []models.Alert `json:"alerts"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

const alertColumns = `id, kind, leader_id, message, water_test_id, created_at`

// The no-op update makes RETURNING yield the existing row on conflict.
const insertAlertQuery = `
		INSERT INTO alerts (kind, leader_id, recipient_key, message, water_test_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (water_test_id, recipient_key) DO UPDATE SET message = alerts.message
		RETURNING ` + alertColumns

func (r *alertRepository) CreateLeaderAlerts(ctx context.Context, waterTestID, message string, leaderIDs []string) ([]models.Alert, error) {
	if len(leaderIDs) == 0 {
		return []models.Alert{}, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Persistence(err, "begin leader alerts")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertAlertQuery)
	if err != nil {
		return nil, apperrors.Persistence(err, "prepare leader alert insert")
	}
	defer stmt.Close()

	alerts := make([]models.Alert, 0, len(leaderIDs))
	for _, leaderID := range leaderIDs {
		row := stmt.QueryRowContext(ctx, string(models.AlertKindLeader), leaderID, leaderID, message, waterTestID)
		alert, err := scanAlert(row)
		if err != nil {
			return nil, apperrors.Persistence(err, "insert leader alert")
		}
		alerts = append(alerts, alert)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Persistence(err, "commit leader alerts")
	}
	return alerts, nil
}

func (r *alertRepository) CreateGlobalAlert(ctx context.Context, waterTestID, message string) (models.Alert, error) {
	row := r.db.QueryRowContext(ctx, insertAlertQuery, string(models.AlertKindGlobal), nil, broadcastRecipientKey, message, waterTestID)
	alert, err := scanAlert(row)
	if err != nil {
		return models.Alert{}, apperrors.Persistence(err, "insert global alert")
	}
	return alert, nil
}

func (r *alertRepository) List(ctx context.Context, filter AlertFilter) (AlertPage, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	var (
		conditions []string
		args       []interface{}
	)
	addArg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+addArg(string(filter.Kind)))
	}
	if filter.LeaderID != "" {
		conditions = append(conditions, "leader_id = "+addArg(filter.LeaderID))
	}
	if filter.Cursor != "" {
		var cursorAt time.Time
		err := r.db.QueryRowContext(ctx, `SELECT created_at FROM alerts WHERE id = $1`, filter.Cursor).Scan(&cursorAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return AlertPage{}, apperrors.Validation("invalid cursor")
			}
			return AlertPage{}, apperrors.Persistence(err, "resolve alert cursor")
		}
		at := addArg(cursorAt)
		conditions = append(conditions, "(created_at, id) < ("+at+", "+addArg(filter.Cursor)+")")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	// fetch one extra row to know whether another page exists
	query += " ORDER BY created_at DESC, id DESC LIMIT " + addArg(filter.Limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return AlertPage{}, apperrors.Persistence(err, "list alerts")
	}
	defer rows.Close()

	page := AlertPage{Alerts: []models.Alert{}}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return AlertPage{}, apperrors.Persistence(err, "scan alert")
		}
		page.Alerts = append(page.Alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return AlertPage{}, apperrors.Persistence(err, "iterate alerts")
	}

	if len(page.Alerts) > filter.Limit {
		page.Alerts = page.Alerts[:filter.Limit]
		page.NextCursor = page.Alerts[filter.Limit-1].ID
	}
	return page, nil
}

func (r *alertRepository) Stats(ctx context.Context, since time.Time) (models.AlertStats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'leader'),
			COUNT(*) FILTER (WHERE kind = 'global'),
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $1)
		FROM alerts`

	var stats models.AlertStats
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalLeaderAlerts,
		&stats.TotalGlobalAlerts,
		&stats.TotalAlerts,
		&stats.RecentAlerts,
	)
	if err != nil {
		return models.AlertStats{}, apperrors.Persistence(err, "alert stats")
	}
	return stats, nil
}

func scanAlert(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Alert, error) {
	var (
		alert    models.Alert
		kind     string
		leaderID sql.NullString
	)
	if err := scanner.Scan(
		&alert.ID,
		&kind,
		&leaderID,
		&alert.Message,
		&alert.WaterTestID,
		&alert.CreatedAt,
	); err != nil {
		return models.Alert{}, err
	}
	alert.Kind = models.AlertKind(kind)
	if leaderID.Valid {
		v := leaderID.String
		alert.LeaderID = &v
	}
	return alert, nil
}
