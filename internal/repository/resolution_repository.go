package repository

import (
	"context"
	"time"

	"grts/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ResolutionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewResolutionRepository(db *pgxpool.Pool, logger *zap.Logger) *ResolutionRepository {
	return &ResolutionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ResolutionRepository) Upsert(ctx context.Context, res *models.Resolution) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}

	query := squirrel.Insert("missing_resolutions").
		Columns("user_id", "date", "reason", "manager_id", "created_at").
		Values(res.UserID, res.Date, res.Reason, res.ManagerID, res.CreatedAt).
		Suffix(`ON CONFLICT (user_id, date) DO UPDATE SET
			reason = EXCLUDED.reason,
			manager_id = EXCLUDED.manager_id,
			created_at = EXCLUDED.created_at`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ResolutionRepository) Exists(ctx context.Context, userID uuid.UUID, date time.Time) (bool, error) {
	sql, args, err := squirrel.Select("1").
		Prefix("SELECT EXISTS (").
		From("missing_resolutions").
		Where(squirrel.Eq{"user_id": userID, "date": date}).
		Suffix(")").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ResolutionRepository) List(ctx context.Context, filter ResolutionFilter) ([]*models.Resolution, error) {
	query := squirrel.Select("user_id", "date", "reason", "manager_id", "created_at").
		From("missing_resolutions").
		OrderBy("date DESC").
		PlaceholderFormat(squirrel.Dollar)

	if filter.UserID != nil {
		query = query.Where(squirrel.Eq{"user_id": *filter.UserID})
	}
	if filter.DateFrom != nil {
		query = query.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		query = query.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolutions []*models.Resolution
	for rows.Next() {
		var res models.Resolution
		if err := rows.Scan(&res.UserID, &res.Date, &res.Reason, &res.ManagerID, &res.CreatedAt); err != nil {
			return nil, err
		}
		resolutions = append(resolutions, &res)
	}

	return resolutions, rows.Err()
}
