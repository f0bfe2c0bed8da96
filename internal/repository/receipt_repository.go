package repository

import (
	"context"
	"errors"
	"time"

	"grts/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var receiptColumns = []string{
	"id", "user_id", "date", "total", "status", "image_url", "wex_id", "recon_reason",
	"time", "gallons", "price_per_gallon", "fuel_grade", "station", "payment_method", "card_last4", "ocr_confidence",
	"created_at", "updated_at",
}

const maxReceiptLimit = 1000

type ReceiptRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReceiptRepository) insert(rec *models.Receipt) squirrel.InsertBuilder {
	now := time.Now()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt, rec.UpdatedAt = now, now

	return squirrel.Insert("receipts").
		Columns(receiptColumns...).
		Values(
			rec.ID, rec.UserID, rec.Date, rec.Total, rec.Status, rec.ImageURL, rec.WexID, rec.ReconReason,
			rec.Time, rec.Gallons, rec.PricePerGallon, rec.FuelGrade, rec.Station, rec.PaymentMethod, rec.CardLast4, rec.OCRConfidence,
			rec.CreatedAt, rec.UpdatedAt,
		).
		PlaceholderFormat(squirrel.Dollar)
}

func (r *ReceiptRepository) Create(ctx context.Context, rec *models.Receipt) error {
	sql, args, err := r.insert(rec).ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// CreatePlaceholder leans on the receipts_placeholder_uniq partial index so
// that overlapping sweeps cannot both insert.
func (r *ReceiptRepository) CreatePlaceholder(ctx context.Context, rec *models.Receipt) (bool, error) {
	sql, args, err := r.insert(rec).
		Suffix("ON CONFLICT (user_id, date, wex_id) WHERE image_url IS NULL AND status = 'pending_review' DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rec, err := scanReceipt(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *ReceiptRepository) Update(ctx context.Context, id uuid.UUID, patch ReceiptPatch) error {
	query := squirrel.Update("receipts").
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	if patch.Status != nil {
		query = query.Set("status", *patch.Status)
	}
	if patch.ClearWexID {
		query = query.Set("wex_id", nil)
	} else if patch.WexID != nil {
		query = query.Set("wex_id", *patch.WexID)
	}
	if patch.ReconReason != nil {
		query = query.Set("recon_reason", *patch.ReconReason)
	}
	if patch.ImageURL != nil {
		query = query.Set("image_url", *patch.ImageURL)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReceiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	sql, args, err := squirrel.Delete("receipts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReceiptRepository) DeletePendingForTransaction(ctx context.Context, txID, keep uuid.UUID) (int64, error) {
	sql, args, err := squirrel.Delete("receipts").
		Where(squirrel.Eq{"wex_id": txID, "status": models.StatusPendingReview, "image_url": nil}).
		Where(squirrel.NotEq{"id": keep}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ReceiptRepository) List(ctx context.Context, filter ReceiptFilter) ([]*models.Receipt, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		OrderBy("date DESC", "created_at DESC").
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
	if len(filter.Statuses) > 0 {
		query = query.Where(squirrel.Eq{"status": filter.Statuses})
	}
	if filter.WexID != nil {
		query = query.Where(squirrel.Eq{"wex_id": *filter.WexID})
	}
	if filter.AmountMin != nil {
		query = query.Where(squirrel.GtOrEq{"total": *filter.AmountMin})
	}
	if filter.AmountMax != nil {
		query = query.Where(squirrel.LtOrEq{"total": *filter.AmountMax})
	}
	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxReceiptLimit {
			limit = maxReceiptLimit
		}
		query = query.Limit(uint64(limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
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

	var receipts []*models.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, rec)
	}

	return receipts, rows.Err()
}

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var rec models.Receipt
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Date, &rec.Total, &rec.Status, &rec.ImageURL, &rec.WexID, &rec.ReconReason,
		&rec.Time, &rec.Gallons, &rec.PricePerGallon, &rec.FuelGrade, &rec.Station, &rec.PaymentMethod, &rec.CardLast4, &rec.OCRConfidence,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
