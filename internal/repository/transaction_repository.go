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

var transactionColumns = []string{
	"id", "external_id", "user_id", "amount", "transacted_at", "merchant", "card_last4", "raw", "created_at", "updated_at",
}

// dismissed_at is only written by Dismiss, never by ingest.
var transactionSelectColumns = append(append([]string{}, transactionColumns...), "dismissed_at")

type TransactionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTransactionRepository(db *pgxpool.Pool, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert keys on external_id. A repeat ingest overwrites amount, date and
// merchant but keeps an existing officer mapping when the new payload has none.
func (r *TransactionRepository) Upsert(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	now := time.Now()
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	query := squirrel.Insert("wex_transactions").
		Columns(transactionColumns...).
		Values(tx.ID, tx.ExternalID, tx.UserID, tx.Amount, tx.TransactedAt, tx.Merchant, tx.CardLast4, tx.Raw, now, now).
		Suffix(`ON CONFLICT (external_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			transacted_at = EXCLUDED.transacted_at,
			merchant = EXCLUDED.merchant,
			card_last4 = EXCLUDED.card_last4,
			raw = EXCLUDED.raw,
			user_id = COALESCE(EXCLUDED.user_id, wex_transactions.user_id),
			updated_at = EXCLUDED.updated_at
			RETURNING ` + joinColumns(transactionSelectColumns)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	stored, err := scanTransaction(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := squirrel.Select(transactionSelectColumns...).
		From("wex_transactions").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := scanTransaction(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error) {
	query := squirrel.Select(transactionSelectColumns...).
		From("wex_transactions").
		OrderBy("transacted_at DESC", "external_id").
		PlaceholderFormat(squirrel.Dollar)

	if filter.UserID != nil {
		query = query.Where(squirrel.Eq{"user_id": *filter.UserID})
	}
	if filter.OnlyMapped {
		query = query.Where(squirrel.NotEq{"user_id": nil})
	}
	if filter.DateFrom != nil {
		query = query.Where(squirrel.GtOrEq{"transacted_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		query = query.Where(squirrel.LtOrEq{"transacted_at": *filter.DateTo})
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

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// Dismiss marks the transaction as needing no receipt so the sweep stops
// recreating its placeholder. Repeating it keeps the first timestamp.
func (r *TransactionRepository) Dismiss(ctx context.Context, id uuid.UUID) error {
	sql, args, err := squirrel.Update("wex_transactions").
		Set("dismissed_at", squirrel.Expr("COALESCE(dismissed_at, ?)", time.Now())).
		Set("updated_at", time.Now()).
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

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tx models.Transaction
	if err := row.Scan(
		&tx.ID, &tx.ExternalID, &tx.UserID, &tx.Amount, &tx.TransactedAt, &tx.Merchant, &tx.CardLast4, &tx.Raw, &tx.CreatedAt, &tx.UpdatedAt, &tx.DismissedAt,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}
