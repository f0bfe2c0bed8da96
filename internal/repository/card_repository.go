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

type CardRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCardRepository(db *pgxpool.Pool, logger *zap.Logger) *CardRepository {
	return &CardRepository{
		db:     db,
		logger: logger,
	}
}

func (r *CardRepository) Add(ctx context.Context, card *models.Card) error {
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}

	sql, args, err := squirrel.Insert("wex_cards").
		Columns("user_id", "card_last4", "created_at").
		Values(card.UserID, card.CardLast4, card.CreatedAt).
		Suffix("ON CONFLICT (user_id, card_last4) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *CardRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Card, error) {
	sql, args, err := squirrel.Select("user_id", "card_last4", "created_at").
		From("wex_cards").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*models.Card
	for rows.Next() {
		var card models.Card
		if err := rows.Scan(&card.UserID, &card.CardLast4, &card.CreatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, &card)
	}

	return cards, rows.Err()
}

func (r *CardRepository) Remove(ctx context.Context, userID uuid.UUID, last4 string) error {
	sql, args, err := squirrel.Delete("wex_cards").
		Where(squirrel.Eq{"user_id": userID, "card_last4": last4}).
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

// OwnerOf picks the most recent registration when a card was re-issued.
func (r *CardRepository) OwnerOf(ctx context.Context, last4 string) (uuid.UUID, error) {
	sql, args, err := squirrel.Select("user_id").
		From("wex_cards").
		Where(squirrel.Eq{"card_last4": last4}).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return uuid.Nil, err
	}

	var userID uuid.UUID
	err = r.db.QueryRow(ctx, sql, args...).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return userID, err
}
