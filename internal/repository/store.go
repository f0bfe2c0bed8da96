package repository

import (
	"context"
	"errors"
	"time"

	"grts/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("record not found")

type TransactionFilter struct {
	UserID     *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
	OnlyMapped bool
}

type ReceiptFilter struct {
	UserID    *uuid.UUID
	DateFrom  *time.Time
	DateTo    *time.Time
	Statuses  []models.ReceiptStatus
	WexID     *uuid.UUID
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	Limit     int
	Offset    int
}

type ResolutionFilter struct {
	UserID   *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
}

// ReceiptPatch updates only the non-nil fields. ClearWexID wins over WexID.
type ReceiptPatch struct {
	Status      *models.ReceiptStatus
	WexID       *uuid.UUID
	ClearWexID  bool
	ReconReason *string
	ImageURL    *string
}

type TransactionStore interface {
	// Upsert inserts or overwrites by ExternalID and returns the stored row.
	Upsert(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error)
	// Dismiss records that the transaction needs no receipt. Re-ingest keeps it.
	Dismiss(ctx context.Context, id uuid.UUID) error
}

type ReceiptStore interface {
	Create(ctx context.Context, r *models.Receipt) error
	// CreatePlaceholder returns false when an active placeholder for the same
	// user, date and transaction already exists.
	CreatePlaceholder(ctx context.Context, r *models.Receipt) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	Update(ctx context.Context, id uuid.UUID, patch ReceiptPatch) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeletePendingForTransaction removes image-less pending_review placeholders
	// tracking txID, except keep. Demoted real receipts are never touched.
	DeletePendingForTransaction(ctx context.Context, txID, keep uuid.UUID) (int64, error)
	List(ctx context.Context, filter ReceiptFilter) ([]*models.Receipt, error)
}

type ResolutionStore interface {
	// Upsert replaces an existing record for the same user and date.
	Upsert(ctx context.Context, res *models.Resolution) error
	Exists(ctx context.Context, userID uuid.UUID, date time.Time) (bool, error)
	List(ctx context.Context, filter ResolutionFilter) ([]*models.Resolution, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
}

type CardStore interface {
	Add(ctx context.Context, card *models.Card) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Card, error)
	Remove(ctx context.Context, userID uuid.UUID, last4 string) error
	// OwnerOf returns the officer holding the card, or ErrNotFound.
	OwnerOf(ctx context.Context, last4 string) (uuid.UUID, error)
}

var (
	_ TransactionStore = (*TransactionRepository)(nil)
	_ ReceiptStore     = (*ReceiptRepository)(nil)
	_ ResolutionStore  = (*ResolutionRepository)(nil)
	_ UserStore        = (*UserRepository)(nil)
	_ CardStore        = (*CardRepository)(nil)
)
