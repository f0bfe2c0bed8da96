package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/repository"
	"grts/pkg/config"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SweepTrigger starts a sweep without waiting for it.
type SweepTrigger interface {
	Trigger(opts SweepOptions)
}

type IngestService struct {
	transactions repository.TransactionStore
	cards        repository.CardStore
	source       TransactionSource
	trigger      SweepTrigger
	cfg          config.WEXConfig
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewIngestService accepts a nil source (polling disabled) and a nil trigger.
func NewIngestService(
	transactions repository.TransactionStore,
	cards repository.CardStore,
	source TransactionSource,
	trigger SweepTrigger,
	cfg config.WEXConfig,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		transactions: transactions,
		cards:        cards,
		source:       source,
		trigger:      trigger,
		cfg:          cfg,
		tracer:       otel.Tracer("grts/ingest"),
		logger:       logger,
	}
}

// Ingest validates one payload and upserts it by external id.
func (s *IngestService) Ingest(ctx context.Context, payload dto.WexTransaction, raw json.RawMessage) (*models.Transaction, error) {
	tx, err := s.normalize(ctx, payload, raw)
	if err != nil {
		return nil, err
	}

	stored, err := s.transactions.Upsert(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction %s: %w", tx.ExternalID, err)
	}

	s.logger.Debug("Transaction ingested",
		zap.String("external_id", stored.ExternalID),
		zap.Bool("mapped", stored.Mapped()),
	)
	return stored, nil
}

func (s *IngestService) normalize(ctx context.Context, p dto.WexTransaction, raw json.RawMessage) (*models.Transaction, error) {
	if fields := dto.Validate(&p); fields != nil {
		return nil, &FieldError{Fields: fields}
	}

	date, err := models.ParseDate(p.Date)
	if err != nil {
		return nil, &FieldError{Fields: map[string]string{"Date": "date"}}
	}

	if raw == nil {
		if raw, err = json.Marshal(p); err != nil {
			return nil, err
		}
	}

	tx := &models.Transaction{
		ExternalID:   strings.TrimSpace(string(p.ID)),
		Amount:       *p.Amount,
		TransactedAt: date,
		Merchant:     cleanText(p.Merchant),
		CardLast4:    strings.TrimSpace(string(p.CardLast4)),
		Raw:          raw,
	}

	if p.UserID != "" {
		userID := uuid.MustParse(p.UserID)
		tx.UserID = &userID
		return tx, nil
	}

	if tx.CardLast4 != "" {
		owner, err := s.cards.OwnerOf(ctx, tx.CardLast4)
		switch {
		case err == nil:
			tx.UserID = &owner
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Info("No officer registered for card", zap.String("card_last4", tx.CardLast4))
		default:
			return nil, fmt.Errorf("failed to map card %s: %w", tx.CardLast4, err)
		}
	}
	return tx, nil
}

// HandleWebhook verifies the base64 HMAC-SHA256 signature of body before
// anything is decoded.
func (s *IngestService) HandleWebhook(ctx context.Context, body []byte, signature string) (*models.Transaction, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}
	if !VerifySignature(s.cfg.WebhookSecret, body, signature) {
		s.logger.Warn("Webhook signature mismatch")
		return nil, ErrInvalidSignature
	}

	ctx, span := s.tracer.Start(ctx, "ingest.webhook")
	defer span.End()

	var payload dto.WexTransaction
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FieldError{Fields: map[string]string{"body": "json"}}
	}

	tx, err := s.Ingest(ctx, payload, json.RawMessage(body))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("external_id", tx.ExternalID))

	s.logger.Info("Webhook transaction ingested", zap.String("external_id", tx.ExternalID))
	return tx, nil
}

func VerifySignature(secret string, body []byte, signature string) bool {
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return false
	}
	return hmac.Equal(Sign(secret, body), provided)
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// Poll imports the last days of transactions and then triggers a sweep over
// the same window. Items already upserted stay committed if a later one fails.
func (s *IngestService) Poll(ctx context.Context, days int) (int, error) {
	if s.source == nil {
		return 0, ErrSourceNotConfigured
	}
	if days <= 0 {
		days = s.cfg.PollDays
	}
	if days <= 0 {
		days = 1
	}
	since := models.TruncateDate(time.Now().UTC()).AddDate(0, 0, -days)

	ctx, span := s.tracer.Start(ctx, "ingest.poll", trace.WithAttributes(attribute.Int("days", days)))
	defer span.End()

	items, err := s.source.Fetch(ctx, since)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	imported := 0
	var failed error
	for _, item := range items {
		var payload dto.WexTransaction
		if err := json.Unmarshal(item, &payload); err != nil {
			failed = fmt.Errorf("%w: item %d: %v", ErrValidation, imported, err)
			break
		}
		if _, err := s.Ingest(ctx, payload, item); err != nil {
			failed = err
			break
		}
		imported++
	}
	span.SetAttributes(attribute.Int("imported", imported))

	if failed != nil {
		span.RecordError(failed)
		s.logger.Warn("WEX poll stopped early",
			zap.Int("imported", imported),
			zap.Int("fetched", len(items)),
			zap.Error(failed),
		)
	} else {
		s.logger.Info("WEX poll completed", zap.Int("imported", imported), zap.Int("days", days))
	}

	// Rows already upserted still get reconciled.
	if s.trigger != nil && imported > 0 {
		s.trigger.Trigger(SweepOptions{From: &since})
	}
	return imported, failed
}

func ToTransactionResponse(tx *models.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:           tx.ID.String(),
		ExternalID:   tx.ExternalID,
		Amount:       tx.Amount,
		TransactedAt: models.FormatDate(tx.TransactedAt),
		Merchant:     tx.Merchant,
		CardLast4:    tx.CardLast4,
		Dismissed:    tx.Dismissed(),
	}
	if tx.Mapped() {
		id := tx.UserID.String()
		resp.UserID = &id
	}
	return resp
}
