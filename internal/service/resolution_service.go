package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grts/internal/models"
	"grts/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultResolveReason = "Manager-acknowledged missing receipt"
	maxPendingItems      = 200
)

// Actor is the authenticated caller of a manager operation.
type Actor struct {
	UserID uuid.UUID
	Role   models.Role
}

func (a Actor) IsManager() bool {
	return a.Role == models.RoleManager
}

// ResolutionResult reports one manager operation. Warnings list follow-up
// writes that failed after the primary write succeeded.
type ResolutionResult struct {
	Message  string
	Warnings []string
	Effects  []SideEffect
}

type Candidates struct {
	Receipt      *models.Receipt
	Receipts     []*models.Receipt
	Transactions []*models.Transaction
}

type ResolutionService struct {
	receipts     repository.ReceiptStore
	transactions repository.TransactionStore
	resolutions  repository.ResolutionStore
	publisher    EventPublisher
	tolerance    Tolerance
	tracer       trace.Tracer
	logger       *zap.Logger
}

func NewResolutionService(
	receipts repository.ReceiptStore,
	transactions repository.TransactionStore,
	resolutions repository.ResolutionStore,
	publisher EventPublisher,
	tolerance Tolerance,
	logger *zap.Logger,
) *ResolutionService {
	return &ResolutionService{
		receipts:     receipts,
		transactions: transactions,
		resolutions:  resolutions,
		publisher:    publisher,
		tolerance:    tolerance,
		tracer:       otel.Tracer("grts/resolution"),
		logger:       logger,
	}
}

func (s *ResolutionService) getReceipt(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	r, err := s.receipts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt %s: %w", id, err)
	}
	return r, nil
}

func (s *ResolutionService) start(ctx context.Context, name string, actor Actor, id uuid.UUID) (context.Context, trace.Span, error) {
	if !actor.IsManager() {
		return ctx, nil, ErrForbidden
	}
	ctx, span := s.tracer.Start(ctx, "resolution."+name, trace.WithAttributes(
		attribute.String("actor", actor.UserID.String()),
		attribute.String("receipt_id", id.String()),
	))
	return ctx, span, nil
}

func (s *ResolutionService) event(kind string, actor Actor, reason string, change Change) SideEffect {
	return eventEffect(s.publisher, Event{
		Type:    kind,
		Change:  &change,
		ActorID: actor.UserID.String(),
		Reason:  reason,
	})
}

// ResolveMissing closes a pending_review row as missing and records a
// resolution for its officer day. Repeating it on a missing row only rewrites
// the resolution.
func (s *ResolutionService) ResolveMissing(ctx context.Context, actor Actor, receiptID uuid.UUID, reason string) (*ResolutionResult, error) {
	ctx, span, err := s.start(ctx, "resolve_missing", actor, receiptID)
	if err != nil {
		return nil, err
	}
	defer span.End()

	r, err := s.getReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusPendingReview && r.Status != models.StatusMissing {
		return nil, fmt.Errorf("%w: %s -> missing", ErrInvalidTransition, r.Status)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultResolveReason
	}

	if r.Status != models.StatusMissing {
		status := models.StatusMissing
		if err := s.receipts.Update(ctx, r.ID, repository.ReceiptPatch{Status: &status, ReconReason: &reason}); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to mark receipt %s missing: %w", r.ID, err)
		}
	}

	if err := s.resolutions.Upsert(ctx, &models.Resolution{
		UserID:    r.UserID,
		Date:      r.Date,
		Reason:    reason,
		ManagerID: actor.UserID,
		CreatedAt: time.Now(),
	}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to record resolution: %w", err)
	}

	s.logger.Info("Receipt resolved as missing",
		zap.String("receipt_id", r.ID.String()),
		zap.String("user_id", r.UserID.String()),
		zap.String("date", models.FormatDate(r.Date)),
		zap.String("manager_id", actor.UserID.String()),
	)

	return &ResolutionResult{
		Message: "Marked missing",
		Effects: []SideEffect{s.event("resolved_missing", actor, reason, Change{
			UserID:        r.UserID,
			Date:          models.FormatDate(r.Date),
			ReceiptID:     &r.ID,
			TransactionID: r.WexID,
			Amount:        r.Total,
		})},
	}, nil
}

// DiscardPlaceholder deletes a row that carries no image and dismisses its
// transaction, so later sweeps do not recreate the placeholder.
func (s *ResolutionService) DiscardPlaceholder(ctx context.Context, actor Actor, receiptID uuid.UUID) (*ResolutionResult, error) {
	ctx, span, err := s.start(ctx, "discard", actor, receiptID)
	if err != nil {
		return nil, err
	}
	defer span.End()

	r, err := s.getReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if r.HasImage() {
		return nil, ErrNotPlaceholder
	}

	if err := s.receipts.Delete(ctx, r.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReceiptNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to delete placeholder %s: %w", r.ID, err)
	}

	result := &ResolutionResult{Message: "Placeholder discarded"}
	if r.Linked() {
		if err := s.transactions.Dismiss(ctx, *r.WexID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Discarded placeholder but failed to dismiss transaction",
				zap.String("transaction_id", r.WexID.String()),
				zap.Error(err),
			)
			result.Warnings = append(result.Warnings, "transaction could not be dismissed: "+err.Error())
		}
	}

	s.logger.Info("Placeholder discarded",
		zap.String("receipt_id", r.ID.String()),
		zap.String("manager_id", actor.UserID.String()),
	)

	result.Effects = []SideEffect{s.event("placeholder_discarded", actor, "", Change{
		UserID:        r.UserID,
		Date:          models.FormatDate(r.Date),
		ReceiptID:     &r.ID,
		TransactionID: r.WexID,
		Amount:        r.Total,
	})}
	return result, nil
}

// LinkPlaceholderToReceipt moves the placeholder's transaction onto a real
// receipt of the same officer and then deletes the placeholder.
func (s *ResolutionService) LinkPlaceholderToReceipt(ctx context.Context, actor Actor, placeholderID, receiptID uuid.UUID) (*ResolutionResult, error) {
	ctx, span, err := s.start(ctx, "link_receipt", actor, placeholderID)
	if err != nil {
		return nil, err
	}
	defer span.End()

	placeholder, err := s.getReceipt(ctx, placeholderID)
	if err != nil {
		return nil, err
	}
	if placeholder.HasImage() {
		return nil, ErrNotPlaceholder
	}
	if !placeholder.Linked() {
		return nil, ErrNoTransaction
	}

	target, err := s.getReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if !target.HasImage() {
		return nil, ErrNotRealReceipt
	}
	if target.UserID != placeholder.UserID {
		return nil, ErrOwnerMismatch
	}
	txID := *placeholder.WexID
	if target.Linked() && !target.LinkedTo(txID) {
		return nil, ErrAlreadyLinked
	}

	patch := repository.ReceiptPatch{WexID: &txID}
	if target.Status == models.StatusPendingReview {
		status := models.StatusUploaded
		patch.Status = &status
	}
	if err := s.receipts.Update(ctx, target.ID, patch); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to link receipt %s: %w", target.ID, err)
	}

	result := &ResolutionResult{Message: "Linked"}
	if err := s.receipts.Delete(ctx, placeholder.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Linked receipt but failed to delete placeholder",
			zap.String("placeholder_id", placeholder.ID.String()),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, "placeholder could not be deleted: "+err.Error())
	}

	s.logger.Info("Placeholder linked to receipt",
		zap.String("placeholder_id", placeholder.ID.String()),
		zap.String("receipt_id", target.ID.String()),
		zap.String("manager_id", actor.UserID.String()),
	)

	result.Effects = []SideEffect{s.event(string(ChangeReceiptLinked), actor, "", Change{
		Kind:          ChangeReceiptLinked,
		UserID:        target.UserID,
		Date:          models.FormatDate(target.Date),
		ReceiptID:     &target.ID,
		TransactionID: &txID,
		Amount:        target.Total,
		Superseded:    1,
	})}
	return result, nil
}

// LinkReceiptToTransaction sets wex_id on a receipt, restores uploaded when
// the receipt has an image, and removes other pending placeholders for the
// same transaction.
func (s *ResolutionService) LinkReceiptToTransaction(ctx context.Context, actor Actor, receiptID, txID uuid.UUID) (*ResolutionResult, error) {
	ctx, span, err := s.start(ctx, "link_transaction", actor, receiptID)
	if err != nil {
		return nil, err
	}
	defer span.End()

	r, err := s.getReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusMissing {
		return nil, fmt.Errorf("%w: missing rows are closed", ErrInvalidTransition)
	}
	tx, err := s.transactions.GetByID(ctx, txID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", txID, err)
	}
	if !tx.Mapped() || *tx.UserID != r.UserID {
		return nil, ErrOwnerMismatch
	}
	if r.HasImage() && r.Linked() && !r.LinkedTo(tx.ID) {
		return nil, ErrAlreadyLinked
	}

	status := models.StatusPendingReview
	if r.HasImage() {
		status = models.StatusUploaded
	}
	if err := s.receipts.Update(ctx, r.ID, repository.ReceiptPatch{WexID: &tx.ID, Status: &status}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to link receipt %s: %w", r.ID, err)
	}

	result := &ResolutionResult{Message: "Linked"}
	removed, err := s.receipts.DeletePendingForTransaction(ctx, tx.ID, r.ID)
	if err != nil {
		s.logger.Warn("Linked receipt but failed to clean up placeholders",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, "duplicate placeholders could not be removed: "+err.Error())
	}

	s.logger.Info("Receipt linked to transaction",
		zap.String("receipt_id", r.ID.String()),
		zap.String("external_id", tx.ExternalID),
		zap.Int64("placeholders_removed", removed),
		zap.String("manager_id", actor.UserID.String()),
	)

	result.Effects = []SideEffect{s.event(string(ChangeReceiptLinked), actor, "", Change{
		Kind:          ChangeReceiptLinked,
		UserID:        r.UserID,
		Date:          models.FormatDate(r.Date),
		ReceiptID:     &r.ID,
		TransactionID: &tx.ID,
		ExternalID:    tx.ExternalID,
		Amount:        tx.Amount,
		Superseded:    removed,
	})}
	return result, nil
}

// Candidates lists what a manager could link the receipt to: unlinked real
// receipts of the same officer day, and transactions of that day within
// tolerance of the receipt total.
func (s *ResolutionService) Candidates(ctx context.Context, actor Actor, receiptID uuid.UUID) (*Candidates, error) {
	if !actor.IsManager() {
		return nil, ErrForbidden
	}
	r, err := s.getReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	return s.candidatesFor(ctx, r)
}

func (s *ResolutionService) candidatesFor(ctx context.Context, r *models.Receipt) (*Candidates, error) {
	date := models.TruncateDate(r.Date)
	userID := r.UserID

	receipts, err := s.receipts.List(ctx, repository.ReceiptFilter{UserID: &userID, DateFrom: &date, DateTo: &date})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{UserID: &userID, DateFrom: &date, DateTo: &date})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := &Candidates{
		Receipt:      r,
		Receipts:     []*models.Receipt{},
		Transactions: []*models.Transaction{},
	}
	for _, c := range receipts {
		if c.ID == r.ID || c.Status == models.StatusMissing || c.Linked() || !c.HasImage() {
			continue
		}
		out.Receipts = append(out.Receipts, c)
	}
	for _, tx := range txs {
		if r.LinkedTo(tx.ID) || s.tolerance.Satisfies(r.Total, tx.Amount) {
			out.Transactions = append(out.Transactions, tx)
		}
	}
	return out, nil
}

// Pending returns the review queue with candidates for each row.
func (s *ResolutionService) Pending(ctx context.Context, actor Actor, userID *uuid.UUID) ([]*Candidates, error) {
	if !actor.IsManager() {
		return nil, ErrForbidden
	}

	rows, err := s.receipts.List(ctx, repository.ReceiptFilter{
		UserID:   userID,
		Statuses: []models.ReceiptStatus{models.StatusPendingReview},
		Limit:    maxPendingItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending receipts: %w", err)
	}

	items := make([]*Candidates, 0, len(rows))
	for _, r := range rows {
		c, err := s.candidatesFor(ctx, r)
		if err != nil {
			s.logger.Warn("Skipping pending receipt", zap.String("receipt_id", r.ID.String()), zap.Error(err))
			continue
		}
		items = append(items, c)
	}
	return items, nil
}
