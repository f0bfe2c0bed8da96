// Package memory implements the repository stores in process memory. It backs
// the service tests and the reconciler's dry-run mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"grts/internal/models"
	"grts/internal/repository"

	"github.com/google/uuid"
)

type Store struct {
	Transactions *TransactionStore
	Receipts     *ReceiptStore
	Resolutions  *ResolutionStore
	Users        *UserStore
	Cards        *CardStore
}

func New() *Store {
	return &Store{
		Transactions: &TransactionStore{byID: map[uuid.UUID]*models.Transaction{}, byExternal: map[string]uuid.UUID{}},
		Receipts:     &ReceiptStore{rows: map[uuid.UUID]*models.Receipt{}},
		Resolutions:  &ResolutionStore{rows: map[models.DayKey]*models.Resolution{}},
		Users:        &UserStore{rows: map[uuid.UUID]*models.User{}},
		Cards:        &CardStore{},
	}
}

func inRange(d time.Time, from, to *time.Time) bool {
	if from != nil && d.Before(models.TruncateDate(*from)) {
		return false
	}
	if to != nil && d.After(models.TruncateDate(*to)) {
		return false
	}
	return true
}

type TransactionStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*models.Transaction
	byExternal map[string]uuid.UUID
}

func (s *TransactionStore) Upsert(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := *tx
	stored.TransactedAt = models.TruncateDate(tx.TransactedAt)
	stored.UpdatedAt = now

	if id, ok := s.byExternal[tx.ExternalID]; ok {
		prev := s.byID[id]
		stored.ID = id
		stored.CreatedAt = prev.CreatedAt
		if !stored.Mapped() {
			stored.UserID = prev.UserID
		}
		stored.DismissedAt = prev.DismissedAt
	} else {
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
		s.byExternal[tx.ExternalID] = stored.ID
	}

	s.byID[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *TransactionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *tx
	return &out, nil
}

func (s *TransactionStore) List(_ context.Context, filter repository.TransactionFilter) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Transaction
	for _, tx := range s.byID {
		if filter.OnlyMapped && !tx.Mapped() {
			continue
		}
		if filter.UserID != nil && (tx.UserID == nil || *tx.UserID != *filter.UserID) {
			continue
		}
		if !inRange(tx.TransactedAt, filter.DateFrom, filter.DateTo) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactedAt.Equal(out[j].TransactedAt) {
			return out[i].TransactedAt.After(out[j].TransactedAt)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

func (s *TransactionStore) Dismiss(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if tx.DismissedAt == nil {
		now := time.Now()
		tx.DismissedAt = &now
		tx.UpdatedAt = now
	}
	return nil
}

// Count returns the number of stored transactions.
func (s *TransactionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

type ReceiptStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*models.Receipt
	// FailOn makes operations on the given receipt id fail, for partial-failure tests.
	FailOn map[uuid.UUID]error
	// FailDelete makes only Delete fail for the given id.
	FailDelete map[uuid.UUID]error
}

func (s *ReceiptStore) Create(_ context.Context, r *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(r)
	return nil
}

func (s *ReceiptStore) put(r *models.Receipt) {
	now := time.Now()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Date = models.TruncateDate(r.Date)
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	s.rows[r.ID] = &cp
}

func (s *ReceiptStore) CreatePlaceholder(_ context.Context, r *models.Receipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rows {
		if existing.UserID == r.UserID &&
			models.SameDate(existing.Date, r.Date) &&
			existing.Status == models.StatusPendingReview &&
			!existing.HasImage() &&
			r.WexID != nil && existing.LinkedTo(*r.WexID) {
			return false, nil
		}
	}
	s.put(r)
	return true, nil
}

func (s *ReceiptStore) GetByID(_ context.Context, id uuid.UUID) (*models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.FailOn[id]; err != nil {
		return nil, err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *ReceiptStore) Update(_ context.Context, id uuid.UUID, patch repository.ReceiptPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailOn[id]; err != nil {
		return err
	}
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if patch.ClearWexID {
		r.WexID = nil
	} else if patch.WexID != nil {
		wex := *patch.WexID
		r.WexID = &wex
	}
	if patch.ReconReason != nil {
		reason := *patch.ReconReason
		r.ReconReason = &reason
	}
	if patch.ImageURL != nil {
		url := *patch.ImageURL
		r.ImageURL = &url
	}
	r.UpdatedAt = time.Now()
	return nil
}

func (s *ReceiptStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailOn[id]; err != nil {
		return err
	}
	if err := s.FailDelete[id]; err != nil {
		return err
	}
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *ReceiptStore) DeletePendingForTransaction(_ context.Context, txID, keep uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.rows {
		if id != keep && r.Status == models.StatusPendingReview && !r.HasImage() && r.LinkedTo(txID) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *ReceiptStore) List(_ context.Context, filter repository.ReceiptFilter) ([]*models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Receipt
	for _, r := range s.rows {
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if !inRange(r.Date, filter.DateFrom, filter.DateTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, r.Status) {
			continue
		}
		if filter.WexID != nil && !r.LinkedTo(*filter.WexID) {
			continue
		}
		if filter.AmountMin != nil && r.Total.LessThan(*filter.AmountMin) {
			continue
		}
		if filter.AmountMax != nil && r.Total.GreaterThan(*filter.AmountMax) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// All returns every stored receipt.
func (s *ReceiptStore) All() []*models.Receipt {
	out, _ := s.List(context.Background(), repository.ReceiptFilter{})
	return out
}

func hasStatus(statuses []models.ReceiptStatus, status models.ReceiptStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type ResolutionStore struct {
	mu   sync.RWMutex
	rows map[models.DayKey]*models.Resolution
}

func (s *ResolutionStore) Upsert(_ context.Context, res *models.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *res
	cp.Date = models.TruncateDate(res.Date)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.rows[cp.Key()] = &cp
	return nil
}

func (s *ResolutionStore) Exists(_ context.Context, userID uuid.UUID, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rows[models.NewDayKey(userID, date)]
	return ok, nil
}

func (s *ResolutionStore) List(_ context.Context, filter repository.ResolutionFilter) ([]*models.Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Resolution
	for _, res := range s.rows {
		if filter.UserID != nil && res.UserID != *filter.UserID {
			continue
		}
		if !inRange(res.Date, filter.DateFrom, filter.DateTo) {
			continue
		}
		cp := *res
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

type UserStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*models.User
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *user
	s.rows[user.ID] = &cp
	return nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.rows {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.rows))
	for _, u := range s.rows {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *UserStore) UpdateRole(_ context.Context, id uuid.UUID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return nil
}

type CardStore struct {
	mu    sync.RWMutex
	cards []*models.Card
}

func (s *CardStore) Add(_ context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cards {
		if c.UserID == card.UserID && c.CardLast4 == card.CardLast4 {
			return nil
		}
	}
	cp := *card
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.cards = append(s.cards, &cp)
	return nil
}

func (s *CardStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Card
	for _, c := range s.cards {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *CardStore) Remove(_ context.Context, userID uuid.UUID, last4 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.cards {
		if c.UserID == userID && c.CardLast4 == last4 {
			s.cards = append(s.cards[:i], s.cards[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *CardStore) OwnerOf(_ context.Context, last4 string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owner *models.Card
	for _, c := range s.cards {
		if c.CardLast4 == last4 && (owner == nil || c.CreatedAt.After(owner.CreatedAt)) {
			owner = c
		}
	}
	if owner == nil {
		return uuid.Nil, repository.ErrNotFound
	}
	return owner.UserID, nil
}

var (
	_ repository.TransactionStore = (*TransactionStore)(nil)
	_ repository.ReceiptStore     = (*ReceiptStore)(nil)
	_ repository.ResolutionStore  = (*ResolutionStore)(nil)
	_ repository.UserStore        = (*UserStore)(nil)
	_ repository.CardStore        = (*CardStore)(nil)
)
