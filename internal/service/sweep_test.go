package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"grts/internal/models"
	"grts/internal/repository"
	"grts/internal/repository/memory"
	"grts/pkg/config"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, email Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type busyLocker struct{ calls int }

func (l *busyLocker) Obtain(context.Context, string, time.Duration, *redislock.Options) (*redislock.Lock, error) {
	l.calls++
	return nil, redislock.ErrNotObtained
}

type fixture struct {
	store     *memory.Store
	matcher   *Matcher
	sweep     *SweepService
	notifier  *recordingNotifier
	publisher *recordingPublisher
	officer   *models.User
	manager   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	logger := zap.NewNop()
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}

	officer := &models.User{ID: uuid.New(), Email: "officer@example.com", Name: "Olive", Role: models.RoleOfficer}
	manager := &models.User{ID: uuid.New(), Email: "manager@example.com", Name: "Max", Role: models.RoleManager}
	for _, u := range []*models.User{officer, manager} {
		if err := store.Users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	matcher := NewMatcher(store.Receipts, store.Transactions, store.Resolutions, logger)
	sweep := NewSweepService(matcher, store.Transactions, store.Receipts, store.Users, nil, notifier, publisher, config.ReconcileConfig{
		RangeDays:       30,
		TolDollars:      decimal.NewFromInt(1),
		TolPercent:      decimal.NewFromInt(5),
		LegacyTolerance: decimal.RequireFromString("0.02"),
		Concurrency:     4,
		ItemTimeout:     time.Second,
	}, logger)

	return &fixture{
		store:     store,
		matcher:   matcher,
		sweep:     sweep,
		notifier:  notifier,
		publisher: publisher,
		officer:   officer,
		manager:   manager,
	}
}

func daysAgo(n int) time.Time {
	return models.TruncateDate(time.Now().UTC()).AddDate(0, 0, -n)
}

func (f *fixture) addTx(t *testing.T, externalID, amount string, date time.Time) *models.Transaction {
	t.Helper()
	userID := f.officer.ID
	tx, err := f.store.Transactions.Upsert(context.Background(), &models.Transaction{
		ExternalID:   externalID,
		UserID:       &userID,
		Amount:       d(amount),
		TransactedAt: date,
		Merchant:     "Shell",
	})
	if err != nil {
		t.Fatalf("upsert tx: %v", err)
	}
	return tx
}

func (f *fixture) addReceipt(t *testing.T, total string, date time.Time) *models.Receipt {
	t.Helper()
	url := f.officer.ID.String() + "/" + uuid.NewString() + ".jpg"
	r := &models.Receipt{
		UserID:   f.officer.ID,
		Date:     date,
		Total:    d(total),
		Status:   models.StatusUploaded,
		ImageURL: &url,
	}
	if err := f.store.Receipts.Create(context.Background(), r); err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	return r
}

func (f *fixture) receipt(t *testing.T, id uuid.UUID) *models.Receipt {
	t.Helper()
	r, err := f.store.Receipts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get receipt %s: %v", id, err)
	}
	return r
}

func (f *fixture) placeholders() []*models.Receipt {
	var out []*models.Receipt
	for _, r := range f.store.Receipts.All() {
		if r.IsPlaceholder() {
			out = append(out, r)
		}
	}
	return out
}

func (f *fixture) run(t *testing.T) *SweepSummary {
	t.Helper()
	summary, err := f.sweep.Run(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	return summary
}

func TestSweepCleanMatch(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(2)
	tx := f.addTx(t, "T1", "40.00", date)
	r := f.addReceipt(t, "40.50", date)

	summary := f.run(t)

	got := f.receipt(t, r.ID)
	if !got.LinkedTo(tx.ID) {
		t.Fatalf("receipt wex_id = %v, want %s", got.WexID, tx.ID)
	}
	if got.Status != models.StatusUploaded {
		t.Errorf("status = %s, want uploaded", got.Status)
	}
	if n := len(f.placeholders()); n != 0 {
		t.Errorf("placeholders = %d, want 0", n)
	}
	if summary.ReceiptsLinked != 1 || summary.PlaceholdersCreated != 0 {
		t.Errorf("summary linked=%d created=%d", summary.ReceiptsLinked, summary.PlaceholdersCreated)
	}
}

func TestSweepMissingReceiptCreatesPlaceholder(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(2)
	tx := f.addTx(t, "T1", "40.00", date)

	summary := f.run(t)

	ph := f.placeholders()
	if len(ph) != 1 {
		t.Fatalf("placeholders = %d, want 1", len(ph))
	}
	p := ph[0]
	if p.Status != models.StatusPendingReview || p.HasImage() || !p.LinkedTo(tx.ID) {
		t.Errorf("placeholder = %+v", p)
	}
	if p.ReconReason == nil || *p.ReconReason == "" {
		t.Error("placeholder has no recon_reason")
	}
	if summary.PlaceholdersCreated != 1 || summary.Count != 1 {
		t.Errorf("summary created=%d count=%d", summary.PlaceholdersCreated, summary.Count)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "T1", "40.00", daysAgo(1))
	f.addReceipt(t, "40.20", daysAgo(1))
	f.addTx(t, "T2", "55.00", daysAgo(3))
	f.addReceipt(t, "12.00", daysAgo(4))

	first := f.run(t)
	if first.Count == 0 {
		t.Fatal("first sweep made no changes")
	}

	second := f.run(t)
	if second.Count != 0 {
		t.Errorf("second sweep changes = %d (%+v), want 0", second.Count, second.Changes)
	}
}

func TestSweepNoDuplicatePlaceholders(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "T1", "40.00", daysAgo(5))

	for i := 0; i < 3; i++ {
		f.run(t)
	}

	if n := len(f.placeholders()); n != 1 {
		t.Errorf("placeholders after three sweeps = %d, want 1", n)
	}
}

func TestSweepAmbiguousMatchNotLinked(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(1)
	f.addTx(t, "T1", "50.00", date)
	a := f.addReceipt(t, "49.50", date)
	b := f.addReceipt(t, "50.75", date)

	summary := f.run(t)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if got := f.receipt(t, id); got.Linked() {
			t.Errorf("receipt %s linked to %s, want unlinked", id, got.WexID)
		}
	}
	if len(summary.Ambiguous) != 1 || summary.Ambiguous[0].Candidates != 2 {
		t.Errorf("ambiguous = %+v", summary.Ambiguous)
	}
	if n := len(f.placeholders()); n != 0 {
		t.Errorf("placeholders = %d, want 0", n)
	}
	if summary.Count != 0 {
		t.Errorf("changes = %d, want 0", summary.Count)
	}
}

func TestSweepReverseCheckFlagsOrphanReceipt(t *testing.T) {
	f := newFixture(t)
	r := f.addReceipt(t, "30.00", daysAgo(3))

	summary := f.run(t)

	got := f.receipt(t, r.ID)
	if got.Status != models.StatusPendingReview {
		t.Errorf("status = %s, want pending_review", got.Status)
	}
	if got.ReconReason == nil {
		t.Error("flagged receipt has no recon_reason")
	}
	if summary.ReceiptsFlagged != 1 {
		t.Errorf("flagged = %d, want 1", summary.ReceiptsFlagged)
	}

	if again := f.run(t); again.ReceiptsFlagged != 0 {
		t.Errorf("second sweep flagged = %d, want 0", again.ReceiptsFlagged)
	}
}

func TestSweepLateReceiptSupersedesPlaceholder(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(2)
	tx := f.addTx(t, "T1", "40.00", date)
	f.run(t)
	if len(f.placeholders()) != 1 {
		t.Fatal("expected placeholder after first sweep")
	}

	r := f.addReceipt(t, "40.00", date)
	summary := f.run(t)

	if !f.receipt(t, r.ID).LinkedTo(tx.ID) {
		t.Error("late receipt was not linked")
	}
	if n := len(f.placeholders()); n != 0 {
		t.Errorf("placeholders = %d, want 0", n)
	}
	if len(summary.Changes) != 1 || summary.Changes[0].Superseded != 1 {
		t.Errorf("changes = %+v", summary.Changes)
	}
}

func TestSweepSkipsResolvedDay(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(2)
	f.addTx(t, "T1", "40.00", date)
	if err := f.store.Resolutions.Upsert(context.Background(), &models.Resolution{
		UserID:    f.officer.ID,
		Date:      date,
		Reason:    "card lost",
		ManagerID: f.manager.ID,
	}); err != nil {
		t.Fatal(err)
	}

	summary := f.run(t)
	if summary.PlaceholdersCreated != 0 || len(f.placeholders()) != 0 {
		t.Errorf("placeholder created for resolved day")
	}
}

func TestSweepIgnoresUnmappedTransactions(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Transactions.Upsert(context.Background(), &models.Transaction{
		ExternalID:   "ORPHAN",
		Amount:       d("20.00"),
		TransactedAt: daysAgo(1),
	}); err != nil {
		t.Fatal(err)
	}

	summary := f.run(t)
	if summary.TransactionsChecked != 0 || len(f.placeholders()) != 0 {
		t.Errorf("unmapped transaction was reconciled: %+v", summary)
	}
}

func TestSweepPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "T1", "40.00", daysAgo(1))
	broken := f.addReceipt(t, "40.00", daysAgo(1))
	f.addTx(t, "T2", "25.00", daysAgo(2))
	f.store.Receipts.FailOn = map[uuid.UUID]error{broken.ID: errors.New("connection reset")}

	summary := f.run(t)

	if summary.Failures != 1 {
		t.Errorf("failures = %d, want 1", summary.Failures)
	}
	if summary.PlaceholdersCreated != 1 {
		t.Errorf("placeholders created = %d, want 1 for the healthy day", summary.PlaceholdersCreated)
	}
}

func TestSweepToleranceOverride(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(1)
	f.addTx(t, "T1", "100.00", date)
	r := f.addReceipt(t, "94.00", date)

	pct := decimal.NewFromInt(10)
	if _, err := f.sweep.Run(context.Background(), SweepOptions{TolPercent: &pct}); err != nil {
		t.Fatal(err)
	}
	if !f.receipt(t, r.ID).Linked() {
		t.Error("receipt not linked with 10% tolerance")
	}
}

func TestSweepWindow(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "OLD", "40.00", daysAgo(45))
	f.addTx(t, "NEW", "40.00", daysAgo(3))

	summary, err := f.sweep.Run(context.Background(), SweepOptions{RangeDays: 7})
	if err != nil {
		t.Fatal(err)
	}
	if summary.TransactionsChecked != 1 {
		t.Errorf("transactions checked = %d, want 1", summary.TransactionsChecked)
	}
}

func TestSweepEffectsNotifyOfficer(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "T1", "40.00", daysAgo(2))

	summary := f.run(t)
	NewDispatcher(time.Second, zap.NewNop()).Run(context.Background(), summary.Effects...)

	if len(f.notifier.sent) != 1 {
		t.Fatalf("emails = %d, want 1", len(f.notifier.sent))
	}
	if got := f.notifier.sent[0]; got.To != f.officer.Email || got.Subject != "Missing Gas Receipt" {
		t.Errorf("email = %+v", got)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != string(ChangePlaceholderCreated) {
		t.Errorf("events = %+v", f.publisher.events)
	}
}

func TestSweepEffectFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	f.addTx(t, "T1", "40.00", daysAgo(2))

	summary := f.run(t)
	NewDispatcher(time.Second, zap.NewNop()).Run(context.Background(), summary.Effects...)

	if len(f.placeholders()) != 1 {
		t.Error("placeholder lost after notification failure")
	}
	if len(f.publisher.events) != 1 {
		t.Error("event effect skipped after earlier failure")
	}
}

func TestSweepProceedsWithoutLock(t *testing.T) {
	f := newFixture(t)
	locker := &busyLocker{}
	f.sweep.locker = locker
	f.addTx(t, "T1", "40.00", daysAgo(2))

	summary := f.run(t)
	if locker.calls != 1 {
		t.Errorf("obtain calls = %d, want 1", locker.calls)
	}
	if summary.Locked {
		t.Error("summary reports lock held")
	}
	if summary.PlaceholdersCreated != 1 {
		t.Errorf("placeholders created = %d, want 1", summary.PlaceholdersCreated)
	}
}

func TestFlagMissingLegacy(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "T1", "40.00", daysAgo(1))
	f.addReceipt(t, "40.01", daysAgo(1))
	f.addTx(t, "T2", "30.00", daysAgo(2))
	f.addReceipt(t, "30.50", daysAgo(2))

	summary, err := f.sweep.FlagMissingLegacy(context.Background(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.MissingFlagged != 1 || summary.Results[0].MissingFor != "T2" {
		t.Fatalf("summary = %+v", summary)
	}

	missing, _ := f.store.Receipts.List(context.Background(), repository.ReceiptFilter{Statuses: []models.ReceiptStatus{models.StatusMissing}})
	if len(missing) != 1 {
		t.Errorf("missing rows = %d, want 1", len(missing))
	}

	again, err := f.sweep.FlagMissingLegacy(context.Background(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.MissingFlagged != 0 {
		t.Errorf("second legacy run flagged %d", again.MissingFlagged)
	}
}

func TestSweepRejectsNegativeToleranceBeforeWriting(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(2)
	tx := f.addTx(t, "T1", "40.00", date)
	r := f.addReceipt(t, "40.00", date)
	f.run(t)

	neg := d("-1")
	_, err := f.sweep.Run(context.Background(), SweepOptions{TolDollars: &neg})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Fields["amount_tol_dollars"] == "" {
		t.Fatalf("err = %v, want field error on amount_tol_dollars", err)
	}
	if _, err := f.sweep.FlagMissingLegacy(context.Background(), 0, &neg); !errors.Is(err, ErrValidation) {
		t.Fatalf("legacy err = %v, want ErrValidation", err)
	}

	got := f.receipt(t, r.ID)
	if got.Status != models.StatusUploaded || !got.LinkedTo(tx.ID) {
		t.Errorf("receipt = %+v", got)
	}
	if n := len(f.placeholders()); n != 0 {
		t.Errorf("placeholders = %d, want 0", n)
	}
}
