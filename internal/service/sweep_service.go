package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"grts/internal/models"
	"grts/internal/repository"
	"grts/pkg/config"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepLockKey = "grts:lock:sweep"

// Locker is satisfied by *redislock.Client.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

type SweepOptions struct {
	RangeDays  int
	From       *time.Time
	To         *time.Time
	TolDollars *decimal.Decimal
	TolPercent *decimal.Decimal
}

type SweepSummary struct {
	From                string       `json:"from"`
	To                  string       `json:"to"`
	TransactionsChecked int          `json:"transactions_checked"`
	ReceiptsChecked     int          `json:"receipts_checked"`
	PlaceholdersCreated int          `json:"placeholders_created"`
	ReceiptsLinked      int          `json:"receipts_linked"`
	ReceiptsFlagged     int          `json:"receipts_flagged"`
	Failures            int          `json:"failures"`
	Count               int          `json:"count"`
	Changes             []Change     `json:"changes"`
	Ambiguous           []Change     `json:"ambiguous"`
	Locked              bool         `json:"locked"`
	DurationMS          int64        `json:"duration_ms"`
	Effects             []SideEffect `json:"-"`

	mu sync.Mutex
}

func (s *SweepSummary) record(change *Change, err error, logger *zap.Logger, fields ...zap.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.Failures++
		logger.Warn("Reconciliation item skipped", append(fields, zap.Error(err))...)
		return
	}
	if change == nil {
		return
	}

	switch change.Kind {
	case ChangeAmbiguous:
		s.Ambiguous = append(s.Ambiguous, *change)
		return
	case ChangePlaceholderCreated:
		s.PlaceholdersCreated++
	case ChangeReceiptLinked:
		s.ReceiptsLinked++
	case ChangeReceiptFlagged:
		s.ReceiptsFlagged++
	}
	s.Changes = append(s.Changes, *change)
}

type SweepService struct {
	matcher      *Matcher
	transactions repository.TransactionStore
	receipts     repository.ReceiptStore
	users        repository.UserStore
	locker       Locker
	notifier     Notifier
	publisher    EventPublisher
	cfg          config.ReconcileConfig
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewSweepService accepts a nil locker, in which case runs are not serialised.
func NewSweepService(
	matcher *Matcher,
	transactions repository.TransactionStore,
	receipts repository.ReceiptStore,
	users repository.UserStore,
	locker Locker,
	notifier Notifier,
	publisher EventPublisher,
	cfg config.ReconcileConfig,
	logger *zap.Logger,
) *SweepService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RangeDays <= 0 {
		cfg.RangeDays = 30
	}
	return &SweepService{
		matcher:      matcher,
		transactions: transactions,
		receipts:     receipts,
		users:        users,
		locker:       locker,
		notifier:     notifier,
		publisher:    publisher,
		cfg:          cfg,
		tracer:       otel.Tracer("grts/reconcile"),
		logger:       logger,
	}
}

func (s *SweepService) Tolerance(opts SweepOptions) Tolerance {
	base := Tolerance{Dollars: s.cfg.TolDollars, Percent: s.cfg.TolPercent}
	return base.WithOverrides(opts.TolDollars, opts.TolPercent)
}

func (s *SweepService) window(opts SweepOptions) (time.Time, time.Time) {
	to := models.TruncateDate(time.Now().UTC())
	if opts.To != nil {
		to = models.TruncateDate(*opts.To)
	}
	if opts.From != nil {
		return models.TruncateDate(*opts.From), to
	}
	days := opts.RangeDays
	if days <= 0 {
		days = s.cfg.RangeDays
	}
	return to.AddDate(0, 0, -days), to
}

// Run performs one bidirectional pass over the window. Per-item failures are
// counted and logged; only failing to load the work lists fails the run.
func (s *SweepService) Run(ctx context.Context, opts SweepOptions) (*SweepSummary, error) {
	started := time.Now()
	from, to := s.window(opts)
	tol := s.Tolerance(opts)
	if err := tol.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "reconcile.sweep", trace.WithAttributes(
		attribute.String("from", models.FormatDate(from)),
		attribute.String("to", models.FormatDate(to)),
	))
	defer span.End()

	summary := &SweepSummary{
		From:      models.FormatDate(from),
		To:        models.FormatDate(to),
		Changes:   []Change{},
		Ambiguous: []Change{},
	}

	release := s.acquire(ctx, summary)
	defer release()

	txs, err := s.transactions.List(ctx, repository.TransactionFilter{OnlyMapped: true, DateFrom: &from, DateTo: &to})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list transactions")
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	summary.TransactionsChecked = len(txs)
	s.forward(ctx, txs, tol, summary)

	// Receipts are read after the forward phase so new links are visible.
	receipts, err := s.receipts.List(ctx, repository.ReceiptFilter{DateFrom: &from, DateTo: &to})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list receipts")
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	var eligible []*models.Receipt
	for _, r := range receipts {
		if Eligible(r) {
			eligible = append(eligible, r)
		}
	}
	summary.ReceiptsChecked = len(eligible)
	s.reverse(ctx, eligible, tol, summary)

	sortChanges(summary.Changes)
	sortChanges(summary.Ambiguous)
	summary.Count = len(summary.Changes)
	summary.Effects = s.effectsFor(summary.Changes)
	summary.DurationMS = time.Since(started).Milliseconds()

	span.SetAttributes(
		attribute.Int("transactions", summary.TransactionsChecked),
		attribute.Int("receipts", summary.ReceiptsChecked),
		attribute.Int("changes", summary.Count),
		attribute.Int("failures", summary.Failures),
	)
	s.logger.Info("Reconciliation sweep completed",
		zap.String("from", summary.From),
		zap.String("to", summary.To),
		zap.Int("transactions", summary.TransactionsChecked),
		zap.Int("receipts", summary.ReceiptsChecked),
		zap.Int("placeholders_created", summary.PlaceholdersCreated),
		zap.Int("receipts_linked", summary.ReceiptsLinked),
		zap.Int("receipts_flagged", summary.ReceiptsFlagged),
		zap.Int("ambiguous", len(summary.Ambiguous)),
		zap.Int("failures", summary.Failures),
		zap.Int64("duration_ms", summary.DurationMS),
	)

	return summary, nil
}

// forward runs one goroutine per officer day so that two transactions on the
// same day never race for the same receipt.
func (s *SweepService) forward(ctx context.Context, txs []*models.Transaction, tol Tolerance, summary *SweepSummary) {
	groups := make(map[models.DayKey][]*models.Transaction)
	var keys []models.DayKey
	for _, tx := range txs {
		key := models.NewDayKey(*tx.UserID, tx.TransactedAt)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], tx)
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, key := range keys {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool { return group[i].ExternalID < group[j].ExternalID })

		g.Go(func() error {
			for _, tx := range group {
				itemCtx, cancel := s.itemContext(ctx)
				change, err := s.matcher.ForwardCheck(itemCtx, tx, tol)
				cancel()
				summary.record(change, err, s.logger,
					zap.String("phase", "forward"),
					zap.String("external_id", tx.ExternalID),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *SweepService) reverse(ctx context.Context, receipts []*models.Receipt, tol Tolerance, summary *SweepSummary) {
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, r := range receipts {
		r := r
		g.Go(func() error {
			itemCtx, cancel := s.itemContext(ctx)
			defer cancel()
			change, err := s.matcher.ReverseCheck(itemCtx, r, tol)
			summary.record(change, err, s.logger,
				zap.String("phase", "reverse"),
				zap.String("receipt_id", r.ID.String()),
			)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *SweepService) itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ItemTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ItemTimeout)
}

// acquire takes the advisory lock when Redis is configured. Failing to get it
// is not fatal: the matcher's guards keep concurrent runs correct.
func (s *SweepService) acquire(ctx context.Context, summary *SweepSummary) func() {
	if s.locker == nil {
		return func() {}
	}

	lock, err := s.locker.Obtain(ctx, sweepLockKey, s.cfg.LockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(500*time.Millisecond), 10),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		s.logger.Warn("Could not obtain sweep lock; proceeding without lock")
		return func() {}
	}
	if err != nil {
		s.logger.Warn("Error obtaining sweep lock; proceeding without lock", zap.Error(err))
		return func() {}
	}

	summary.Locked = true
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}
}

func (s *SweepService) effectsFor(changes []Change) []SideEffect {
	var effects []SideEffect
	for i := range changes {
		change := changes[i]
		effects = append(effects, eventEffect(s.publisher, Event{Type: string(change.Kind), Change: &change}))
		if change.Kind == ChangePlaceholderCreated {
			effects = append(effects, s.missingReceiptEmail(change))
		}
	}
	return effects
}

// missingReceiptEmail resolves the officer's address when the effect runs, so
// a lookup failure stays inside the side effect.
func (s *SweepService) missingReceiptEmail(change Change) SideEffect {
	return SideEffect{
		Name: "email:missing-receipt",
		Run: func(ctx context.Context) error {
			user, err := s.users.GetByID(ctx, change.UserID)
			if err != nil {
				return fmt.Errorf("lookup officer %s: %w", change.UserID, err)
			}
			return s.notifier.Send(ctx, missingReceiptMessage(user, change))
		},
	}
}

func missingReceiptMessage(user *models.User, change Change) Email {
	return Email{
		To:      user.Email,
		Subject: "Missing Gas Receipt",
		Text: fmt.Sprintf("Hello %s,\n\nWe detected a fuel transaction on %s for $%s without a matching receipt. Please upload a receipt in GRTS.",
			user.Name, change.Date, change.Amount.StringFixed(2)),
	}
}

func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Date != changes[j].Date {
			return changes[i].Date < changes[j].Date
		}
		if changes[i].Kind != changes[j].Kind {
			return changes[i].Kind < changes[j].Kind
		}
		return changes[i].ExternalID < changes[j].ExternalID
	})
}

// AsyncSweeper starts sweeps in the background and dispatches their side effects.
type AsyncSweeper struct {
	sweep      *SweepService
	dispatcher *Dispatcher
	timeout    time.Duration
	logger     *zap.Logger
}

func NewAsyncSweeper(sweep *SweepService, dispatcher *Dispatcher, timeout time.Duration, logger *zap.Logger) *AsyncSweeper {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AsyncSweeper{
		sweep:      sweep,
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger,
	}
}

func (a *AsyncSweeper) Trigger(opts SweepOptions) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		summary, err := a.sweep.Run(ctx, opts)
		if err != nil {
			a.logger.Warn("Triggered sweep failed", zap.Error(err))
			return
		}
		a.dispatcher.Run(ctx, summary.Effects...)
	}()
}
