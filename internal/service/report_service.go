package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"grts/internal/models"
	"grts/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultReportDays = 30
	anomalyThreshold  = 2.0
	maxAnomalies      = 20
	maxMerchants      = 10
	maxLeaderboard    = 12
)

type ReportFilter struct {
	From   time.Time
	To     time.Time
	UserID *uuid.UUID
}

// Normalize fills in the default window (last 30 days) and orders the bounds.
func (f ReportFilter) Normalize() ReportFilter {
	if f.To.IsZero() {
		f.To = time.Now().UTC()
	}
	f.To = models.TruncateDate(f.To)
	if f.From.IsZero() {
		f.From = f.To.AddDate(0, 0, -defaultReportDays)
	}
	f.From = models.TruncateDate(f.From)
	if f.From.After(f.To) {
		f.From, f.To = f.To, f.From
	}
	return f
}

// DayCell is one officer's reconciliation state for one date.
type DayCell struct {
	UserID         uuid.UUID       `json:"user_id"`
	Date           string          `json:"date"`
	Spend          decimal.Decimal `json:"spend"`
	Receipts       int             `json:"receipts"`
	Transactions   int             `json:"transactions"`
	FlaggedMissing int             `json:"flagged_missing"`
	Deficit        int             `json:"deficit"`
	Missing        int             `json:"missing"`
	Resolved       bool            `json:"resolved"`
}

type DailyRow struct {
	Date         string          `json:"date"`
	Spend        decimal.Decimal `json:"spend"`
	Receipts     int             `json:"receipts"`
	Missing      int             `json:"missing"`
	Transactions int             `json:"transactions"`
	Deficit      int             `json:"deficit"`
	Resolved     int             `json:"resolved"`
}

type Anomaly struct {
	Date     string          `json:"date"`
	Spend    decimal.Decimal `json:"spend"`
	ZSpend   float64         `json:"z_spend"`
	Deficit  int             `json:"deficit"`
	ZDeficit float64         `json:"z_deficit"`
}

type Summary struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	TotalSpend   decimal.Decimal `json:"total_spend"`
	ReceiptCount int             `json:"receipt_count"`
	MissingCount int             `json:"missing_count"`
	WexCount     int             `json:"wex_count"`
	WexAmount    decimal.Decimal `json:"wex_amount"`
	Deficit      int             `json:"deficit"`
	Resolved     int             `json:"resolved"`
}

type MerchantTotal struct {
	Merchant string          `json:"merchant"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
}

type LeaderboardEntry struct {
	UserID  uuid.UUID       `json:"user_id"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Missing int             `json:"missing"`
	Spend   decimal.Decimal `json:"spend"`
}

// Task is a date on which an officer still owes receipts, with the
// transactions that no receipt accounts for.
type Task struct {
	Date         string                `json:"date"`
	Missing      int                   `json:"missing"`
	Transactions []*models.Transaction `json:"transactions"`
}

type ReportService struct {
	receipts     repository.ReceiptStore
	transactions repository.TransactionStore
	resolutions  repository.ResolutionStore
	users        repository.UserStore
	tolerance    Tolerance
	logger       *zap.Logger
}

func NewReportService(
	receipts repository.ReceiptStore,
	transactions repository.TransactionStore,
	resolutions repository.ResolutionStore,
	users repository.UserStore,
	tolerance Tolerance,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		receipts:     receipts,
		transactions: transactions,
		resolutions:  resolutions,
		users:        users,
		tolerance:    tolerance,
		logger:       logger,
	}
}

type dataset struct {
	filter       ReportFilter
	receipts     []*models.Receipt
	transactions []*models.Transaction
	resolved     map[models.DayKey]bool
}

func (s *ReportService) load(ctx context.Context, f ReportFilter) (*dataset, error) {
	f = f.Normalize()

	receipts, err := s.receipts.List(ctx, repository.ReceiptFilter{UserID: f.UserID, DateFrom: &f.From, DateTo: &f.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{UserID: f.UserID, DateFrom: &f.From, DateTo: &f.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	resolved := make(map[models.DayKey]bool)
	rows, err := s.resolutions.List(ctx, repository.ResolutionFilter{UserID: f.UserID, DateFrom: &f.From, DateTo: &f.To})
	if err != nil {
		// Reports degrade to unadjusted counts rather than failing.
		s.logger.Warn("Resolutions unavailable, reporting unadjusted counts", zap.Error(err))
	}
	for _, r := range rows {
		resolved[r.Key()] = true
	}

	return &dataset{filter: f, receipts: receipts, transactions: txs, resolved: resolved}, nil
}

// counted reports whether a receipt counts toward spend and receipt totals.
// Placeholders and missing rows never do.
func counted(r *models.Receipt) bool {
	return r.Status != models.StatusMissing && r.HasImage()
}

func (d *dataset) cells() []DayCell {
	byKey := make(map[models.DayKey]*DayCell)
	cell := func(userID uuid.UUID, date time.Time) *DayCell {
		key := models.NewDayKey(userID, date)
		c, ok := byKey[key]
		if !ok {
			c = &DayCell{UserID: userID, Date: key.Date, Resolved: d.resolved[key]}
			byKey[key] = c
		}
		return c
	}

	for _, r := range d.receipts {
		c := cell(r.UserID, r.Date)
		switch {
		case r.Status == models.StatusMissing:
			c.FlaggedMissing++
		case counted(r):
			c.Receipts++
			c.Spend = c.Spend.Add(r.Total)
		}
	}
	for _, tx := range d.transactions {
		if !tx.Mapped() {
			continue
		}
		cell(*tx.UserID, tx.TransactedAt).Transactions++
	}

	out := make([]DayCell, 0, len(byKey))
	for _, c := range byKey {
		c.Deficit = max(0, c.Transactions-c.Receipts)
		c.Missing = max(c.Deficit, c.FlaggedMissing)
		if c.Resolved {
			c.Deficit, c.Missing = 0, 0
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

func (d *dataset) daily() []DailyRow {
	byDate := make(map[string]*DailyRow)
	var rows []DailyRow
	for day := d.filter.From; !day.After(d.filter.To); day = day.AddDate(0, 0, 1) {
		rows = append(rows, DailyRow{Date: models.FormatDate(day)})
	}
	for i := range rows {
		byDate[rows[i].Date] = &rows[i]
	}

	for _, c := range d.cells() {
		row, ok := byDate[c.Date]
		if !ok {
			continue
		}
		row.Spend = row.Spend.Add(c.Spend)
		row.Receipts += c.Receipts
		row.Missing += c.Missing
		row.Transactions += c.Transactions
		row.Deficit += c.Deficit
		if c.Resolved {
			row.Resolved++
		}
	}
	return rows
}

func (s *ReportService) Cells(ctx context.Context, f ReportFilter) ([]DayCell, error) {
	d, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}
	return d.cells(), nil
}

// Daily returns one row per calendar date in the window, zero-filled.
func (s *ReportService) Daily(ctx context.Context, f ReportFilter) ([]DailyRow, error) {
	d, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}
	return d.daily(), nil
}

func (s *ReportService) Anomalies(ctx context.Context, f ReportFilter) ([]Anomaly, error) {
	rows, err := s.Daily(ctx, f)
	if err != nil {
		return nil, err
	}
	return DetectAnomalies(rows), nil
}

// DetectAnomalies flags dates whose spend or deficit z-score is at least 2,
// using the population standard deviation (1 when the series is flat).
func DetectAnomalies(rows []DailyRow) []Anomaly {
	spend := make([]float64, len(rows))
	deficit := make([]float64, len(rows))
	for i, r := range rows {
		spend[i] = r.Spend.InexactFloat64()
		deficit[i] = float64(r.Deficit)
	}
	mSpend, sSpend := meanStd(spend)
	mDef, sDef := meanStd(deficit)

	out := []Anomaly{}
	for i, r := range rows {
		zs := (spend[i] - mSpend) / sSpend
		zd := (deficit[i] - mDef) / sDef
		if zs >= anomalyThreshold || zd >= anomalyThreshold {
			out = append(out, Anomaly{
				Date:     r.Date,
				Spend:    r.Spend,
				ZSpend:   round2(zs),
				Deficit:  r.Deficit,
				ZDeficit: round2(zd),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Max(out[i].ZSpend, out[i].ZDeficit) > math.Max(out[j].ZSpend, out[j].ZDeficit)
	})
	if len(out) > maxAnomalies {
		out = out[:maxAnomalies]
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 1
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	std := math.Sqrt(sq / float64(len(xs)))
	if std == 0 {
		std = 1
	}
	return mean, std
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func (s *ReportService) Summary(ctx context.Context, f ReportFilter) (*Summary, error) {
	d, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		From:     models.FormatDate(d.filter.From),
		To:       models.FormatDate(d.filter.To),
		WexCount: len(d.transactions),
		Resolved: len(d.resolved),
	}
	for _, tx := range d.transactions {
		out.WexAmount = out.WexAmount.Add(tx.Amount)
	}
	for _, c := range d.cells() {
		out.TotalSpend = out.TotalSpend.Add(c.Spend)
		out.ReceiptCount += c.Receipts
		out.MissingCount += c.Missing
		out.Deficit += c.Deficit
	}
	return out, nil
}

// Merchants ranks merchants by card spend.
func (s *ReportService) Merchants(ctx context.Context, f ReportFilter) ([]MerchantTotal, error) {
	d, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*MerchantTotal)
	for _, tx := range d.transactions {
		name := tx.Merchant
		if name == "" {
			name = "unknown"
		}
		m, ok := byName[name]
		if !ok {
			m = &MerchantTotal{Merchant: name}
			byName[name] = m
		}
		m.Amount = m.Amount.Add(tx.Amount)
		m.Count++
	}

	out := make([]MerchantTotal, 0, len(byName))
	for _, m := range byName {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Merchant < out[j].Merchant
	})
	if len(out) > maxMerchants {
		out = out[:maxMerchants]
	}
	return out, nil
}

// Leaderboard ranks officers by receipts flagged missing, then by spend.
func (s *ReportService) Leaderboard(ctx context.Context, f ReportFilter) ([]LeaderboardEntry, error) {
	d, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}

	byUser := make(map[uuid.UUID]*LeaderboardEntry)
	entry := func(id uuid.UUID) *LeaderboardEntry {
		e, ok := byUser[id]
		if !ok {
			e = &LeaderboardEntry{UserID: id}
			byUser[id] = e
		}
		return e
	}
	for _, r := range d.receipts {
		switch {
		case r.Status == models.StatusMissing:
			entry(r.UserID).Missing++
		case counted(r):
			e := entry(r.UserID)
			e.Spend = e.Spend.Add(r.Total)
		}
	}

	out := make([]LeaderboardEntry, 0, len(byUser))
	for id, e := range byUser {
		if u, err := s.users.GetByID(ctx, id); err == nil {
			e.Name, e.Email = u.Name, u.Email
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Missing != out[j].Missing {
			return out[i].Missing > out[j].Missing
		}
		if !out[i].Spend.Equal(out[j].Spend) {
			return out[i].Spend.GreaterThan(out[j].Spend)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	if len(out) > maxLeaderboard {
		out = out[:maxLeaderboard]
	}
	return out, nil
}

// Tasks lists the officer's dates that still need receipts, newest first.
// Resolved dates are excluded.
func (s *ReportService) Tasks(ctx context.Context, userID uuid.UUID, f ReportFilter) ([]Task, error) {
	f.UserID = &userID
	d, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}

	txByDate := make(map[string][]*models.Transaction)
	for _, tx := range d.transactions {
		key := models.FormatDate(tx.TransactedAt)
		txByDate[key] = append(txByDate[key], tx)
	}
	receiptsByDate := make(map[string][]*models.Receipt)
	for _, r := range d.receipts {
		if counted(r) {
			key := models.FormatDate(r.Date)
			receiptsByDate[key] = append(receiptsByDate[key], r)
		}
	}

	tasks := []Task{}
	for _, c := range d.cells() {
		if c.Missing == 0 {
			continue
		}
		remaining := unmatched(txByDate[c.Date], receiptsByDate[c.Date], s.tolerance)
		if len(remaining) > c.Missing {
			remaining = remaining[:c.Missing]
		}
		tasks = append(tasks, Task{Date: c.Date, Missing: c.Missing, Transactions: remaining})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Date > tasks[j].Date })
	return tasks, nil
}

// unmatched removes one transaction per receipt, by link first and then by
// tolerance, and returns what is left.
func unmatched(txs []*models.Transaction, receipts []*models.Receipt, tol Tolerance) []*models.Transaction {
	remaining := append([]*models.Transaction(nil), txs...)
	take := func(match func(*models.Transaction) bool) bool {
		for i, tx := range remaining {
			if match(tx) {
				remaining = append(remaining[:i], remaining[i+1:]...)
				return true
			}
		}
		return false
	}

	for _, r := range receipts {
		if r.Linked() && take(func(tx *models.Transaction) bool { return r.LinkedTo(tx.ID) }) {
			continue
		}
		take(func(tx *models.Transaction) bool { return tol.Satisfies(r.Total, tx.Amount) })
	}
	return remaining
}

// Transactions lists card transactions in the window, newest first.
func (s *ReportService) Transactions(ctx context.Context, f ReportFilter) ([]*models.Transaction, error) {
	f = f.Normalize()
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{UserID: f.UserID, DateFrom: &f.From, DateTo: &f.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].TransactedAt.After(txs[j].TransactedAt) })
	return txs, nil
}
