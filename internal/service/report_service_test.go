package service

import (
	"context"
	"testing"
	"time"

	"grts/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (f *fixture) reports() *ReportService {
	return NewReportService(f.store.Receipts, f.store.Transactions, f.store.Resolutions, f.store.Users, DefaultTolerance(), zap.NewNop())
}

func (f *fixture) flagMissing(t *testing.T, date time.Time) {
	t.Helper()
	r := &models.Receipt{UserID: f.officer.ID, Date: date, Status: models.StatusMissing}
	if err := f.store.Receipts.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
}

func reportWindow(days int) ReportFilter {
	return ReportFilter{From: daysAgo(days), To: daysAgo(0)}
}

func cellFor(t *testing.T, cells []DayCell, date time.Time) DayCell {
	t.Helper()
	for _, c := range cells {
		if c.Date == models.FormatDate(date) {
			return c
		}
	}
	t.Fatalf("no cell for %s", models.FormatDate(date))
	return DayCell{}
}

func TestReportCells(t *testing.T) {
	f := newFixture(t)
	busy, flagged := daysAgo(3), daysAgo(5)
	f.addTx(t, "T1", "40.00", busy)
	f.addTx(t, "T2", "60.00", busy)
	f.addReceipt(t, "40.00", busy)
	f.addTx(t, "T3", "20.00", flagged)
	f.flagMissing(t, flagged)
	f.flagMissing(t, flagged)

	// A placeholder with no image never counts as a receipt.
	txID := uuid.New()
	if _, err := f.store.Receipts.CreatePlaceholder(context.Background(), &models.Receipt{
		UserID: f.officer.ID, Date: busy, Total: d("60.00"), Status: models.StatusPendingReview, WexID: &txID,
	}); err != nil {
		t.Fatal(err)
	}

	cells, err := f.reports().Cells(context.Background(), reportWindow(10))
	if err != nil {
		t.Fatal(err)
	}

	c := cellFor(t, cells, busy)
	if c.Transactions != 2 || c.Receipts != 1 || c.Deficit != 1 || c.Missing != 1 {
		t.Errorf("busy cell = %+v", c)
	}
	if !c.Spend.Equal(d("40")) {
		t.Errorf("spend = %s, want 40", c.Spend)
	}

	c = cellFor(t, cells, flagged)
	if c.FlaggedMissing != 2 || c.Deficit != 1 || c.Missing != 2 {
		t.Errorf("flagged cell = %+v", c)
	}
}

func TestReportResolutionZeroesDeficit(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(2)
	f.addTx(t, "T1", "40.00", date)
	f.addTx(t, "T2", "41.00", date)
	if err := f.store.Resolutions.Upsert(context.Background(), &models.Resolution{
		UserID: f.officer.ID, Date: date, Reason: "lost", ManagerID: f.manager.ID,
	}); err != nil {
		t.Fatal(err)
	}
	svc := f.reports()

	summary, err := svc.Summary(context.Background(), reportWindow(7))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Deficit != 0 || summary.MissingCount != 0 {
		t.Errorf("summary = %+v, want zero deficit", summary)
	}
	if summary.WexCount != 2 || summary.Resolved != 1 {
		t.Errorf("wex=%d resolved=%d", summary.WexCount, summary.Resolved)
	}

	tasks, err := svc.Tasks(context.Background(), f.officer.ID, reportWindow(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %+v, want none for resolved date", tasks)
	}
}

func TestReportDailyIsZeroFilled(t *testing.T) {
	f := newFixture(t)
	f.addTx(t, "T1", "10.00", daysAgo(1))

	rows, err := f.reports().Daily(context.Background(), reportWindow(6))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(rows))
	}
	if rows[0].Date != models.FormatDate(daysAgo(6)) || rows[6].Date != models.FormatDate(daysAgo(0)) {
		t.Errorf("range = %s..%s", rows[0].Date, rows[6].Date)
	}
	if rows[5].Transactions != 1 || rows[5].Deficit != 1 {
		t.Errorf("row = %+v", rows[5])
	}
}

func TestDetectAnomalies(t *testing.T) {
	rows := make([]DailyRow, 11)
	for i := range rows {
		rows[i] = DailyRow{Date: models.FormatDate(daysAgo(i)), Spend: d("10")}
	}
	rows[4].Spend = d("100")

	got := DetectAnomalies(rows)
	if len(got) != 1 {
		t.Fatalf("anomalies = %+v, want 1", got)
	}
	if got[0].Date != rows[4].Date || got[0].ZSpend < anomalyThreshold {
		t.Errorf("anomaly = %+v", got[0])
	}
	if got[0].ZDeficit != 0 {
		t.Errorf("flat deficit z = %v, want 0", got[0].ZDeficit)
	}

	if flat := DetectAnomalies(rows[:1]); len(flat) != 0 {
		t.Errorf("single row flagged: %+v", flat)
	}
}

func TestReportMerchantsAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(1)
	f.addTx(t, "T1", "10.00", date)
	f.addTx(t, "T2", "15.00", date)
	unnamed := f.addTx(t, "T3", "50.00", date)
	unnamed.Merchant = ""
	if _, err := f.store.Transactions.Upsert(context.Background(), unnamed); err != nil {
		t.Fatal(err)
	}
	f.flagMissing(t, date)
	f.addReceipt(t, "12.00", date)
	svc := f.reports()

	merchants, err := svc.Merchants(context.Background(), reportWindow(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(merchants) != 2 || merchants[0].Merchant != "unknown" || merchants[1].Count != 2 {
		t.Errorf("merchants = %+v", merchants)
	}

	board, err := svc.Leaderboard(context.Background(), reportWindow(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 1 {
		t.Fatalf("leaderboard = %+v", board)
	}
	if board[0].Name != f.officer.Name || board[0].Missing != 1 || !board[0].Spend.Equal(d("12")) {
		t.Errorf("entry = %+v", board[0])
	}
}

func TestReportTasksListUnmatchedTransactions(t *testing.T) {
	f := newFixture(t)
	older, newer := daysAgo(4), daysAgo(2)
	f.addTx(t, "T1", "40.00", older)
	lonely := f.addTx(t, "T2", "95.00", older)
	f.addReceipt(t, "40.30", older)
	f.addTx(t, "T3", "12.00", newer)

	tasks, err := f.reports().Tasks(context.Background(), f.officer.ID, reportWindow(7))
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %+v, want 2", tasks)
	}
	if tasks[0].Date != models.FormatDate(newer) {
		t.Errorf("first task = %s, want newest", tasks[0].Date)
	}
	if len(tasks[1].Transactions) != 1 || tasks[1].Transactions[0].ID != lonely.ID {
		t.Errorf("unmatched = %+v", tasks[1].Transactions)
	}
}
