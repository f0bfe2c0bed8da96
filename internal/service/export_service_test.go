package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"grts/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestExportDaily(t *testing.T) {
	f := newFixture(t)
	date := daysAgo(1)
	f.addTx(t, "T1", "40.00", date)
	f.addTx(t, "T2", "20.00", date)
	f.addReceipt(t, "40.25", date)

	svc := NewExportService(f.reports(), zap.NewNop())
	filter := reportWindow(2)

	t.Run("csv", func(t *testing.T) {
		data, err := svc.DailyCSV(context.Background(), filter)
		if err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 4 {
			t.Fatalf("records = %d, want header + 3 days", len(records))
		}
		row := records[2]
		want := []string{models.FormatDate(date), "40.25", "1", "1", "2", "1", "0"}
		for i := range want {
			if row[i] != want[i] {
				t.Errorf("col %s = %q, want %q", dailyHeaders[i], row[i], want[i])
			}
		}
	})

	t.Run("xlsx", func(t *testing.T) {
		data, err := svc.DailyXLSX(context.Background(), filter)
		if err != nil {
			t.Fatal(err)
		}
		book, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		defer book.Close()

		rows, err := book.GetRows(dailySheet)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 4 || rows[0][0] != "Date" {
			t.Fatalf("rows = %v", rows)
		}
		if rows[2][5] != "1" {
			t.Errorf("deficit cell = %q, want 1", rows[2][5])
		}
	})
}
