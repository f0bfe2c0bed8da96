package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/repository/memory"
	"grts/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const webhookSecret = "whsec-test"

type stubSource struct {
	items []json.RawMessage
	err   error
	since time.Time
}

func (s *stubSource) Fetch(_ context.Context, since time.Time) ([]json.RawMessage, error) {
	s.since = since
	return s.items, s.err
}

type recordingTrigger struct {
	calls []SweepOptions
}

func (t *recordingTrigger) Trigger(opts SweepOptions) {
	t.calls = append(t.calls, opts)
}

func newIngest(store *memory.Store, source TransactionSource, trigger SweepTrigger) *IngestService {
	return NewIngestService(store.Transactions, store.Cards, source, trigger, config.WEXConfig{
		WebhookSecret: webhookSecret,
		PollDays:      2,
	}, zap.NewNop())
}

func signed(body string) string {
	return base64.StdEncoding.EncodeToString(Sign(webhookSecret, []byte(body)))
}

func TestIngestIsIdempotent(t *testing.T) {
	store := memory.New()
	svc := newIngest(store, nil, nil)
	ctx := context.Background()

	amount := d("40.00")
	first, err := svc.Ingest(ctx, dto.WexTransaction{ID: "T1", Amount: &amount, Date: "2024-05-01T13:45:00Z"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	corrected := d("41.25")
	second, err := svc.Ingest(ctx, dto.WexTransaction{ID: "T1", Amount: &corrected, Date: "2024-05-01", Merchant: "Shell"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if store.Transactions.Count() != 1 {
		t.Fatalf("stored transactions = %d, want 1", store.Transactions.Count())
	}
	if first.ID != second.ID {
		t.Errorf("internal id changed on re-ingest")
	}
	if !second.Amount.Equal(corrected) || second.Merchant != "Shell" {
		t.Errorf("latest values not kept: %+v", second)
	}
	if got := models.FormatDate(second.TransactedAt); got != "2024-05-01" {
		t.Errorf("date = %s", got)
	}
}

func TestIngestMapsCardToOfficer(t *testing.T) {
	store := memory.New()
	officer := uuid.New()
	if err := store.Cards.Add(context.Background(), &models.Card{UserID: officer, CardLast4: "4242"}); err != nil {
		t.Fatal(err)
	}
	svc := newIngest(store, nil, nil)

	amount := d("10.00")
	tx, err := svc.Ingest(context.Background(), dto.WexTransaction{ID: "T9", Amount: &amount, Date: "2024-05-02", CardLast4: "4242"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !tx.Mapped() || *tx.UserID != officer {
		t.Errorf("user = %v, want %s", tx.UserID, officer)
	}

	unknown, err := svc.Ingest(context.Background(), dto.WexTransaction{ID: "T10", Amount: &amount, Date: "2024-05-02", CardLast4: "0000"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if unknown.Mapped() {
		t.Error("transaction on unknown card was mapped")
	}
}

func TestIngestValidation(t *testing.T) {
	svc := newIngest(memory.New(), nil, nil)
	amount := d("1.00")

	tests := []struct {
		name    string
		payload dto.WexTransaction
		field   string
	}{
		{"missing id", dto.WexTransaction{Amount: &amount, Date: "2024-05-01"}, "ID"},
		{"missing amount", dto.WexTransaction{ID: "T1", Date: "2024-05-01"}, "Amount"},
		{"short date", dto.WexTransaction{ID: "T1", Amount: &amount, Date: "5/1"}, "Date"},
		{"bad date", dto.WexTransaction{ID: "T1", Amount: &amount, Date: "2024-13-45"}, "Date"},
		{"bad user", dto.WexTransaction{ID: "T1", Amount: &amount, Date: "2024-05-01", UserID: "bob"}, "UserID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.payload, nil)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want FieldError", err)
			}
			if _, ok := fe.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", fe.Fields, tt.field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("FieldError does not match ErrValidation")
			}
		})
	}
}

func TestHandleWebhook(t *testing.T) {
	body := `{"id": 12345, "amount": "52.10", "date": "2024-05-03T08:00:00", "card_last4": "1111", "merchant": "Chevron"}`

	t.Run("valid signature", func(t *testing.T) {
		store := memory.New()
		svc := newIngest(store, nil, nil)

		tx, err := svc.HandleWebhook(context.Background(), []byte(body), signed(body))
		if err != nil {
			t.Fatal(err)
		}
		if tx.ExternalID != "12345" || !tx.Amount.Equal(d("52.10")) {
			t.Errorf("tx = %+v", tx)
		}
		if string(tx.Raw) != body {
			t.Error("raw payload not kept")
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		store := memory.New()
		svc := newIngest(store, nil, nil)

		tampered := `{"id": 12345, "amount": "5.10", "date": "2024-05-03"}`
		_, err := svc.HandleWebhook(context.Background(), []byte(tampered), signed(body))
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("err = %v, want ErrInvalidSignature", err)
		}
		if store.Transactions.Count() != 0 {
			t.Error("transaction stored despite bad signature")
		}
	})

	t.Run("garbage signature", func(t *testing.T) {
		svc := newIngest(memory.New(), nil, nil)
		if _, err := svc.HandleWebhook(context.Background(), []byte(body), "%%%"); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		store := memory.New()
		svc := NewIngestService(store.Transactions, store.Cards, nil, nil, config.WEXConfig{}, zap.NewNop())
		if _, err := svc.HandleWebhook(context.Background(), []byte(body), signed(body)); !errors.Is(err, ErrWebhookNotConfigured) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestPoll(t *testing.T) {
	store := memory.New()
	source := &stubSource{items: []json.RawMessage{
		json.RawMessage(`{"id":"A1","amount":20.5,"date":"2024-05-01"}`),
		json.RawMessage(`{"id":"A2","amount":"33.00","date":"2024-05-02","merchant":"BP"}`),
		json.RawMessage(`{"id":"A1","amount":21.5,"date":"2024-05-01"}`),
	}}
	trigger := &recordingTrigger{}
	svc := newIngest(store, source, trigger)

	n, err := svc.Poll(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("imported = %d, want 3", n)
	}
	if store.Transactions.Count() != 2 {
		t.Errorf("stored = %d, want 2", store.Transactions.Count())
	}
	if len(trigger.calls) != 1 || trigger.calls[0].From == nil {
		t.Fatalf("sweep triggers = %+v", trigger.calls)
	}
	wantSince := models.TruncateDate(time.Now().UTC()).AddDate(0, 0, -2)
	if !source.since.Equal(wantSince) {
		t.Errorf("since = %s, want %s", source.since, wantSince)
	}
}

func TestPollUpstreamFailure(t *testing.T) {
	store := memory.New()
	trigger := &recordingTrigger{}
	svc := newIngest(store, &stubSource{err: ErrUpstream}, trigger)

	if _, err := svc.Poll(context.Background(), 1); !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if len(trigger.calls) != 0 {
		t.Error("sweep triggered after failed poll")
	}
}

func TestPollPartialBatchKeepsEarlierItems(t *testing.T) {
	store := memory.New()
	trigger := &recordingTrigger{}
	svc := newIngest(store, &stubSource{items: []json.RawMessage{
		json.RawMessage(`{"id":"B1","amount":"10","date":"2024-05-01"}`),
		json.RawMessage(`{"id":"B2","date":"2024-05-01"}`),
		json.RawMessage(`{"id":"B3","amount":"12","date":"2024-05-01"}`),
	}}, trigger)

	n, err := svc.Poll(context.Background(), 1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if n != 1 || store.Transactions.Count() != 1 {
		t.Errorf("imported = %d stored = %d, want 1/1", n, store.Transactions.Count())
	}
	if len(trigger.calls) != 1 {
		t.Errorf("sweep triggers = %d, want 1 for the imported rows", len(trigger.calls))
	}
}

func TestPollNotConfigured(t *testing.T) {
	svc := newIngest(memory.New(), nil, nil)
	if _, err := svc.Poll(context.Background(), 1); !errors.Is(err, ErrSourceNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
