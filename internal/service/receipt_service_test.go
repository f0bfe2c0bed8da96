package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/pkg/blobstore"
	"grts/pkg/config"

	"go.uber.org/zap"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func (f *fixture) receiptService(t *testing.T) (*ReceiptService, string) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := blobstore.NewLocal(dir, "http://files.test/files", []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	svc := NewReceiptService(f.store.Receipts, f.store.Users, blobs, nil, f.notifier, config.StorageConfig{
		SignedURLTTL: time.Hour,
		MaxUpload:    1 << 20,
	}, zap.NewNop())
	return svc, dir
}

func (f *fixture) officerActor() Actor {
	return Actor{UserID: f.officer.ID, Role: models.RoleOfficer}
}

func TestUploadReceipt(t *testing.T) {
	f := newFixture(t)
	svc, dir := f.receiptService(t)
	ctx := context.Background()

	res, err := svc.Upload(ctx, f.officerActor(), dto.UploadReceiptRequest{
		Date:      "2024-05-01",
		Total:     "41.27",
		Gallons:   "11.2",
		FuelGrade: "Regular",
	}, pngBytes(t, 400, 300))
	if err != nil {
		t.Fatal(err)
	}

	got := res.Receipt
	if got.Status != string(models.StatusUploaded) || got.Date != "2024-05-01" || !got.Total.Equal(d("41.27")) {
		t.Errorf("receipt = %+v", got)
	}
	if got.ImageURL == nil || !strings.HasPrefix(*got.ImageURL, f.officer.ID.String()+"/") || !strings.HasSuffix(*got.ImageURL, ".png") {
		t.Fatalf("image key = %v", got.ImageURL)
	}
	if !strings.HasPrefix(got.SignedURL, "http://files.test/files/") || got.ThumbnailURL == "" {
		t.Errorf("urls = %q / %q", got.SignedURL, got.ThumbnailURL)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(*got.ImageURL))); err != nil {
		t.Errorf("image not stored: %v", err)
	}

	thumbKey := blobstore.ThumbnailKey(strings.TrimSuffix(*got.ImageURL, ".png") + ".jpg")
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(thumbKey))); err != nil {
		t.Errorf("thumbnail not stored: %v", err)
	}

	if len(res.Effects) != 1 {
		t.Fatalf("effects = %d", len(res.Effects))
	}
	if err := res.Effects[0].Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Subject != "Receipt Uploaded" || f.notifier.sent[0].To != f.officer.Email {
		t.Errorf("sent = %+v", f.notifier.sent)
	}
}

func TestUploadReceiptRejects(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.receiptService(t)
	valid := dto.UploadReceiptRequest{Date: "2024-05-01", Total: "10"}

	tests := []struct {
		name string
		req  dto.UploadReceiptRequest
		data []byte
		want error
	}{
		{"missing total", dto.UploadReceiptRequest{Date: "2024-05-01"}, pngBytes(t, 4, 4), ErrValidation},
		{"bad date", dto.UploadReceiptRequest{Date: "May 1", Total: "10"}, pngBytes(t, 4, 4), ErrValidation},
		{"empty file", valid, nil, ErrValidation},
		{"text file", valid, []byte("just some text, not an image"), ErrUnsupportedFile},
		{"pdf", valid, []byte("%PDF-1.4\n%...."), ErrUnsupportedFile},
		{"too large", valid, append(pngBytes(t, 4, 4), make([]byte, 1<<20)...), ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), f.officerActor(), tt.req, tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(f.store.Receipts.All()); n != 0 {
		t.Errorf("receipts stored = %d", n)
	}
}

func TestUploadWebPSkipsThumbnail(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.receiptService(t)

	webp := append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), make([]byte, 32)...)
	res, err := svc.Upload(context.Background(), f.officerActor(), dto.UploadReceiptRequest{Date: "2024-05-01", Total: "9.99"}, webp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(*res.Receipt.ImageURL, ".webp") || res.Receipt.ThumbnailURL != "" {
		t.Errorf("receipt = %+v", res.Receipt)
	}
}

func TestListReceiptsScopesOfficers(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.receiptService(t)
	ctx := context.Background()

	mine := f.addReceipt(t, "10.00", daysAgo(1))
	f.flagMissing(t, daysAgo(2))
	other := &models.Receipt{UserID: f.manager.ID, Date: daysAgo(1), Total: d("5"), Status: models.StatusUploaded}
	if err := f.store.Receipts.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	res, err := svc.List(ctx, f.officerActor(), dto.ReceiptListQuery{UserID: f.manager.ID.String()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 {
		t.Fatalf("officer sees %d receipts, want 2", res.Count)
	}
	for _, r := range res.Receipts {
		if r.UserID != f.officer.ID.String() {
			t.Errorf("officer saw receipt of %s", r.UserID)
		}
		switch r.ID {
		case mine.ID.String():
			if r.SignedURL == "" {
				t.Error("uploaded receipt not signed")
			}
		default:
			if r.SignedURL != "" {
				t.Error("missing row was signed")
			}
		}
	}

	all, err := svc.List(ctx, f.managerActor(), dto.ReceiptListQuery{Status: []string{"uploaded"}})
	if err != nil {
		t.Fatal(err)
	}
	if all.Count != 2 {
		t.Errorf("manager sees %d uploaded receipts, want 2", all.Count)
	}

	if _, err := svc.List(ctx, f.managerActor(), dto.ReceiptListQuery{Status: []string{"lost"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status: err = %v", err)
	}
}
