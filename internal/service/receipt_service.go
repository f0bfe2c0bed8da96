package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/repository"
	"grts/pkg/blobstore"
	"grts/pkg/config"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	thumbnailWidth   = 200
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type UploadResult struct {
	Receipt *dto.ReceiptResponse
	Effects []SideEffect
}

type ReceiptService struct {
	receipts repository.ReceiptStore
	users    repository.UserStore
	blobs    blobstore.Store
	ocr      *OCRService
	notifier Notifier
	cfg      config.StorageConfig
	logger   *zap.Logger
}

// NewReceiptService accepts a nil ocr service; ocr_text is then ignored.
func NewReceiptService(
	receipts repository.ReceiptStore,
	users repository.UserStore,
	blobs blobstore.Store,
	ocr *OCRService,
	notifier Notifier,
	cfg config.StorageConfig,
	logger *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		receipts: receipts,
		users:    users,
		blobs:    blobs,
		ocr:      ocr,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Upload stores the image, records an uploaded receipt for the caller and
// returns it with a signed URL. The image is written first so a receipt row
// never points at a missing object.
func (s *ReceiptService) Upload(ctx context.Context, actor Actor, req dto.UploadReceiptRequest, data []byte) (*UploadResult, error) {
	if fields := dto.Validate(&req); fields != nil {
		return nil, &FieldError{Fields: fields}
	}
	if len(data) == 0 {
		return nil, &FieldError{Fields: map[string]string{"file": "required"}}
	}
	if s.cfg.MaxUpload > 0 && int64(len(data)) > s.cfg.MaxUpload {
		return nil, ErrFileTooLarge
	}

	mtype := mimetype.Detect(data)
	ext, ok := allowedImageTypes[mtype.String()]
	if !ok {
		s.logger.Info("Rejected receipt upload", zap.String("mime", mtype.String()))
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, mtype.String())
	}

	receipt, err := s.buildReceipt(ctx, actor.UserID, req)
	if err != nil {
		return nil, err
	}

	key := actor.UserID.String() + "/" + uuid.NewString() + ext
	if err := s.blobs.Put(ctx, key, data, mtype.String()); err != nil {
		return nil, fmt.Errorf("failed to store receipt image: %w", err)
	}
	thumbKey := s.storeThumbnail(ctx, key, data)

	receipt.ImageURL = &key
	if err := s.receipts.Create(ctx, receipt); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("Failed to remove orphaned receipt image", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	resp := ToReceiptResponse(receipt)
	resp.SignedURL = s.sign(ctx, key)
	if thumbKey != "" {
		resp.ThumbnailURL = s.sign(ctx, thumbKey)
	}

	s.logger.Info("Receipt uploaded",
		zap.String("receipt_id", receipt.ID.String()),
		zap.String("user_id", actor.UserID.String()),
		zap.String("date", models.FormatDate(receipt.Date)),
		zap.String("total", receipt.Total.String()),
	)

	return &UploadResult{
		Receipt: &resp,
		Effects: []SideEffect{s.uploadedEmail(receipt)},
	}, nil
}

func (s *ReceiptService) buildReceipt(ctx context.Context, userID uuid.UUID, req dto.UploadReceiptRequest) (*models.Receipt, error) {
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, &FieldError{Fields: map[string]string{"Date": "datetime"}}
	}
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		return nil, &FieldError{Fields: map[string]string{"Total": "numeric"}}
	}

	r := &models.Receipt{
		UserID:         userID,
		Date:           date,
		Total:          total,
		Status:         models.StatusUploaded,
		Time:           optString(req.Time),
		Gallons:        optDecimal(req.Gallons),
		PricePerGallon: optDecimal(req.PricePerGallon),
		FuelGrade:      optString(req.FuelGrade),
		Station:        optString(req.Station),
		PaymentMethod:  optString(req.PaymentMethod),
		CardLast4:      optString(req.CardLast4),
	}
	if c, err := decimal.NewFromString(req.OCRConfidence); err == nil {
		f := c.InexactFloat64()
		r.OCRConfidence = &f
	}

	if req.OCRText != "" && s.ocr != nil {
		s.applyDraft(ctx, r, req.OCRText)
	}
	return r, nil
}

// applyDraft fills OCR fields the officer left empty. Date and total always
// come from the form.
func (s *ReceiptService) applyDraft(ctx context.Context, r *models.Receipt, text string) {
	draft, err := s.ocr.Draft(ctx, text)
	if err != nil {
		s.logger.Warn("OCR draft unavailable for upload", zap.Error(err))
		return
	}

	fill := func(dst **string, v string) {
		if *dst == nil {
			*dst = optString(v)
		}
	}
	fill(&r.Time, draft.Time)
	fill(&r.FuelGrade, draft.FuelGrade)
	fill(&r.Station, draft.Station)
	fill(&r.PaymentMethod, draft.PaymentMethod)
	fill(&r.CardLast4, draft.CardLast4)
	if r.Gallons == nil && draft.Gallons != nil {
		g := decimal.NewFromFloat(*draft.Gallons)
		r.Gallons = &g
	}
	if r.PricePerGallon == nil && draft.PricePerGallon != nil {
		p := decimal.NewFromFloat(*draft.PricePerGallon)
		r.PricePerGallon = &p
	}
	if r.OCRConfidence == nil {
		c := draft.Confidence
		r.OCRConfidence = &c
	}
}

// storeThumbnail writes a 200px-wide JPEG next to the image. Formats the
// decoder does not know (webp) are skipped.
func (s *ReceiptService) storeThumbnail(ctx context.Context, key string, data []byte) string {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.logger.Debug("No thumbnail for receipt image", zap.String("key", key), zap.Error(err))
		return ""
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos), imaging.JPEG); err != nil {
		s.logger.Warn("Failed to encode thumbnail", zap.String("key", key), zap.Error(err))
		return ""
	}

	thumbKey := blobstore.ThumbnailKey(strings.TrimSuffix(key, extOf(key)) + ".jpg")
	if err := s.blobs.Put(ctx, thumbKey, buf.Bytes(), "image/jpeg"); err != nil {
		s.logger.Warn("Failed to store thumbnail", zap.String("key", thumbKey), zap.Error(err))
		return ""
	}
	return thumbKey
}

func (s *ReceiptService) sign(ctx context.Context, key string) string {
	url, err := s.blobs.SignedURL(ctx, key, s.cfg.SignedURLTTL)
	if err != nil {
		s.logger.Warn("Failed to sign receipt url", zap.String("key", key), zap.Error(err))
		return ""
	}
	return url
}

func (s *ReceiptService) uploadedEmail(r *models.Receipt) SideEffect {
	return SideEffect{
		Name: "email:Receipt Uploaded",
		Run: func(ctx context.Context) error {
			user, err := s.users.GetByID(ctx, r.UserID)
			if err != nil {
				return fmt.Errorf("lookup officer %s: %w", r.UserID, err)
			}
			return s.notifier.Send(ctx, Email{
				To:      user.Email,
				Subject: "Receipt Uploaded",
				Text: fmt.Sprintf("Hi %s,\n\nWe received your gas receipt for %s totaling $%s.\n",
					user.Name, models.FormatDate(r.Date), r.Total.StringFixed(2)),
			})
		},
	}
}

// List returns receipts visible to the actor. Officers only ever see their
// own rows whatever user_id they pass.
func (s *ReceiptService) List(ctx context.Context, actor Actor, q dto.ReceiptListQuery) (*dto.ReceiptListResponse, error) {
	if fields := dto.Validate(&q); fields != nil {
		return nil, &FieldError{Fields: fields}
	}

	filter := repository.ReceiptFilter{
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}

	switch {
	case !actor.IsManager():
		filter.UserID = &actor.UserID
	case q.UserID != "":
		id := uuid.MustParse(q.UserID)
		filter.UserID = &id
	}
	for _, st := range q.Status {
		filter.Statuses = append(filter.Statuses, models.ReceiptStatus(st))
	}
	if q.DateFrom != "" {
		from, _ := models.ParseDate(q.DateFrom)
		filter.DateFrom = &from
	}
	if q.DateTo != "" {
		to, _ := models.ParseDate(q.DateTo)
		filter.DateTo = &to
	}
	filter.AmountMin = optDecimal(q.AmountMin)
	filter.AmountMax = optDecimal(q.AmountMax)

	rows, err := s.receipts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	out := &dto.ReceiptListResponse{Receipts: make([]dto.ReceiptResponse, 0, len(rows))}
	for _, r := range rows {
		resp := ToReceiptResponse(r)
		if r.HasImage() && r.Status != models.StatusMissing {
			resp.SignedURL = s.sign(ctx, *r.ImageURL)
		}
		out.Receipts = append(out.Receipts, resp)
	}
	out.Count = len(out.Receipts)
	return out, nil
}

func ToReceiptResponse(r *models.Receipt) dto.ReceiptResponse {
	resp := dto.ReceiptResponse{
		ID:             r.ID.String(),
		UserID:         r.UserID.String(),
		Date:           models.FormatDate(r.Date),
		Total:          r.Total,
		Status:         string(r.Status),
		ImageURL:       r.ImageURL,
		ReconReason:    r.ReconReason,
		Time:           r.Time,
		Gallons:        r.Gallons,
		PricePerGallon: r.PricePerGallon,
		FuelGrade:      r.FuelGrade,
		Station:        r.Station,
		PaymentMethod:  r.PaymentMethod,
		CardLast4:      r.CardLast4,
		OCRConfidence:  r.OCRConfidence,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
	if r.Linked() {
		id := r.WexID.String()
		resp.WexID = &id
	}
	return resp
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func extOf(key string) string {
	if i := strings.LastIndex(key, "."); i > strings.LastIndex(key, "/") {
		return key[i:]
	}
	return ""
}
