package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"grts/internal/dto"
	"grts/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

const draftInstruction = `You read text recognised from a photo of a gas station receipt and return a single JSON object.

Fields:
- "date": purchase date as YYYY-MM-DD
- "time": purchase time as HH:MM
- "total": amount paid, number
- "gallons": fuel volume, number
- "price_per_gallon": number
- "fuel_grade": e.g. "Regular", "Diesel"
- "station": station name
- "payment_method": e.g. "WEX", "Visa"
- "card_last4": last four card digits
- "confidence": 0..1, how sure you are about total and date

Omit fields you cannot read. Return ONLY the JSON object, no markdown and no comments.`

var nullableNumber = map[string]any{"type": []string{"number", "null"}, "minimum": 0}

func nullableString(maxLen int) map[string]any {
	return map[string]any{"type": []string{"string", "null"}, "maxLength": maxLen}
}

var draftSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"date":             map[string]any{"type": []string{"string", "null"}, "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"time":             nullableString(8),
		"total":            nullableNumber,
		"gallons":          nullableNumber,
		"price_per_gallon": nullableNumber,
		"fuel_grade":       nullableString(40),
		"station":          nullableString(200),
		"payment_method":   nullableString(40),
		"card_last4":       map[string]any{"type": []string{"string", "null"}, "pattern": `^\d{4}$`},
		"confidence":       map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
	"required": []string{"confidence"},
}

// OCRService turns raw receipt text into an advisory draft. A nil
// *OCRService is valid and reports ErrOCRDisabled.
type OCRService struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	schema *jsonschema.Schema
	logger *zap.Logger
}

func NewOCRService(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*OCRService, error) {
	schema, err := compileDraftSchema()
	if err != nil {
		return nil, err
	}

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = draftInstruction
	model.Temperature = 0.1

	return &OCRService{client: client, model: model, schema: schema, logger: logger}, nil
}

func compileDraftSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(draftSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt_draft.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("receipt_draft.json")
}

func (s *OCRService) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}

func (s *OCRService) Draft(ctx context.Context, text string) (*dto.ReceiptDraft, error) {
	if s == nil {
		return nil, ErrOCRDisabled
	}
	text = cleanText(text)
	if text == "" {
		return nil, &FieldError{Fields: map[string]string{"Text": "required"}}
	}

	resp, err := s.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUpstream)
	}

	draft, err := parseDraft(s.schema, resp.Choices[0].Message.Content)
	if err != nil {
		s.logger.Warn("OCR draft rejected", zap.Error(err))
		return nil, err
	}

	s.logger.Info("OCR draft extracted", zap.Float64("confidence", draft.Confidence))
	return draft, nil
}

// parseDraft pulls the first JSON object out of a completion, which may be
// wrapped in markdown, and checks it against the draft schema.
func parseDraft(schema *jsonschema.Schema, content string) (*dto.ReceiptDraft, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in completion", ErrInvalidDraft)
	}
	raw := []byte(content[start : end+1])

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	var draft dto.ReceiptDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return &draft, nil
}
