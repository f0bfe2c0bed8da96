package service

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrCardTaken          = errors.New("card is registered to another officer")
	ErrCardNotFound       = errors.New("card not found")

	ErrForbidden            = errors.New("manager role required")
	ErrValidation           = errors.New("validation failed")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrWebhookNotConfigured = errors.New("webhook not configured")
	ErrSourceNotConfigured  = errors.New("transaction source not configured")
	ErrUpstream             = errors.New("upstream transaction source failed")

	ErrReceiptNotFound     = errors.New("receipt not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotPlaceholder      = errors.New("receipt has an image and is not a placeholder")
	ErrNotRealReceipt      = errors.New("target receipt has no image")
	ErrNoTransaction       = errors.New("placeholder is not tracking a transaction")
	ErrAlreadyLinked       = errors.New("receipt is already linked to another transaction")
	ErrOwnerMismatch       = errors.New("records belong to different officers")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrUnsupportedFile     = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrOCRDisabled         = errors.New("ocr drafts are not configured")
	ErrInvalidDraft        = errors.New("ocr draft failed validation")
)

// FieldError carries validator output as field -> failed tag.
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	return ErrValidation.Error()
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}
