package service

import "errors"

// Issuance error taxonomy. Handlers map these onto HTTP statuses; callers
// must not retry anything except ErrConcurrencyConflict, which the
// coordinator already retries internally before surfacing.
var (
	ErrSeriesNotFound      = errors.New("series not found or inactive")
	ErrSeriesLocked        = errors.New("series is locked: documents were already issued against it")
	ErrClientNotFound      = errors.New("client not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrValidationFailed    = errors.New("document content failed validation")
	ErrConcurrencyConflict = errors.New("concurrent issuance conflict on series")
	ErrNotIssued           = errors.New("document is not in issued state")
)
