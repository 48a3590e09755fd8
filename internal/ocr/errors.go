package ocr

import "errors"

// Errors returned by OCR gateways. Callers branch on them with errors.Is.
var (
	// ErrCanceled is returned when the caller's cancellation predicate fired.
	// It is a control signal, not a processing failure.
	ErrCanceled = errors.New("ocr job canceled")

	// ErrTimeout is returned when a remote job does not finish in time.
	ErrTimeout = errors.New("ocr job timeout")

	// ErrJobFailed is returned when the remote service reports a failed job.
	ErrJobFailed = errors.New("ocr job failed")

	// ErrRequestFailed is returned for non-success HTTP responses.
	ErrRequestFailed = errors.New("ocr request failed")

	// ErrMissingField is returned when a response lacks an expected field.
	ErrMissingField = errors.New("ocr response missing field")

	// ErrNotConfigured is returned when an endpoint or credential is missing.
	ErrNotConfigured = errors.New("ocr gateway not configured")
)
