package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/paddleocr-webui/internal/api/shared"
	"github.com/phrazzld/paddleocr-webui/internal/archive"
	"github.com/phrazzld/paddleocr-webui/internal/ocr"
	"github.com/phrazzld/paddleocr-webui/internal/task"
)

// Errors produced while handling uploads and output requests. Their messages
// are written for end users and may be returned verbatim.
var (
	ErrInvalidForm        = errors.New("invalid upload form")
	ErrNoFiles            = errors.New("no files uploaded")
	ErrUnsupportedFormat  = errors.New("unsupported file format (only images and PDF)")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUploadTooLarge     = errors.New("total upload size exceeded")
	ErrInvalidRelPaths    = errors.New("invalid relpaths")
	ErrNoMarkdown         = errors.New("no markdown output for this file")
	ErrOutputFileNotFound = errors.New("output file not found")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, task.ErrItemNotFound),
		errors.Is(err, ErrNoMarkdown),
		errors.Is(err, ErrOutputFileNotFound),
		errors.Is(err, archive.ErrNotDirectory):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, ErrInvalidForm),
		errors.Is(err, ErrNoFiles),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInvalidRelPaths):
		return http.StatusBadRequest

	// Size limits
	case errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge

	// Conflict errors
	case errors.Is(err, task.ErrTaskClosed):
		return http.StatusConflict

	// Capacity and shutdown
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	// Handle nil error
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrItemNotFound):
		return "File not found"

	case errors.Is(err, archive.ErrNotDirectory):
		return "Task directory not found"

	// Upload validation errors name the offending file, which the client sent.
	case errors.Is(err, ErrInvalidForm),
		errors.Is(err, ErrNoFiles),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInvalidRelPaths),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrUploadTooLarge),
		errors.Is(err, ErrNoMarkdown),
		errors.Is(err, ErrOutputFileNotFound):
		return err.Error()

	case errors.Is(err, task.ErrTaskClosed):
		return "Task no longer accepts files"

	case errors.Is(err, task.ErrQueueFull):
		return "Too many files are waiting; try again later"

	case errors.Is(err, task.ErrQueueClosed):
		return "Server is shutting down"

	case errors.Is(err, ocr.ErrNotConfigured):
		return err.Error()

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err, logging the redacted
// detail. defaultMsg replaces the generic message for unmapped errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" && !errors.Is(err, ocr.ErrNotConfigured) {
		msg = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
