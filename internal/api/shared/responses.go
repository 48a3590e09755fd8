package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/paddleocr-webui/internal/platform/logger"
	"github.com/phrazzld/paddleocr-webui/internal/redact"
)

// ErrorResponse is the body of every API error. The UI shows Error as is.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"traceId,omitempty"`
}

// RespondWithJSON writes data as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContextOrDefault(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes an ErrorResponse carrying the request's trace ID.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(r.Context()),
	})
}

// errorLevel picks the log level of an error response. Capacity problems and
// requests against finished tasks are worth a warning; other client errors
// are routine.
func errorLevel(status int) slog.Level {
	switch {
	case status == http.StatusServiceUnavailable,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusConflict:
		return slog.LevelWarn
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// RespondWithErrorAndLog sends userMessage to the client and logs err. The
// logged error is redacted; the raw error never reaches the response.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, userMessage string, err error) {
	attrs := []slog.Attr{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	logger.FromContextOrDefault(r.Context()).LogAttrs(r.Context(), errorLevel(status), "API error response", attrs...)
	RespondWithError(w, r, status, userMessage)
}
