package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/paddleocr-webui/internal/api/shared"
	"github.com/phrazzld/paddleocr-webui/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware_GeneratesTraceID(t *testing.T) {
	log, buf := logger.NewTestLogger(t)

	var seen string
	h := NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContextOrDefault(r.Context()).Info("inside handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(TraceHeader))

	entries := buf.Entries(t)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, seen, e["trace_id"])
	}
}

func TestTraceMiddleware_ReusesRequestID(t *testing.T) {
	log, _ := logger.NewTestLogger(t)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(NewTraceMiddleware(log))

	var seen string
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "upstream-id-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id-1", seen)
	assert.Equal(t, "upstream-id-1", rec.Header().Get(TraceHeader))
}
