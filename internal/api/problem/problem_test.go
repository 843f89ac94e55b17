package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/api/middleware"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

func decode(t *testing.T, res *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	require.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/events/1", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, TypeServer, "Server error", errors.New("boom"), "development")

	body := decode(t, res)
	require.Equal(t, "boom", body.Detail)
	require.Equal(t, "/events/1", body.Instance)
}

func TestWrite_ProdSanitizesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/events/1", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, TypeServer, "Server error", errors.New("pool exhausted"), "production")

	require.Equal(t, http.StatusText(http.StatusInternalServerError), decode(t, res).Detail)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
		detail string
	}{
		{"not found", apperr.NotFound("event with id=%s was not found", "e1"), http.StatusNotFound, TypeNotFound, "event with id=e1 was not found"},
		{"conflict", fmt.Errorf("admit: %w", apperr.Conflict("participant limit reached")), http.StatusConflict, TypeConflict, "participant limit reached"},
		{"validation", apperr.Invalid("eventDate", "must be at least 2 hours ahead"), http.StatusBadRequest, TypeValidation, "must be at least 2 hours ahead"},
		{"infrastructure", errors.New("connection refused"), http.StatusInternalServerError, TypeServer, "Internal Server Error"},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, TypeTooLarge, "request body exceeds 10 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users/u1/requests", nil)
			res := httptest.NewRecorder()

			FromError(res, req, tt.err, "production")

			require.Equal(t, tt.status, res.Code)
			body := decode(t, res)
			require.Equal(t, tt.typ, body.Type)
			require.Equal(t, tt.detail, body.Detail)
		})
	}
}

func TestFromErrorCarriesField(t *testing.T) {
	res := httptest.NewRecorder()
	FromError(res, httptest.NewRequest(http.MethodGet, "/", nil), apperr.Invalid("size", "must be positive"), "test")

	require.Equal(t, map[string]any{"size": "must be positive"}, decode(t, res).Errors)
}

func TestWriteIncludesRequestID(t *testing.T) {
	var got ProblemDetails
	handler := middleware.CorrelationID(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromError(w, r, apperr.NotFound("event %s not found", "e1"), "production")
	}))
	req := httptest.NewRequest(http.MethodGet, "/events/e1", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	got = decode(t, res)
	require.Equal(t, http.StatusNotFound, got.Status)
	require.Equal(t, "req-42", got.RequestID)
}
