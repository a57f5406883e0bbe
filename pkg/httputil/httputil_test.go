package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ecommerce-pricing/pkg/errors"
	"github.com/utafrali/ecommerce-pricing/pkg/logger"
	"github.com/utafrali/ecommerce-pricing/pkg/validator"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]string{"id": "r1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"r1"}}`, rec.Body.String())
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"app error", apperrors.NotFound("campaign", "r1"), http.StatusNotFound, "NOT_FOUND", "campaign r1 not found"},
		{"wrapped sentinel", fmt.Errorf("cart line 0: %w", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", "cart line 0: invalid input"},
		{"conflict", apperrors.Conflict("coupon SAVE usage limit reached"), http.StatusConflict, "CONFLICT", "coupon SAVE usage limit reached"},
		{"unknown", errors.New("db exploded"), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
		{"unavailable keeps message", apperrors.Unavailable("rule store unavailable"), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "rule store unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			WriteError(rec, req, tt.err, logger.Discard())

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestWriteError_LogsServerErrorsWithRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	reqLogger := logger.NewWithOptions(logger.Options{Service: "test", Writer: &buf})

	ctx := logger.WithCorrelationID(logger.NewContext(t.Context(), reqLogger), "corr-1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/quote", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	WriteError(rec, req, errors.New("boom"), slog.Default())

	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "/api/v1/pricing/quote")
	assert.Equal(t, "corr-1", decodeError(t, rec).RequestID)
}

func TestWriteError_DoesNotLogClientErrors(t *testing.T) {
	var buf bytes.Buffer
	fallback := logger.NewWithOptions(logger.Options{Service: "test", Writer: &buf})

	WriteError(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), apperrors.InvalidInput("bad"), fallback)

	assert.Zero(t, buf.Len())
}

func TestWriteError_ValidationFields(t *testing.T) {
	type body struct {
		Code string `json:"code" validate:"required"`
	}
	err := validator.Validate(body{})

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, logger.Discard())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Equal(t, "is required", resp.Fields["code"])
}

func TestParseUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, req, "6f1c1d2e-3f4a-4b5c-8d9e-0a1b2c3d4e5f")
	assert.True(t, ok)
	assert.Equal(t, "6f1c1d2e-3f4a-4b5c-8d9e-0a1b2c3d4e5f", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, req, "rule-1")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeError(t, rec).Code)
}
