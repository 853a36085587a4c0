package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/abcretailers/retailcore/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"message": "hello"},
			expectedBody: `{"message":"hello"}`,
		},
		{
			name:         "struct",
			status:       http.StatusCreated,
			payload:      struct{ ID string }{ID: "123"},
			expectedBody: `{"ID":"123"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "invalid_input"},
			expectedBody: `{"error":"bad request","code":"invalid_input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainErrors.NewValidationError("venue_id", "cannot be empty")

	writeError(w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "venue_id")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "record not found",
			err:            domainErrors.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "not_found",
		},
		{
			name:           "booking not found",
			err:            domainErrors.ErrBookingNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "not_found",
		},
		{
			name:           "booking conflict",
			err:            domainErrors.ErrBookingConflict,
			expectedStatus: http.StatusConflict,
			expectedCode:   "booking_conflict",
		},
		{
			name:           "wrapped booking conflict",
			err:            fmt.Errorf("%w: venue v-1 is booked on 2025-01-10", domainErrors.ErrBookingConflict),
			expectedStatus: http.StatusConflict,
			expectedCode:   "booking_conflict",
		},
		{
			name:           "version conflict",
			err:            domainErrors.ErrVersionConflict,
			expectedStatus: http.StatusConflict,
			expectedCode:   "conflict",
		},
		{
			name:           "already exists",
			err:            domainErrors.ErrAlreadyExists,
			expectedStatus: http.StatusConflict,
			expectedCode:   "already_exists",
		},
		{
			name:           "notifier unavailable",
			err:            domainErrors.ErrNotifierUnavailable,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "notifier_unavailable",
		},
		{
			name:           "timeout",
			err:            domainErrors.ErrTimeout,
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, response.Code)
		})
	}
}

func TestWriteError_VersionConflict_CustomMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.ErrVersionConflict)

	assert.Equal(t, http.StatusConflict, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "concurrent modification, please retry", response.Error)
	assert.Equal(t, "conflict", response.Code)
}

func TestWriteError_ConcurrentModificationDomainError(t *testing.T) {
	// A version conflict wrapped by a use case keeps the 409 mapping because
	// DomainError unwraps to ErrVersionConflict.
	w := httptest.NewRecorder()
	err := domainErrors.NewDomainError("concurrent_modification",
		"order was modified concurrently, please retry", domainErrors.ErrVersionConflict)

	writeError(w, err)

	assert.Equal(t, http.StatusConflict, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "conflict", response.Code)
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainErrors.NewDomainError("custom_error", "custom error message", nil)

	writeError(w, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "custom_error", response.Code)
	assert.Equal(t, "custom error message", response.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	err := errors.New("unexpected error")

	writeError(w, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Error)
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"venue_id":"v-1","event_id":"e-1","event_date":"2025-01-10"}`
	req := httptest.NewRequest("POST", "/api/v1/bookings", strings.NewReader(body))

	var result CreateBookingRequest
	err := decodeAndValidate(req, &result)

	require.NoError(t, err)
	assert.Equal(t, "v-1", result.VenueID)
	assert.Equal(t, "e-1", result.EventID)
	assert.Equal(t, "2025-01-10", result.EventDate)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	body := `{invalid json}`
	req := httptest.NewRequest("POST", "/api/v1/bookings", strings.NewReader(body))

	var result CreateBookingRequest
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "body", validationErr.Field)
	assert.Contains(t, validationErr.Message, "invalid JSON")
}

func TestDecodeAndValidate_ValidationFailure_RequiredField(t *testing.T) {
	body := `{"venue_id":"","event_id":"e-1","event_date":"2025-01-10"}`
	req := httptest.NewRequest("POST", "/api/v1/bookings", strings.NewReader(body))

	var result CreateBookingRequest
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Message, "validation failed")
}

func TestDecodeAndValidate_NegativeStockRejected(t *testing.T) {
	body := `{"stock":-1}`
	req := httptest.NewRequest("PUT", "/api/v1/products/p-1/stock", strings.NewReader(body))

	var result UpdateStockRequest
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/bookings", bytes.NewReader([]byte{}))

	var result CreateBookingRequest
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
}
