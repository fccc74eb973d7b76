package httpserver_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/errs"
	"github.com/lllypuk/eventra/internal/infrastructure/httpserver"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name         string
		code         int
		data         any
		expectedBody string
	}{
		{
			name:         "object payload",
			code:         http.StatusOK,
			data:         map[string]string{"order_id": "o-1"},
			expectedBody: `{"success":true,"data":{"order_id":"o-1"}}`,
		},
		{
			name:         "nil payload omits data",
			code:         http.StatusAccepted,
			data:         nil,
			expectedBody: `{"success":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext(t)

			require.NoError(t, httpserver.RespondJSON(c, tt.code, tt.data))

			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
		})
	}
}

func TestRespondOK(t *testing.T) {
	c, rec := newTestContext(t)

	require.NoError(t, httpserver.RespondOK(c, map[string]int{"version": 2}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"version":2}}`, rec.Body.String())
}

func TestRespondCreated(t *testing.T) {
	c, rec := newTestContext(t)

	require.NoError(t, httpserver.RespondCreated(c, map[string]string{"id": "o-1"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"o-1"}}`, rec.Body.String())
}

func TestRespondNoContent(t *testing.T) {
	c, rec := newTestContext(t)

	require.NoError(t, httpserver.RespondNoContent(c))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody string
	}{
		{
			name:         "not found",
			err:          errs.ErrNotFound,
			expectedCode: http.StatusNotFound,
			expectedBody: `{"success":false,"error":{"code":"NOT_FOUND","message":"resource not found"}}`,
		},
		{
			name:         "aggregate not found",
			err:          fmt.Errorf("order o-1: %w", cqrs.ErrAggregateNotFound),
			expectedCode: http.StatusNotFound,
			expectedBody: `{"success":false,"error":{"code":"NOT_FOUND","message":"order o-1: aggregate not found"}}`,
		},
		{
			name:         "concurrency conflict",
			err:          cqrs.ErrConcurrencyConflict,
			expectedCode: http.StatusConflict,
			expectedBody: `{"success":false,"error":{"code":"CONCURRENCY_CONFLICT","message":"concurrency conflict detected"}}`,
		},
		{
			name:         "already exists",
			err:          errs.ErrAlreadyExists,
			expectedCode: http.StatusConflict,
			expectedBody: `{"success":false,"error":{"code":"ALREADY_EXISTS","message":"resource already exists"}}`,
		},
		{
			name:         "invalid input",
			err:          errs.ErrInvalidInput,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"success":false,"error":{"code":"INVALID_INPUT","message":"invalid input"}}`,
		},
		{
			name:         "invalid transition",
			err:          errs.ErrInvalidTransition,
			expectedCode: http.StatusUnprocessableEntity,
			expectedBody: `{"success":false,"error":{"code":"INVALID_STATE","message":"invalid state transition"}}`,
		},
		{
			name:         "handler not found",
			err:          cqrs.ErrHandlerNotFound,
			expectedCode: http.StatusNotImplemented,
			expectedBody: `{"success":false,"error":{"code":"NOT_IMPLEMENTED","message":"handler not found"}}`,
		},
		{
			name:         "unknown error hides the details",
			err:          errors.New("connection reset by peer"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestContext(t)

			require.NoError(t, httpserver.RespondError(c, tt.err))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
		})
	}
}

func TestRespondErrorWithCode(t *testing.T) {
	c, rec := newTestContext(t)

	require.NoError(t, httpserver.RespondErrorWithCode(
		c, http.StatusBadRequest, "INVALID_ORDER_ID", "order id must be a UUID"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"success":false,"error":{"code":"INVALID_ORDER_ID","message":"order id must be a UUID"}}`,
		rec.Body.String())
}
