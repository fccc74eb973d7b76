package httphandler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/application/inventory"
	orderapp "github.com/lllypuk/eventra/internal/application/order"
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/uuid"
	httphandler "github.com/lllypuk/eventra/internal/handler/http"
	"github.com/lllypuk/eventra/internal/infrastructure/eventstore"
	"github.com/lllypuk/eventra/internal/infrastructure/httpserver"
)

type apiResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiFixture struct {
	echo      *echo.Echo
	inventory *inventory.Service
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	module := cqrs.NewModule(eventstore.NewMemoryEventStore())

	service := orderapp.NewService(module.Store, module.Events, module.Projections)
	require.NoError(t, service.Register(module))

	stock := inventory.NewService(module.Events)
	require.NoError(t, stock.Register(module.Commands))
	module.Events.RegisterSaga(orderapp.NewFulfillmentSaga())

	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.RouterConfig{})
	httphandler.NewOrderHandler(module.Commands, module.Queries).RegisterRoutes(router)

	return &apiFixture{echo: e, inventory: stock}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	var parsed apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}

	return rec, parsed
}

func (f *apiFixture) placeOrder(t *testing.T) string {
	t.Helper()

	f.inventory.SetStock("SKU-1", 100)
	rec, resp := f.do(t, http.MethodPost, "/api/v1/orders",
		`{"customer_id":"`+uuid.NewUUID().String()+`","items":[{"sku":"SKU-1","quantity":2,"unit_cents":500}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	orderID, ok := resp.Data["order_id"].(string)
	require.True(t, ok)

	return orderID
}

func TestOrderHandler_Place(t *testing.T) {
	t.Run("creates an order", func(t *testing.T) {
		f := setupAPI(t)
		f.inventory.SetStock("SKU-1", 10)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders",
			`{"customer_id":"`+uuid.NewUUID().String()+`","items":[{"sku":"SKU-1","quantity":1,"unit_cents":100}]}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Data["order_id"])
		assert.Equal(t, float64(1), resp.Data["version"])
	})

	t.Run("missing items", func(t *testing.T) {
		f := setupAPI(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders",
			`{"customer_id":"`+uuid.NewUUID().String()+`","items":[]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})

	t.Run("missing customer", func(t *testing.T) {
		f := setupAPI(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders",
			`{"items":[{"sku":"SKU-1","quantity":1,"unit_cents":100}]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := setupAPI(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders", `{"customer_id":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
	})
}

func TestOrderHandler_Get(t *testing.T) {
	t.Run("returns the order view", func(t *testing.T) {
		f := setupAPI(t)
		orderID := f.placeOrder(t)

		rec, resp := f.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, orderID, resp.Data["order_id"])
		assert.Equal(t, "placed", resp.Data["status"])
		assert.Equal(t, float64(1000), resp.Data["total_cents"])
	})

	t.Run("invalid ID", func(t *testing.T) {
		f := setupAPI(t)

		rec, resp := f.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "INVALID_ORDER_ID", resp.Error.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := setupAPI(t)

		rec, resp := f.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewUUID().String(), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})
}

func TestOrderHandler_Ship(t *testing.T) {
	t.Run("ships the order", func(t *testing.T) {
		f := setupAPI(t)
		orderID := f.placeOrder(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/ship",
			`{"carrier":"UPS","tracking_id":"1Z999"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), resp.Data["version"])
	})

	t.Run("missing carrier", func(t *testing.T) {
		f := setupAPI(t)
		orderID := f.placeOrder(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/ship", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})

	t.Run("cancelled order cannot ship", func(t *testing.T) {
		f := setupAPI(t)
		orderID := f.placeOrder(t)

		rec, _ := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel",
			`{"reason":"customer request"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/ship",
			`{"carrier":"UPS"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "INVALID_STATE", resp.Error.Code)
	})
}

func TestOrderHandler_AddItem(t *testing.T) {
	t.Run("adds a line", func(t *testing.T) {
		f := setupAPI(t)
		orderID := f.placeOrder(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/items",
			`{"item":{"sku":"SKU-2","quantity":1,"unit_cents":300}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), resp.Data["version"])
	})

	t.Run("unknown order", func(t *testing.T) {
		f := setupAPI(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders/"+uuid.NewUUID().String()+"/items",
			`{"item":{"sku":"SKU-2","quantity":1,"unit_cents":300}}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("invalid item", func(t *testing.T) {
		f := setupAPI(t)
		orderID := f.placeOrder(t)

		rec, resp := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/items",
			`{"item":{"sku":"","quantity":1}}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})
}

func TestOrderHandler_Stats(t *testing.T) {
	t.Run("serves aggregated statistics", func(t *testing.T) {
		f := setupAPI(t)
		f.placeOrder(t)

		rec, resp := f.do(t, http.MethodGet, "/api/v1/stats/orders", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), resp.Data["placed"])
		assert.Equal(t, float64(1000), resp.Data["revenue_cents"])
	})
}
