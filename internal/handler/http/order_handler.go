// Package httphandler exposes the order API over HTTP.
package httphandler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	orderapp "github.com/lllypuk/eventra/internal/application/order"
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/order"
	"github.com/lllypuk/eventra/internal/domain/uuid"
	"github.com/lllypuk/eventra/internal/infrastructure/httpserver"
	"github.com/lllypuk/eventra/internal/middleware"
)

// Validation constants for the order handler.
const (
	maxOrderItems  = 100
	statsCacheTTL  = 5 * time.Second
	maxReasonChars = 500
)

// Order handler errors.
var (
	ErrItemsRequired      = errors.New("at least one item is required")
	ErrTooManyItems       = errors.New("too many items")
	ErrCustomerIDRequired = errors.New("customer_id is required")
	ErrInvalidItem        = errors.New("item sku and positive quantity are required")
	ErrCarrierRequired    = errors.New("carrier is required")
	ErrReasonTooLong      = errors.New("reason is too long")
)

// PlaceOrderRequest represents the request to place an order.
type PlaceOrderRequest struct {
	CustomerID string        `json:"customer_id"`
	Items      []ItemRequest `json:"items"`
}

// ItemRequest represents one order line in a request.
type ItemRequest struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

// AddItemRequest represents the request to add a line to an order.
type AddItemRequest struct {
	Item ItemRequest `json:"item"`
}

// ShipOrderRequest represents the request to ship an order.
type ShipOrderRequest struct {
	Carrier    string `json:"carrier"`
	TrackingID string `json:"tracking_id"`
}

// CancelOrderRequest represents the request to cancel an order.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderResultResponse represents the outcome of an order command.
type OrderResultResponse struct {
	OrderID string `json:"order_id"`
	Version int    `json:"version"`
}

// CommandBus dispatches commands by name.
// Declared on the consumer side per project guidelines.
type CommandBus interface {
	Execute(ctx context.Context, cmd cqrs.Command) (any, error)
}

// QueryBus dispatches queries by name, optionally through the result cache.
type QueryBus interface {
	Execute(ctx context.Context, q cqrs.Query) (any, error)
	ExecuteWithCache(ctx context.Context, q cqrs.Query, ttl time.Duration) (any, error)
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	commands CommandBus
	queries  QueryBus
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(commands CommandBus, queries QueryBus) *OrderHandler {
	return &OrderHandler{
		commands: commands,
		queries:  queries,
	}
}

// RegisterRoutes registers order routes with the router.
func (h *OrderHandler) RegisterRoutes(r *httpserver.Router) {
	r.Auth().POST("/orders", h.Place)
	r.Auth().POST("/orders/:id/items", h.AddItem)
	r.Auth().POST("/orders/:id/ship", h.Ship)
	r.Auth().POST("/orders/:id/cancel", h.Cancel)
	r.Auth().GET("/orders/:id", h.Get)
	r.Public().GET("/stats/orders", h.Stats)
}

// Place handles POST /api/v1/orders.
func (h *OrderHandler) Place(c echo.Context) error {
	var req PlaceOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	if valErr := validatePlaceOrderRequest(&req); valErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", valErr.Error())
	}

	cmd := orderapp.PlaceOrder{
		OrderID:    uuid.NewUUID().String(),
		CustomerID: req.CustomerID,
		Items:      toItems(req.Items),
		UserID:     middleware.UserID(c.Request().Context()),
	}

	result, err := h.commands.Execute(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondCreated(c, toResultResponse(result))
}

// AddItem handles POST /api/v1/orders/:id/items.
func (h *OrderHandler) AddItem(c echo.Context) error {
	orderID, parseErr := orderIDParam(c)
	if parseErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", parseErr.Error())
	}

	var req AddItemRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	if req.Item.SKU == "" || req.Item.Quantity <= 0 {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", ErrInvalidItem.Error())
	}

	cmd := orderapp.AddOrderItem{
		OrderID: orderID,
		Item: order.Item{
			SKU:       req.Item.SKU,
			Quantity:  req.Item.Quantity,
			UnitCents: req.Item.UnitCents,
		},
		UserID: middleware.UserID(c.Request().Context()),
	}

	result, err := h.commands.Execute(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, toResultResponse(result))
}

// Ship handles POST /api/v1/orders/:id/ship.
func (h *OrderHandler) Ship(c echo.Context) error {
	orderID, parseErr := orderIDParam(c)
	if parseErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", parseErr.Error())
	}

	var req ShipOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	if req.Carrier == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", ErrCarrierRequired.Error())
	}

	cmd := orderapp.ShipOrder{
		OrderID:    orderID,
		Carrier:    req.Carrier,
		TrackingID: req.TrackingID,
		UserID:     middleware.UserID(c.Request().Context()),
	}

	result, err := h.commands.Execute(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, toResultResponse(result))
}

// Cancel handles POST /api/v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	orderID, parseErr := orderIDParam(c)
	if parseErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", parseErr.Error())
	}

	var req CancelOrderRequest
	if bindErr := c.Bind(&req); bindErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	if len(req.Reason) > maxReasonChars {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", ErrReasonTooLong.Error())
	}

	cmd := orderapp.CancelOrder{
		OrderID: orderID,
		Reason:  req.Reason,
		UserID:  middleware.UserID(c.Request().Context()),
	}

	result, err := h.commands.Execute(c.Request().Context(), cmd)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, toResultResponse(result))
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	orderID, parseErr := orderIDParam(c)
	if parseErr != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_ORDER_ID", parseErr.Error())
	}

	result, err := h.queries.Execute(c.Request().Context(), orderapp.GetOrder{OrderID: orderID})
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, result)
}

// Stats handles GET /api/v1/stats/orders.
// The statistics read model is served through the query cache.
func (h *OrderHandler) Stats(c echo.Context) error {
	result, err := h.queries.ExecuteWithCache(c.Request().Context(), orderapp.OrderStats{}, statsCacheTTL)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	return httpserver.RespondOK(c, result)
}

// orderIDParam parses the :id path parameter.
func orderIDParam(c echo.Context) (string, error) {
	id, err := uuid.ParseUUID(c.Param("id"))
	if err != nil {
		return "", errInvalidOrderID
	}
	return id.String(), nil
}

var errInvalidOrderID = errors.New("invalid order ID format")

func validatePlaceOrderRequest(req *PlaceOrderRequest) error {
	if req.CustomerID == "" {
		return ErrCustomerIDRequired
	}
	if len(req.Items) == 0 {
		return ErrItemsRequired
	}
	if len(req.Items) > maxOrderItems {
		return ErrTooManyItems
	}
	for _, item := range req.Items {
		if item.SKU == "" || item.Quantity <= 0 {
			return ErrInvalidItem
		}
	}
	return nil
}

func toItems(reqs []ItemRequest) []order.Item {
	items := make([]order.Item, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, order.Item{
			SKU:       r.SKU,
			Quantity:  r.Quantity,
			UnitCents: r.UnitCents,
		})
	}
	return items
}

func toResultResponse(result any) OrderResultResponse {
	if r, ok := result.(orderapp.Result); ok {
		return OrderResultResponse{OrderID: r.OrderID, Version: r.Version}
	}
	return OrderResultResponse{}
}
