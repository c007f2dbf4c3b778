package handlers

import (
	"net/http"
	"strconv"

	"example.com/distribution/services/stockout/internal/api/middleware"
	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/services"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// OrderHandler handles order intake HTTP requests
type OrderHandler struct {
	orders *services.OrderService
	tracer tracing.Tracer
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *services.OrderService, tracer tracing.Tracer) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		tracer: tracer,
	}
}

// RegisterRoutes registers the order routes
func (h *OrderHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/orders", h.HandleCreateOrder)
	r.GET("/orders", h.HandleListOrders)
	r.GET("/orders/next-number", h.HandleNextOrderNumber)
	r.GET("/orders/:id", h.HandleGetOrder)
	r.POST("/orders/:id/cancel", h.HandleCancelOrder)
}

// OrderItemRequest is one demand line of a create-order request
type OrderItemRequest struct {
	Design    string `json:"design" validate:"required"`
	LotNumber string `json:"lot_number" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest is the create-order payload
type CreateOrderRequest struct {
	CustomerName string             `json:"customer_name" validate:"required"`
	Items        []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// HandleCreateOrder creates an order with its line items
func (h *OrderHandler) HandleCreateOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-order")
	defer h.tracer.EndTransaction(txn)

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	input := &services.CreateOrderInput{CustomerName: req.CustomerName}
	for _, item := range req.Items {
		input.Items = append(input.Items, services.OrderItemInput{
			Design:    item.Design,
			LotNumber: item.LotNumber,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), input, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to create order")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// HandleListOrders lists orders with optional filters
func (h *OrderHandler) HandleListOrders(c *gin.Context) {
	filters := repositories.OrderFilters{
		Status:       c.Query("status"),
		CustomerName: c.Query("customer"),
		Limit:        queryInt(c, "limit", 50),
		Offset:       queryInt(c, "offset", 0),
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to list orders")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// HandleNextOrderNumber returns the number the next order will be assigned
func (h *OrderHandler) HandleNextOrderNumber(c *gin.Context) {
	number, err := h.orders.NextOrderNumber(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get next order number")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get next order number"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"next_order_number": number})
}

// HandleGetOrder returns one order with its items
func (h *OrderHandler) HandleGetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// HandleCancelOrder cancels a pending order
func (h *OrderHandler) HandleCancelOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	if err := h.orders.CancelOrder(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
