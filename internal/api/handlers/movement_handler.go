package handlers

import (
	"net/http"

	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/services"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MovementHandler serves the stock movement history
type MovementHandler struct {
	stock  *services.StockService
	tracer tracing.Tracer
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(stock *services.StockService, tracer tracing.Tracer) *MovementHandler {
	return &MovementHandler{
		stock:  stock,
		tracer: tracer,
	}
}

// RegisterRoutes registers the stock movement routes
func (h *MovementHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/stock-movements", h.HandleListMovements)
	r.GET("/stock-movements/search", h.HandleSearchMovements)
	r.GET("/stock-movements/:id", h.HandleGetMovement)
}

// HandleListMovements lists movements with optional filters
func (h *MovementHandler) HandleListMovements(c *gin.Context) {
	filters := repositories.MovementFilters{
		MovementType: c.Query("type"),
		Status:       c.Query("status"),
		Limit:        queryInt(c, "limit", 50),
		Offset:       queryInt(c, "offset", 0),
	}
	if raw := c.Query("order_id"); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
			return
		}
		filters.OrderID = &orderID
	}

	movements, err := h.stock.ListMovements(c.Request.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to list stock movements")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list stock movements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"movements": movements, "count": len(movements)})
}

// HandleGetMovement returns one movement
func (h *MovementHandler) HandleGetMovement(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid movement id"})
		return
	}

	movement, err := h.stock.GetMovement(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock movement not found"})
		return
	}

	c.JSON(http.StatusOK, movement)
}

// HandleSearchMovements runs a free-text search over the movement index
func (h *MovementHandler) HandleSearchMovements(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-movements")
	defer h.tracer.EndTransaction(txn)

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}

	docs, err := h.stock.SearchMovements(c.Request.Context(), q)
	if err != nil {
		log.Error().Err(err).Str("query", q).Msg("movement search failed")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": docs, "count": len(docs)})
}
