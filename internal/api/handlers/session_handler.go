package handlers

import (
	"net/http"

	"example.com/distribution/services/stockout/internal/api/middleware"
	"example.com/distribution/services/stockout/internal/scan"
	"example.com/distribution/services/stockout/internal/services"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionHandler exposes the scan session workflow over HTTP
type SessionHandler struct {
	sessions *services.SessionService
	stock    *services.StockService
	tracer   tracing.Tracer
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService, stock *services.StockService, tracer tracing.Tracer) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		stock:    stock,
		tracer:   tracer,
	}
}

// RegisterRoutes registers the scan session routes
func (h *SessionHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/scan-sessions", h.HandleStartSession)
	r.POST("/scan-sessions/:id/scan", h.HandleScan)
	r.GET("/scan-sessions/:id/items", h.HandleItems)
	r.POST("/scan-sessions/:id/clear", h.HandleClear)
	r.POST("/scan-sessions/:id/reset", h.HandleReset)
	r.POST("/scan-sessions/:id/submit", h.HandleSubmit)
}

// StartSessionRequest starts a session against an order, or in custom mode
// when no order id is given.
type StartSessionRequest struct {
	OrderID *string `json:"order_id"`
	Custom  bool    `json:"custom"`
}

// ScanRequest carries one raw decoded QR string
type ScanRequest struct {
	Data string `json:"data" validate:"required"`
}

// SubmitRequest turns the session into stock movements
type SubmitRequest struct {
	InvoiceNumber string `json:"invoice_number" validate:"required"`
	MovementType  string `json:"movement_type" validate:"omitempty,oneof=OUT IN ADJUSTMENT CUSTOM"`
	ImageBase64   string `json:"image_base64"`
}

// HandleStartSession creates and starts a scan session
func (h *SessionHandler) HandleStartSession(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-start-scan-session")
	defer h.tracer.EndTransaction(txn)

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var orderID *uuid.UUID
	if req.OrderID != nil {
		parsed, err := uuid.Parse(*req.OrderID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
			return
		}
		orderID = &parsed
	} else if !req.Custom {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either order_id or custom must be set"})
		return
	}

	live, err := h.sessions.StartSession(c.Request.Context(), orderID, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to start scan session")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"session_id":  live.Session.ID().String(),
		"custom_mode": live.Session.CustomMode(),
	}
	if snapshot := live.Session.Snapshot(); snapshot != nil {
		resp["order_number"] = snapshot.OrderNumber
		resp["lines"] = snapshot.Lines
	}
	c.JSON(http.StatusCreated, resp)
}

// HandleScan processes one scanned QR string
func (h *SessionHandler) HandleScan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.sessions.HandleScan(id, req.Data)
	if err != nil {
		h.respondSessionError(c, err)
		return
	}

	resp := gin.H{
		"dropped": outcome.Dropped,
		"valid":   outcome.Result.Valid,
	}
	if !outcome.Dropped {
		resp["message"] = outcome.Result.Message
		if !outcome.Result.Valid {
			resp["reason"] = outcome.Result.Reason
			// A fully-fulfilled line has max 0, so key off the reason
			// rather than the value.
			if outcome.Result.Reason == scan.ReasonQuantityExceeded {
				resp["max"] = outcome.Result.Max
				resp["current"] = outcome.Result.Current
			}
		}
		if outcome.Event != nil {
			resp["event"] = outcome.Event
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleItems returns the flat scan log and its aggregated rollup
func (h *SessionHandler) HandleItems(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	events, aggregated, err := h.sessions.Items(id)
	if err != nil {
		h.respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      events,
		"aggregated": aggregated,
		"count":      len(events),
	})
}

// HandleClear empties the session log
func (h *SessionHandler) HandleClear(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	if err := h.sessions.Clear(id); err != nil {
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "session_id": id.String()})
}

// HandleReset empties the log and issues a new session id
func (h *SessionHandler) HandleReset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	newID, err := h.sessions.Reset(id)
	if err != nil {
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "session_id": newID.String()})
}

// HandleSubmit writes the session out as stock movements
func (h *SessionHandler) HandleSubmit(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-submit-movement")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	var req SubmitRequest
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

	movements, err := h.stock.SubmitMovement(c.Request.Context(), &services.SubmitInput{
		SessionID:     id,
		InvoiceNumber: req.InvoiceNumber,
		MovementType:  req.MovementType,
		ImageBase64:   req.ImageBase64,
	}, user.ID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to submit movement")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"movements": movements, "count": len(movements)})
}

func (h *SessionHandler) respondSessionError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
