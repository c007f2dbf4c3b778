package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/models"
	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/scan"
	"example.com/distribution/services/stockout/internal/storage"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MovementStore is the slice of the movement repository the service needs.
type MovementStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StockMovement, error)
	List(ctx context.Context, filters repositories.MovementFilters) ([]models.StockMovement, error)
	OrdersWithCompletedMovements(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// MovementIndex is the search backend for movement history.
type MovementIndex interface {
	IndexMovement(ctx context.Context, movement *models.StockMovement, order *models.Order) error
	SearchMovements(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error)
}

// EventPublisher sends order events to the notification queue.
type EventPublisher interface {
	SendMessage(ctx context.Context, body interface{}) error
}

// SubmitInput is the payload that turns a scan session into stock movements.
type SubmitInput struct {
	SessionID     uuid.UUID
	InvoiceNumber string
	MovementType  string
	ImageBase64   string
}

// StockService turns closed scan sessions into stock movements and keeps
// order fulfillment in step with them.
type StockService struct {
	db        *gorm.DB
	movements MovementStore
	sessions  *SessionService
	images    storage.ImageStore
	index     MovementIndex
	publisher EventPublisher
	cache     *cache.RedisCache
	tracer    tracing.Tracer
	metrics   *metrics.Metrics
}

// NewStockService creates a new stock service
func NewStockService(
	db *gorm.DB,
	movements MovementStore,
	sessions *SessionService,
	images storage.ImageStore,
	index MovementIndex,
	publisher EventPublisher,
	redisCache *cache.RedisCache,
	tracer tracing.Tracer,
	m *metrics.Metrics,
) *StockService {
	return &StockService{
		db:        db,
		movements: movements,
		sessions:  sessions,
		images:    images,
		index:     index,
		publisher: publisher,
		cache:     redisCache,
		tracer:    tracer,
		metrics:   m,
	}
}

// SubmitMovement is the terminal one-shot write of a scan session. It writes
// one stock movement per aggregated line, the durable copy of the flat scan
// log, fulfillment updates and, when every item is covered, order completion
// in a single transaction. Indexing and notification happen after commit and
// never fail the submission.
func (s *StockService) SubmitMovement(ctx context.Context, input *SubmitInput, userID uuid.UUID) ([]models.StockMovement, error) {
	txn := s.tracer.StartTransaction("submit-movement")
	defer s.tracer.EndTransaction(txn)
	if s.metrics != nil {
		defer s.metrics.Timed(metrics.TimerMovementSubmission, time.Now())
	}

	invoice := strings.TrimSpace(input.InvoiceNumber)
	if invoice == "" {
		return nil, errors.New("invoice number is required")
	}

	live, err := s.sessions.Get(input.SessionID)
	if err != nil {
		return nil, err
	}

	movementType, err := resolveMovementType(input.MovementType, live.Session.CustomMode())
	if err != nil {
		return nil, err
	}

	// Close before reading the log: Close waits out an in-flight scan, so
	// every accepted scan is in the snapshot and none can land after it. A
	// failed submission leaves the session closed; Reset reopens it.
	live.Session.Close()
	sessionID := live.Session.ID()

	events := live.Session.Events()
	if len(events) == 0 {
		return nil, errors.New("cannot submit a session with no scanned items")
	}

	var imageURL *string
	if input.ImageBase64 != "" {
		url, err := s.uploadProofImage(ctx, sessionID, input.ImageBase64)
		if err != nil {
			s.tracer.RecordError(txn, err)
			return nil, err
		}
		imageURL = &url
	}

	sessionJSON, err := json.Marshal(events)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session log")
	}

	aggregated := scan.Aggregate(events)
	movements := make([]models.StockMovement, 0, len(aggregated))
	for _, line := range aggregated {
		ids, err := json.Marshal(line.UniqueIdentifiers)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal unique identifiers")
		}
		movements = append(movements, models.StockMovement{
			ID:                uuid.New(),
			OrderID:           live.OrderID,
			SessionID:         sessionID,
			InvoiceNumber:     invoice,
			Design:            line.Design,
			LotNumber:         line.Lot,
			Quantity:          line.Count,
			UniqueIdentifiers: ids,
			ImageURL:          imageURL,
			MovementType:      movementType,
			Status:            models.MovementStatusCompleted,
			SessionJSON:       sessionJSON,
			CreatedBy:         userID,
		})
	}

	scanned := make([]models.ScannedItem, 0, len(events))
	for _, ev := range events {
		scanned = append(scanned, models.ScannedItem{
			ID:               uuid.New(),
			SessionID:        sessionID,
			UserID:           userID,
			OrderID:          live.OrderID,
			Design:           ev.Design,
			LotNumber:        ev.Lot,
			UniqueIdentifier: ev.UniqueIdentifier,
			IsProcessed:      true,
			ScannedAt:        time.UnixMilli(ev.ScannedAt),
		})
	}

	var orderCompleted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&movements).Error; err != nil {
			return errors.Wrap(err, "failed to create stock movements")
		}
		if err := tx.Create(&scanned).Error; err != nil {
			return errors.Wrap(err, "failed to persist scanned items")
		}
		if live.OrderID != nil {
			completed, err := applyFulfillment(tx, *live.OrderID)
			if err != nil {
				return err
			}
			orderCompleted = completed
		}
		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterMovementsSubmit)
	}
	log.Info().
		Str("session_id", sessionID.String()).
		Str("invoice", invoice).
		Str("movement_type", movementType).
		Int("lines", len(movements)).
		Int("items", len(events)).
		Msg("stock movement submitted")

	s.afterSubmit(ctx, live.OrderID, sessionID, movements, orderCompleted)
	s.sessions.Remove(input.SessionID)

	return movements, nil
}

// afterSubmit runs the best-effort follow-ups: cache invalidation, search
// indexing and queue notification.
func (s *StockService) afterSubmit(ctx context.Context, orderID *uuid.UUID, sessionID uuid.UUID, movements []models.StockMovement, orderCompleted bool) {
	var order *models.Order
	if orderID != nil {
		if err := s.cache.Delete(ctx, cache.GetOrderCacheKey(*orderID)); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate order cache")
		}
		if err := s.cache.Delete(ctx, cache.GetSnapshotCacheKey(*orderID)); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate snapshot cache")
		}

		var loaded models.Order
		if err := s.db.WithContext(ctx).First(&loaded, "id = ?", *orderID).Error; err != nil {
			log.Warn().Err(err).Str("order_id", orderID.String()).Msg("failed to load order for indexing")
		} else {
			order = &loaded
		}
	}

	if s.index != nil {
		for i := range movements {
			if err := s.index.IndexMovement(ctx, &movements[i], order); err != nil {
				log.Warn().Err(err).Str("movement_id", movements[i].ID.String()).Msg("failed to index stock movement")
				if s.metrics != nil {
					s.metrics.RecordError(metrics.ErrorRateSearchIndexing)
				}
			} else if s.metrics != nil {
				s.metrics.RecordSuccess(metrics.ErrorRateSearchIndexing)
			}
		}
	}

	s.publishEvent(ctx, order, sessionID, models.EventKindMovementSubmitted, "Stock movement submitted")
	if orderCompleted && order != nil {
		s.publishEvent(ctx, order, sessionID,
			models.EventKindOrderCompleted,
			fmt.Sprintf("Order #%d fully fulfilled", order.OrderNumber))
	}
}

func (s *StockService) publishEvent(ctx context.Context, order *models.Order, sessionID uuid.UUID, kind, message string) {
	if s.publisher == nil {
		return
	}
	event := models.OrderEvent{
		Kind:       kind,
		SessionID:  sessionID.String(),
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
	if order != nil {
		id := order.ID.String()
		number := order.OrderNumber
		event.OrderID = &id
		event.OrderNumber = &number
	}

	if err := s.publisher.SendMessage(ctx, event); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("failed to publish order event")
		if s.metrics != nil {
			s.metrics.RecordError(metrics.ErrorRateEventPublishing)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSuccess(metrics.ErrorRateEventPublishing)
	}
}

// uploadProofImage decodes the base64 payload and stores it under a
// per-session key.
func (s *StockService) uploadProofImage(ctx context.Context, sessionID uuid.UUID, raw string) (string, error) {
	data, contentType, err := storage.DecodeDataURL(raw)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError(metrics.ErrorRateImageUpload)
		}
		return "", err
	}

	key := fmt.Sprintf("movements/%s/%s.jpg", sessionID, uuid.New())
	url, err := s.images.UploadImage(ctx, key, data, contentType)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError(metrics.ErrorRateImageUpload)
		}
		return "", errors.Wrap(err, "failed to upload proof image")
	}
	if s.metrics != nil {
		s.metrics.RecordSuccess(metrics.ErrorRateImageUpload)
	}
	return url, nil
}

// GetMovement returns a stock movement by id.
func (s *StockService) GetMovement(ctx context.Context, id uuid.UUID) (*models.StockMovement, error) {
	return s.movements.GetByID(ctx, id)
}

// ListMovements returns stock movements matching the filters.
func (s *StockService) ListMovements(ctx context.Context, filters repositories.MovementFilters) ([]models.StockMovement, error) {
	return s.movements.List(ctx, filters)
}

// SearchMovements runs a free-text query over the movement history index.
func (s *StockService) SearchMovements(ctx context.Context, q string) ([]map[string]interface{}, error) {
	if s.index == nil {
		return nil, errors.New("movement search is unavailable")
	}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"design", "lot_number", "invoice_number", "customer_name", "unique_identifiers"},
			},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}
	return s.index.SearchMovements(ctx, query)
}

// ReconcileOrders re-derives fulfillment for pending orders that already
// have completed movements. It backstops submissions that crashed between
// commit and completion.
func (s *StockService) ReconcileOrders(ctx context.Context, limit int) error {
	ids, err := s.movements.OrdersWithCompletedMovements(ctx, limit)
	if err != nil {
		return err
	}

	for _, id := range ids {
		orderID := id
		var completed bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			completed, err = applyFulfillment(tx, orderID)
			return err
		})
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID.String()).Msg("fulfillment reconciliation failed")
			continue
		}
		if completed {
			log.Info().Str("order_id", orderID.String()).Msg("order completed by reconciliation")
			var order models.Order
			if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err == nil {
				s.publishEvent(ctx, &order, uuid.Nil,
					models.EventKindOrderCompleted,
					fmt.Sprintf("Order #%d fully fulfilled", order.OrderNumber))
			}
		}
	}
	return nil
}

// resolveMovementType validates the requested movement type, defaulting to
// OUT for order sessions and CUSTOM for custom ones.
func resolveMovementType(requested string, customMode bool) (string, error) {
	if requested == "" {
		if customMode {
			return models.MovementTypeCustom, nil
		}
		return models.MovementTypeOut, nil
	}

	switch requested {
	case models.MovementTypeOut, models.MovementTypeIn, models.MovementTypeAdjustment, models.MovementTypeCustom:
		return requested, nil
	default:
		return "", errors.Errorf("unknown movement type %q", requested)
	}
}

// applyFulfillment recomputes order-item fulfilled quantities from the
// completed movements recorded against the order, and completes the order
// when every item is covered. Runs inside the caller's transaction.
func applyFulfillment(tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	var order models.Order
	if err := tx.Preload("OrderItems").First(&order, "id = ?", orderID).Error; err != nil {
		return false, errors.Wrap(err, "failed to load order for fulfillment")
	}
	if order.Status != models.OrderStatusPending {
		return false, nil
	}

	type lineTotal struct {
		Design    string
		LotNumber string
		Total     int
	}
	var totals []lineTotal
	err := tx.Model(&models.StockMovement{}).
		Select("design, lot_number, SUM(quantity) AS total").
		Where("order_id = ? AND status = ?", orderID, models.MovementStatusCompleted).
		Group("design, lot_number").
		Scan(&totals).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to sum completed movements")
	}

	fulfilled := make(map[[2]string]int, len(totals))
	for _, t := range totals {
		fulfilled[[2]string{t.Design, t.LotNumber}] = t.Total
	}

	allFulfilled := len(order.OrderItems) > 0
	for i := range order.OrderItems {
		item := &order.OrderItems[i]
		count := fulfilled[[2]string{item.Design, item.LotNumber}]

		status := models.ItemStatusPending
		switch {
		case count >= item.Quantity:
			status = models.ItemStatusFulfilled
		case count > 0:
			status = models.ItemStatusPartiallyFulfilled
		}
		if status != models.ItemStatusFulfilled {
			allFulfilled = false
		}

		if count == item.FulfilledQuantity && status == item.Status {
			continue
		}
		err := tx.Model(&models.OrderItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"fulfilled_quantity": count,
				"status":             status,
			}).Error
		if err != nil {
			return false, errors.Wrap(err, "failed to update order item fulfillment")
		}
	}

	if !allFulfilled {
		return false, nil
	}

	now := time.Now().UTC()
	err = tx.Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":       models.OrderStatusCompleted,
			"completed_at": now,
		}).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to complete order")
	}
	return true, nil
}
