package services

import (
	"context"
	"encoding/json"
	"time"

	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/models"
	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/scan"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Cache TTLs for order lookups and demand snapshots.
const (
	orderCacheTTL    = 10 * time.Minute
	snapshotCacheTTL = 5 * time.Minute
)

// OrderStore is the slice of the order repository the service needs.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filters repositories.OrderFilters) ([]models.Order, error)
	NextOrderNumber(ctx context.Context) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// OrderItemInput is one demand line of a new order.
type OrderItemInput struct {
	Design    string `json:"design"`
	LotNumber string `json:"lot_number"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderInput is the payload for creating an order.
type CreateOrderInput struct {
	CustomerName string           `json:"customer_name"`
	Items        []OrderItemInput `json:"items"`
}

// OrderService handles order intake and demand snapshots
type OrderService struct {
	orders  OrderStore
	cache   *cache.RedisCache
	tracer  tracing.Tracer
	metrics *metrics.Metrics
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderStore, redisCache *cache.RedisCache, tracer tracing.Tracer, m *metrics.Metrics) *OrderService {
	return &OrderService{
		orders:  orders,
		cache:   redisCache,
		tracer:  tracer,
		metrics: m,
	}
}

// CreateOrder assigns the next order number and inserts the order with its
// line items. The repository runs the insert in one transaction, so a
// failing item insert rolls the order row back with it.
func (s *OrderService) CreateOrder(ctx context.Context, input *CreateOrderInput, createdBy uuid.UUID) (*models.Order, error) {
	txn := s.tracer.StartTransaction("create-order")
	defer s.tracer.EndTransaction(txn)

	if len(input.Items) == 0 {
		return nil, errors.New("order must have at least one item")
	}

	orderNumber, err := s.orders.NextOrderNumber(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to allocate order number")
	}

	rawJSON, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal order payload")
	}

	order := &models.Order{
		ID:           uuid.New(),
		OrderNumber:  orderNumber,
		CustomerName: input.CustomerName,
		Status:       models.OrderStatusPending,
		OrderJSON:    rawJSON,
		CreatedBy:    createdBy,
	}
	for _, item := range input.Items {
		order.OrderItems = append(order.OrderItems, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			Design:    item.Design,
			LotNumber: item.LotNumber,
			Quantity:  item.Quantity,
			Status:    models.ItemStatusPending,
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterOrdersCreated)
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Int("order_number", order.OrderNumber).
		Str("customer", order.CustomerName).
		Int("items", len(order.OrderItems)).
		Msg("order created")

	return order, nil
}

// GetOrder returns an order with its items, via the cache when possible.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	cacheKey := cache.GetOrderCacheKey(id)

	var cached models.Order
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, order, orderCacheTTL); err != nil {
		log.Warn().Err(err).Str("order_id", id.String()).Msg("failed to cache order")
	}
	return order, nil
}

// ListOrders returns orders matching the filters, newest first.
func (s *OrderService) ListOrders(ctx context.Context, filters repositories.OrderFilters) ([]models.Order, error) {
	return s.orders.List(ctx, filters)
}

// NextOrderNumber returns the order number the next created order will get.
func (s *OrderService) NextOrderNumber(ctx context.Context) (int, error) {
	return s.orders.NextOrderNumber(ctx)
}

// CancelOrder cancels a pending order. Completed and already-cancelled
// orders are left alone.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) error {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if order.Status != models.OrderStatusPending {
		return errors.Errorf("order %d is %s and cannot be cancelled", order.OrderNumber, order.Status)
	}

	if err := s.orders.UpdateStatus(ctx, id, models.OrderStatusCancelled); err != nil {
		return err
	}

	s.invalidate(ctx, id)

	log.Info().
		Str("order_id", id.String()).
		Int("order_number", order.OrderNumber).
		Msg("order cancelled")
	return nil
}

// DemandSnapshotForOrder builds the frozen demand snapshot a scan session
// validates against. Cancelled and completed orders cannot be scanned.
func (s *OrderService) DemandSnapshotForOrder(ctx context.Context, id uuid.UUID) (*scan.DemandSnapshot, error) {
	cacheKey := cache.GetSnapshotCacheKey(id)

	var cached scan.DemandSnapshot
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, errors.Errorf("order %d is %s and cannot be scanned", order.OrderNumber, order.Status)
	}

	snapshot := &scan.DemandSnapshot{OrderNumber: order.OrderNumber}
	for _, item := range order.OrderItems {
		snapshot.Lines = append(snapshot.Lines, scan.DemandLine{
			Design:            item.Design,
			Lot:               item.LotNumber,
			OrderedQuantity:   item.Quantity,
			FulfilledQuantity: item.FulfilledQuantity,
		})
	}

	if err := s.cache.Set(ctx, cacheKey, snapshot, snapshotCacheTTL); err != nil {
		log.Warn().Err(err).Str("order_id", id.String()).Msg("failed to cache demand snapshot")
	}
	return snapshot, nil
}

// invalidate drops the cached order and snapshot after a write.
func (s *OrderService) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.GetOrderCacheKey(id)); err != nil {
		log.Warn().Err(err).Str("order_id", id.String()).Msg("failed to invalidate order cache")
	}
	if err := s.cache.Delete(ctx, cache.GetSnapshotCacheKey(id)); err != nil {
		log.Warn().Err(err).Str("order_id", id.String()).Msg("failed to invalidate snapshot cache")
	}
}
