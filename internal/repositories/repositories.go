package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/distribution/services/stockout/internal/models"
)

// UserRepository provides access to staff accounts
type UserRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB, readOnlyDB *gorm.DB) *UserRepository {
	return &UserRepository{db: db, readOnlyDB: readOnlyDB}
}

// GetByToken resolves a user from an API token
func (r *UserRepository) GetByToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).Where("api_token = ?", token).First(&user).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user by token")
	}
	return &user, nil
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user by ID")
	}
	return &user, nil
}

// OrderRepository provides access to orders and their line items
type OrderRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, readOnlyDB *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db, readOnlyDB: readOnlyDB}
}

// Create inserts an order with its items in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to create order")
	}
	return nil
}

// GetByID gets an order with its items
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Preload("OrderItems").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get order by ID")
	}
	return &order, nil
}

// OrderFilters narrows List results
type OrderFilters struct {
	Status       string
	CustomerName string
	Limit        int
	Offset       int
}

// List returns orders newest first, with optional filters
func (r *OrderRepository) List(ctx context.Context, filters OrderFilters) ([]models.Order, error) {
	query := r.readOnlyDB.WithContext(ctx).
		Preload("OrderItems").
		Order("created_at DESC")

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.CustomerName != "" {
		query = query.Where("customer_name ILIKE ?", "%"+filters.CustomerName+"%")
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	return orders, nil
}

// NextOrderNumber returns the next sequential order number
func (r *OrderRepository) NextOrderNumber(ctx context.Context) (int, error) {
	var current int
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to get next order number")
	}
	return current + 1, nil
}

// UpdateStatus sets an order's status
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return errors.Wrap(err, "failed to update order status")
	}
	return nil
}

// StockMovementRepository provides access to stock movements
type StockMovementRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewStockMovementRepository creates a new stock movement repository
func NewStockMovementRepository(db *gorm.DB, readOnlyDB *gorm.DB) *StockMovementRepository {
	return &StockMovementRepository{db: db, readOnlyDB: readOnlyDB}
}

// GetByID gets a stock movement by ID
func (r *StockMovementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.StockMovement, error) {
	var movement models.StockMovement
	err := r.readOnlyDB.WithContext(ctx).First(&movement, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stock movement by ID")
	}
	return &movement, nil
}

// MovementFilters narrows List results
type MovementFilters struct {
	MovementType string
	Status       string
	OrderID      *uuid.UUID
	Limit        int
	Offset       int
}

// List returns stock movements newest first, with optional filters
func (r *StockMovementRepository) List(ctx context.Context, filters MovementFilters) ([]models.StockMovement, error) {
	query := r.readOnlyDB.WithContext(ctx).Order("created_at DESC")

	if filters.MovementType != "" {
		query = query.Where("movement_type = ?", filters.MovementType)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.OrderID != nil {
		query = query.Where("order_id = ?", *filters.OrderID)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var movements []models.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list stock movements")
	}
	return movements, nil
}

// OrdersWithCompletedMovements returns the distinct pending orders that have
// at least one completed movement, for the reconciliation fallback job
func (r *StockMovementRepository) OrdersWithCompletedMovements(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.StockMovement{}).
		Distinct("stock_movements.order_id").
		Joins("JOIN orders ON orders.id = stock_movements.order_id").
		Where("stock_movements.status = ? AND orders.status = ?",
			models.MovementStatusCompleted, models.OrderStatusPending).
		Limit(limit).
		Pluck("stock_movements.order_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get orders with completed movements")
	}
	return ids, nil
}

// PushSubscriptionRepository provides access to push subscriptions
type PushSubscriptionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPushSubscriptionRepository creates a new push subscription repository
func NewPushSubscriptionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db, readOnlyDB: readOnlyDB}
}

// ListActive returns every active subscription
func (r *PushSubscriptionRepository) ListActive(ctx context.Context) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := r.readOnlyDB.WithContext(ctx).Where("is_active = ?", true).Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active push subscriptions")
	}
	return subs, nil
}

// DeactivateEndpoint soft-disables a dead endpoint
func (r *PushSubscriptionRepository) DeactivateEndpoint(ctx context.Context, endpoint string) error {
	err := r.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("endpoint = ?", endpoint).
		Update("is_active", false).Error
	if err != nil {
		return errors.Wrap(err, "failed to deactivate push subscription")
	}
	return nil
}
