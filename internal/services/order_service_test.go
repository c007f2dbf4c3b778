package services

import (
	"context"
	"testing"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/models"
	"example.com/distribution/services/stockout/internal/repositories"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock order store for testing
type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderStore) List(ctx context.Context, filters repositories.OrderFilters) ([]models.Order, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderStore) NextOrderNumber(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func newTestOrderService(store OrderStore) *OrderService {
	disabledCache, _ := cache.NewRedisCache(config.RedisConfig{Enabled: false})
	tracer, _ := tracing.NewTracer(config.TracingConfig{})
	return NewOrderService(store, disabledCache, tracer, nil)
}

func TestCreateOrderAssignsNextNumber(t *testing.T) {
	store := new(MockOrderStore)
	store.On("NextOrderNumber", mock.Anything).Return(42, nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*models.Order")).Return(nil)

	service := newTestOrderService(store)
	input := &CreateOrderInput{
		CustomerName: "Mutiara Interiors",
		Items: []OrderItemInput{
			{Design: "Damask Rose", LotNumber: "L-2201", Quantity: 5},
			{Design: "Geo Lines", LotNumber: "L-2202", Quantity: 2},
		},
	}

	createdBy := uuid.New()
	order, err := service.CreateOrder(context.Background(), input, createdBy)

	require.NoError(t, err)
	require.Equal(t, 42, order.OrderNumber)
	require.Equal(t, models.OrderStatusPending, order.Status)
	require.Equal(t, createdBy, order.CreatedBy)
	require.Len(t, order.OrderItems, 2)
	require.Equal(t, "Damask Rose", order.OrderItems[0].Design)
	require.Equal(t, models.ItemStatusPending, order.OrderItems[0].Status)
	require.NotEmpty(t, order.OrderJSON)
	store.AssertExpectations(t)
}

func TestCreateOrderRequiresItems(t *testing.T) {
	store := new(MockOrderStore)
	service := newTestOrderService(store)

	_, err := service.CreateOrder(context.Background(), &CreateOrderInput{CustomerName: "Empty"}, uuid.New())

	require.Error(t, err)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCancelOrderRejectsNonPending(t *testing.T) {
	store := new(MockOrderStore)
	orderID := uuid.New()
	store.On("GetByID", mock.Anything, orderID).Return(&models.Order{
		ID:          orderID,
		OrderNumber: 7,
		Status:      models.OrderStatusCompleted,
	}, nil)

	service := newTestOrderService(store)
	err := service.CancelOrder(context.Background(), orderID)

	require.Error(t, err)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelOrderPending(t *testing.T) {
	store := new(MockOrderStore)
	orderID := uuid.New()
	store.On("GetByID", mock.Anything, orderID).Return(&models.Order{
		ID:          orderID,
		OrderNumber: 7,
		Status:      models.OrderStatusPending,
	}, nil)
	store.On("UpdateStatus", mock.Anything, orderID, models.OrderStatusCancelled).Return(nil)

	service := newTestOrderService(store)
	err := service.CancelOrder(context.Background(), orderID)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDemandSnapshotForOrder(t *testing.T) {
	store := new(MockOrderStore)
	orderID := uuid.New()
	store.On("GetByID", mock.Anything, orderID).Return(&models.Order{
		ID:          orderID,
		OrderNumber: 12,
		Status:      models.OrderStatusPending,
		OrderItems: []models.OrderItem{
			{Design: "Damask Rose", LotNumber: "L-2201", Quantity: 5, FulfilledQuantity: 2},
			{Design: "Geo Lines", LotNumber: "L-2202", Quantity: 3},
		},
	}, nil)

	service := newTestOrderService(store)
	snapshot, err := service.DemandSnapshotForOrder(context.Background(), orderID)

	require.NoError(t, err)
	require.Equal(t, 12, snapshot.OrderNumber)
	require.Len(t, snapshot.Lines, 2)
	require.Equal(t, "Damask Rose", snapshot.Lines[0].Design)
	require.Equal(t, "L-2201", snapshot.Lines[0].Lot)
	require.Equal(t, 5, snapshot.Lines[0].OrderedQuantity)
	require.Equal(t, 2, snapshot.Lines[0].FulfilledQuantity)
}

func TestDemandSnapshotRejectsCancelledOrder(t *testing.T) {
	store := new(MockOrderStore)
	orderID := uuid.New()
	store.On("GetByID", mock.Anything, orderID).Return(&models.Order{
		ID:          orderID,
		OrderNumber: 12,
		Status:      models.OrderStatusCancelled,
	}, nil)

	service := newTestOrderService(store)
	_, err := service.DemandSnapshotForOrder(context.Background(), orderID)

	require.Error(t, err)
}
