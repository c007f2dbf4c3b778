package notify

import (
	"context"
	"testing"
	"time"

	"example.com/distribution/services/stockout/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSubscriptionStore struct {
	mock.Mock
}

func (m *MockSubscriptionStore) ListActive(ctx context.Context) ([]models.PushSubscription, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.PushSubscription), args.Error(1)
}

func (m *MockSubscriptionStore) DeactivateEndpoint(ctx context.Context, endpoint string) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, sub *models.PushSubscription, event *models.OrderEvent) (bool, error) {
	args := m.Called(ctx, sub, event)
	return args.Bool(0), args.Error(1)
}

func testEvent() *models.OrderEvent {
	return &models.OrderEvent{
		Kind:       models.EventKindMovementSubmitted,
		SessionID:  uuid.New().String(),
		Message:    "Stock movement submitted",
		OccurredAt: time.Now(),
	}
}

func TestDispatchDeliversToActiveSubscriptions(t *testing.T) {
	store := new(MockSubscriptionStore)
	sender := new(MockSender)

	subs := []models.PushSubscription{
		{ID: uuid.New(), Endpoint: "https://push.example.com/a", IsActive: true},
		{ID: uuid.New(), Endpoint: "https://push.example.com/b", IsActive: true},
	}
	store.On("ListActive", mock.Anything).Return(subs, nil)
	sender.On("Send", mock.Anything, mock.AnythingOfType("*models.PushSubscription"), mock.AnythingOfType("*models.OrderEvent")).
		Return(false, nil).Twice()

	dispatcher := NewDispatcher(store, sender)
	err := dispatcher.Dispatch(context.Background(), testEvent())

	require.NoError(t, err)
	store.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestDispatchDeactivatesGoneEndpoints(t *testing.T) {
	store := new(MockSubscriptionStore)
	sender := new(MockSender)

	subs := []models.PushSubscription{
		{ID: uuid.New(), Endpoint: "https://push.example.com/gone", IsActive: true},
	}
	store.On("ListActive", mock.Anything).Return(subs, nil)
	store.On("DeactivateEndpoint", mock.Anything, "https://push.example.com/gone").Return(nil)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(true, errors.New("410 gone"))

	dispatcher := NewDispatcher(store, sender)
	err := dispatcher.Dispatch(context.Background(), testEvent())

	// Delivery failures are logged, not propagated.
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDispatchTransientFailureKeepsSubscription(t *testing.T) {
	store := new(MockSubscriptionStore)
	sender := new(MockSender)

	subs := []models.PushSubscription{
		{ID: uuid.New(), Endpoint: "https://push.example.com/flaky", IsActive: true},
	}
	store.On("ListActive", mock.Anything).Return(subs, nil)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("timeout"))

	dispatcher := NewDispatcher(store, sender)
	err := dispatcher.Dispatch(context.Background(), testEvent())

	require.NoError(t, err)
	store.AssertNotCalled(t, "DeactivateEndpoint", mock.Anything, mock.Anything)
}

func TestDispatchListFailurePropagates(t *testing.T) {
	store := new(MockSubscriptionStore)

	store.On("ListActive", mock.Anything).Return([]models.PushSubscription(nil), errors.New("db down"))

	dispatcher := NewDispatcher(store, nil)
	err := dispatcher.Dispatch(context.Background(), testEvent())

	require.Error(t, err)
}
