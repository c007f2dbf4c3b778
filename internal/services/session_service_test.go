package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/metrics"
	"example.com/distribution/services/stockout/internal/scan"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSnapshotProvider struct {
	mock.Mock
}

func (m *MockSnapshotProvider) DemandSnapshotForOrder(ctx context.Context, id uuid.UUID) (*scan.DemandSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scan.DemandSnapshot), args.Error(1)
}

func newTestSessionService(snapshots SnapshotProvider) *SessionService {
	return NewSessionService(snapshots, config.SessionConfig{
		IdleTTL:       30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}, nil)
}

func qr(design, lot, id string) string {
	raw, _ := json.Marshal(map[string]string{
		"Design":            design,
		"Lot":               lot,
		"Unique Identifier": id,
	})
	return string(raw)
}

func TestStartSessionCustomMode(t *testing.T) {
	service := newTestSessionService(nil)

	live, err := service.StartSession(context.Background(), nil, uuid.New())

	require.NoError(t, err)
	require.True(t, live.Session.CustomMode())
	require.Equal(t, 1, service.Count())
}

func TestStartSessionLoadsSnapshot(t *testing.T) {
	snapshots := new(MockSnapshotProvider)
	orderID := uuid.New()
	snapshots.On("DemandSnapshotForOrder", mock.Anything, orderID).Return(&scan.DemandSnapshot{
		OrderNumber: 9,
		Lines:       []scan.DemandLine{{Design: "Damask Rose", Lot: "L-2201", OrderedQuantity: 2}},
	}, nil)

	service := newTestSessionService(snapshots)
	live, err := service.StartSession(context.Background(), &orderID, uuid.New())

	require.NoError(t, err)
	require.False(t, live.Session.CustomMode())
	require.Equal(t, 9, live.Session.Snapshot().OrderNumber)
	snapshots.AssertExpectations(t)
}

func TestHandleScanThroughRegistry(t *testing.T) {
	service := newTestSessionService(nil)
	live, err := service.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	outcome, err := service.HandleScan(live.Session.ID(), qr("Damask Rose", "L-2201", "U-001"))
	require.NoError(t, err)
	require.True(t, outcome.Result.Valid)

	events, aggregated, err := service.Items(live.Session.ID())
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, aggregated, 1)
	require.Equal(t, 1, aggregated[0].Count)
}

func TestHandleScanRecordsValidationTimer(t *testing.T) {
	m := metrics.NewMetrics()
	service := NewSessionService(nil, config.SessionConfig{
		IdleTTL:       30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}, m)
	live, err := service.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	_, err = service.HandleScan(live.Session.ID(), qr("Damask Rose", "L-2201", "U-001"))
	require.NoError(t, err)

	timers := m.GetTimers()
	require.Contains(t, timers, metrics.TimerScanValidation)
	require.Equal(t, int64(1), timers[metrics.TimerScanValidation].Count)
}

func TestHandleScanUnknownSession(t *testing.T) {
	service := newTestSessionService(nil)

	_, err := service.HandleScan(uuid.New(), qr("Damask Rose", "L-2201", "U-001"))

	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResetRekeysRegistry(t *testing.T) {
	service := newTestSessionService(nil)
	live, err := service.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)
	oldID := live.Session.ID()

	newID, err := service.Reset(oldID)
	require.NoError(t, err)
	require.NotEqual(t, oldID, newID)

	_, err = service.Get(oldID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = service.Get(newID)
	require.NoError(t, err)
}

func TestRemoveClosesSession(t *testing.T) {
	service := newTestSessionService(nil)
	live, err := service.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	service.Remove(live.Session.ID())

	require.Equal(t, 0, service.Count())
	require.Equal(t, scan.StateClosed, live.Session.State())
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	service := newTestSessionService(nil)

	now := time.Now()
	service.now = func() time.Time { return now }

	idle, err := service.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	// Second session stays active.
	service.now = func() time.Time { return now.Add(25 * time.Minute) }
	active, err := service.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	evicted := service.Sweep(now.Add(31 * time.Minute))

	require.Equal(t, 1, evicted)
	_, err = service.Get(idle.Session.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = service.Get(active.Session.ID())
	require.NoError(t, err)
}
