package services

import (
	"context"
	"testing"

	"example.com/distribution/services/stockout/config"
	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/models"
	"example.com/distribution/services/stockout/internal/tracing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStockService(sessions *SessionService) *StockService {
	disabledCache, _ := cache.NewRedisCache(config.RedisConfig{Enabled: false})
	tracer, _ := tracing.NewTracer(config.TracingConfig{})
	return NewStockService(nil, nil, sessions, nil, nil, nil, disabledCache, tracer, nil)
}

func TestResolveMovementType(t *testing.T) {
	tests := []struct {
		name       string
		requested  string
		customMode bool
		want       string
		wantErr    bool
	}{
		{name: "default for order session", want: models.MovementTypeOut},
		{name: "default for custom session", customMode: true, want: models.MovementTypeCustom},
		{name: "explicit IN", requested: models.MovementTypeIn, want: models.MovementTypeIn},
		{name: "explicit ADJUSTMENT on custom session", requested: models.MovementTypeAdjustment, customMode: true, want: models.MovementTypeAdjustment},
		{name: "unknown type", requested: "SIDEWAYS", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveMovementType(tt.requested, tt.customMode)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSubmitMovementRequiresInvoice(t *testing.T) {
	sessions := newTestSessionService(nil)
	service := newTestStockService(sessions)

	_, err := service.SubmitMovement(context.Background(), &SubmitInput{
		SessionID:     uuid.New(),
		InvoiceNumber: "   ",
	}, uuid.New())

	require.Error(t, err)
	require.Contains(t, err.Error(), "invoice number")
}

func TestSubmitMovementUnknownSession(t *testing.T) {
	sessions := newTestSessionService(nil)
	service := newTestStockService(sessions)

	_, err := service.SubmitMovement(context.Background(), &SubmitInput{
		SessionID:     uuid.New(),
		InvoiceNumber: "INV-100",
	}, uuid.New())

	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitMovementRejectsEmptyLog(t *testing.T) {
	sessions := newTestSessionService(nil)
	live, err := sessions.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	service := newTestStockService(sessions)
	_, err = service.SubmitMovement(context.Background(), &SubmitInput{
		SessionID:     live.Session.ID(),
		InvoiceNumber: "INV-100",
	}, uuid.New())

	require.Error(t, err)
	require.Contains(t, err.Error(), "no scanned items")
}

func TestSubmitMovementRejectsUnknownType(t *testing.T) {
	sessions := newTestSessionService(nil)
	live, err := sessions.StartSession(context.Background(), nil, uuid.New())
	require.NoError(t, err)

	outcome, err := sessions.HandleScan(live.Session.ID(), qr("Damask Rose", "L-2201", "U-001"))
	require.NoError(t, err)
	require.True(t, outcome.Result.Valid)

	service := newTestStockService(sessions)
	_, err = service.SubmitMovement(context.Background(), &SubmitInput{
		SessionID:     live.Session.ID(),
		InvoiceNumber: "INV-100",
		MovementType:  "SIDEWAYS",
	}, uuid.New())

	require.Error(t, err)
	require.Contains(t, err.Error(), "movement type")
}
