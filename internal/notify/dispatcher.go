package notify

import (
	"context"
	"encoding/json"

	"example.com/distribution/services/stockout/internal/models"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SubscriptionStore is the slice of the subscription repository the
// dispatcher needs.
type SubscriptionStore interface {
	ListActive(ctx context.Context) ([]models.PushSubscription, error)
	DeactivateEndpoint(ctx context.Context, endpoint string) error
}

// Sender delivers a single notification to a subscription endpoint. The
// returned permanent flag marks endpoints that should be deactivated
// (gone subscriptions) rather than retried.
type Sender interface {
	Send(ctx context.Context, sub *models.PushSubscription, event *models.OrderEvent) (permanent bool, err error)
}

// LogSender is the default delivery boundary: it records the notification
// without contacting an external push provider.
type LogSender struct{}

// Send logs the notification and reports success.
func (LogSender) Send(_ context.Context, sub *models.PushSubscription, event *models.OrderEvent) (bool, error) {
	log.Info().
		Str("endpoint", sub.Endpoint).
		Str("kind", event.Kind).
		Str("message", event.Message).
		Msg("push notification dispatched")
	return false, nil
}

// Dispatcher fans order events out to the registered push subscriptions.
type Dispatcher struct {
	subscriptions SubscriptionStore
	sender        Sender
}

// NewDispatcher creates a dispatcher. A nil sender falls back to LogSender.
func NewDispatcher(subscriptions SubscriptionStore, sender Sender) *Dispatcher {
	if sender == nil {
		sender = LogSender{}
	}
	return &Dispatcher{
		subscriptions: subscriptions,
		sender:        sender,
	}
}

// HandleMessage processes a single order event from the queue. It is wired
// as the message handler of the Service Bus receiver loop.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *azservicebus.ReceivedMessage) error {
	var event models.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		// A body that never parses will never parse on redelivery either,
		// so log and complete instead of abandoning.
		log.Error().Err(err).Str("message_id", msg.MessageID).Msg("discarding malformed order event")
		return nil
	}

	log.Info().
		Str("kind", event.Kind).
		Str("session_id", event.SessionID).
		Msg("processing order event")

	return d.Dispatch(ctx, &event)
}

// Dispatch delivers the event to every active subscription.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.OrderEvent) error {
	subs, err := d.subscriptions.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list active subscriptions")
	}

	if len(subs) == 0 {
		log.Debug().Str("kind", event.Kind).Msg("no active subscriptions for event")
		return nil
	}

	var delivered, failed int
	for i := range subs {
		sub := &subs[i]
		permanent, err := d.sender.Send(ctx, sub, event)
		if err != nil {
			failed++
			log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("push delivery failed")
			if permanent {
				if derr := d.subscriptions.DeactivateEndpoint(ctx, sub.Endpoint); derr != nil {
					log.Error().Err(derr).Str("endpoint", sub.Endpoint).Msg("failed to deactivate subscription")
				}
			}
			continue
		}
		delivered++
	}

	log.Info().
		Str("kind", event.Kind).
		Int("delivered", delivered).
		Int("failed", failed).
		Msg("order event dispatched")
	return nil
}
