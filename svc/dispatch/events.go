package dispatch

import (
	"context"

	"github.com/dmitrymomot/notifykit/pkg/eventbus"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	search "github.com/dmitrymomot/notifykit/pkg/opensearch"
)

// deliveryIndexer is satisfied by *opensearch.Indexer.
type deliveryIndexer interface {
	Index(ctx context.Context, doc search.DeliveryDocument) error
}

func (a *App) subscribe(indexer deliveryIndexer) {
	eventbus.On(a.bus, func(_ context.Context, e notifications.NotificationCreated) error {
		a.metrics.NotificationCreated(e.Category)
		for _, r := range e.Results {
			if r.Outcome == notifications.OutcomeSkipped {
				a.metrics.ChannelSkipped(string(r.Channel), r.Reason)
				continue
			}
			a.metrics.ChannelAttempt(string(r.Channel), r.Outcome == notifications.OutcomeSent)
		}
		return nil
	})
	eventbus.On(a.bus, func(_ context.Context, e notifications.DeliverySucceeded) error {
		a.metrics.Delivery(string(e.Channel), e.Provider, true, e.Took)
		return nil
	})
	eventbus.On(a.bus, func(_ context.Context, e notifications.DeliveryAttemptFailed) error {
		a.metrics.Delivery(string(e.Channel), e.Provider, false, e.Took)
		return nil
	})
	eventbus.On(a.bus, func(_ context.Context, e notifications.JobProcessed) error {
		a.metrics.JobProcessed(string(e.Channel), e.Success, e.Duration)
		return nil
	})

	if indexer == nil {
		return
	}
	eventbus.On(a.bus, func(ctx context.Context, e notifications.DeliverySucceeded) error {
		return indexer.Index(ctx, search.DeliveryDocument{
			DeliveryLogID:  e.DeliveryLogID.String(),
			TenantID:       e.TenantID.String(),
			NotificationID: e.NotificationID.String(),
			UserID:         e.UserID,
			Channel:        string(e.Channel),
			Status:         string(notifications.DeliverySent),
			Provider:       e.Provider,
			MessageID:      e.MessageID,
			Attempts:       e.Attempts,
			UpdatedAt:      e.At,
		})
	})
	eventbus.On(a.bus, func(ctx context.Context, e notifications.DeliveryAttemptFailed) error {
		return indexer.Index(ctx, search.DeliveryDocument{
			DeliveryLogID:  e.DeliveryLogID.String(),
			TenantID:       e.TenantID.String(),
			NotificationID: e.NotificationID.String(),
			UserID:         e.UserID,
			Channel:        string(e.Channel),
			Status:         string(notifications.DeliveryFailed),
			Provider:       e.Provider,
			Error:          e.Error,
			Attempts:       e.Attempts,
			UpdatedAt:      e.At,
		})
	})
}
