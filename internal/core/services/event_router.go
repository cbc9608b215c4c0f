package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/samber/lo"
)

// EventRouter computes the recipients of each domain event and hands the
// encoded envelope to the transport adapter of every recipient.
type EventRouter struct {
	registry ports.ClientRegistry
	logger   *slog.Logger

	mu         sync.RWMutex
	deliverers map[domain.Transport]ports.Deliverer
}

var _ ports.EventRouter = (*EventRouter)(nil)

// NewEventRouter creates a router over registry. Transports are attached
// with Attach before traffic starts.
func NewEventRouter(registry ports.ClientRegistry, logger *slog.Logger) *EventRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRouter{
		registry:   registry,
		logger:     logger.With("component", "event_router"),
		deliverers: make(map[domain.Transport]ports.Deliverer),
	}
}

// Attach sets the deliverer for connections on transport.
func (r *EventRouter) Attach(transport domain.Transport, deliverer ports.Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverers[transport] = deliverer
}

// Recipients returns the clients in snapshot that receive event, in
// snapshot order. It depends on nothing but its arguments.
func Recipients(event domain.Event, snapshot []domain.ConnectedClient) []domain.ConnectedClient {
	return lo.Filter(snapshot, func(client domain.ConnectedClient, _ int) bool {
		return CanReceive(client, event)
	})
}

// Route delivers event to every eligible connection. A failed delivery
// unregisters that connection and never stops the fan-out.
func (r *EventRouter) Route(ctx context.Context, event domain.Event) ports.RouteReport {
	report := ports.RouteReport{Kind: event.Kind()}

	envelope, err := domain.NewEnvelope(event)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode event", "kind", event.Kind(), "error", err)
		return report
	}

	recipients := Recipients(event, r.registry.Snapshot())
	report.Recipients = len(recipients)
	RoutedEvents.WithLabelValues(string(event.Kind())).Inc()

	if len(recipients) == 0 {
		if target, ok := event.(domain.ErrorEvent); ok {
			r.logger.DebugContext(ctx, "dropping error event for departed connection",
				"connection_id", target.TargetConnectionID,
			)
		}
		return report
	}

	for _, client := range recipients {
		if r.deliver(ctx, client, envelope) {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	r.logger.DebugContext(ctx, "event routed",
		"kind", report.Kind,
		"recipients", report.Recipients,
		"failed", report.Failed,
	)
	return report
}

func (r *EventRouter) deliver(ctx context.Context, client domain.ConnectedClient, envelope domain.EventEnvelope) bool {
	r.mu.RLock()
	deliverer, ok := r.deliverers[client.Transport]
	r.mu.RUnlock()

	if !ok {
		Deliveries.WithLabelValues(string(client.Transport), ResultFailure).Inc()
		r.logger.ErrorContext(ctx, "no deliverer attached for transport",
			"transport", client.Transport,
			"connection_id", client.ConnectionID,
		)
		return false
	}

	if err := deliverer.Deliver(ctx, client.ConnectionID, envelope); err != nil {
		Deliveries.WithLabelValues(string(client.Transport), ResultFailure).Inc()
		r.logger.WarnContext(ctx, "delivery failed, dropping connection",
			"transport", client.Transport,
			"connection_id", client.ConnectionID,
			"kind", envelope.Kind,
			"error", err,
		)
		r.registry.Unregister(client.ConnectionID)
		return false
	}

	Deliveries.WithLabelValues(string(client.Transport), ResultSuccess).Inc()
	return true
}
