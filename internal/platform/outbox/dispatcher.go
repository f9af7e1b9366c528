package outbox

import (
	"context"
	"log/slog"
	"time"

	portsrepo "github.com/primebank/agent_banking_core/internal/core/ports/repositories"
)

// Dispatcher drains the outbox: it polls pending events, publishes each and
// records the outcome. Events are staged in the same database transaction as
// the state change they describe, so a crash between commit and publish is
// recovered on the next poll. Delivery is at-least-once.
type Dispatcher struct {
	repo      portsrepo.OutboxRepositoryFacade
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher polling at the given interval.
func NewDispatcher(repo portsrepo.OutboxRepositoryFacade, publisher Publisher, interval time.Duration, logger *slog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: 50,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	events, err := d.repo.ListPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to list pending outbox events", slog.String("error", err.Error()))
		return
	}

	for _, event := range events {
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Warn("Failed to publish outbox event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
				slog.String("error", err.Error()),
			)
			if merr := d.repo.MarkFailed(ctx, event.EventID, event.Attempts+1, err.Error()); merr != nil {
				d.logger.Error("Failed to record publish failure", slog.String("event_id", event.EventID), slog.String("error", merr.Error()))
			}
			continue
		}
		if err := d.repo.MarkPublished(ctx, event.EventID, time.Now().UTC()); err != nil {
			d.logger.Error("Failed to mark outbox event published", slog.String("event_id", event.EventID), slog.String("error", err.Error()))
		}
	}
}
