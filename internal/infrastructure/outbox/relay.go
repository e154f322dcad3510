package outbox

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/example/ec-storefront/internal/order"
)

// Source is an order store that records events in the same write as the
// state change they describe
type Source interface {
	FetchUnpublished(ctx context.Context, limit int) ([]order.Event, error)
	MarkPublished(ctx context.Context, eventID string) error
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, value []byte) error
}

// StaleLister reports orders stuck in pending
type StaleLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*order.Order, error)
}

// Relay polls the outbox and forwards events to the broker. An event is
// marked published only after the broker accepted it, so delivery is at
// least once.
type Relay struct {
	source    Source
	publisher Publisher
	stale     StaleLister

	batchSize int
	eventTick time.Duration
	staleTick time.Duration
	staleAge  time.Duration
	now       func() time.Time
}

func NewRelay(source Source, publisher Publisher, batchSize int, interval time.Duration) *Relay {
	return &Relay{
		source:    source,
		publisher: publisher,
		batchSize: batchSize,
		eventTick: interval,
		staleTick: 10 * time.Minute,
		staleAge:  time.Hour,
		now:       time.Now,
	}
}

// WithStaleCheck periodically logs orders pending for longer than maxAge
func (r *Relay) WithStaleCheck(lister StaleLister, maxAge time.Duration) *Relay {
	r.stale = lister
	r.staleAge = maxAge
	return r
}

func (r *Relay) Run(ctx context.Context) {
	eventTicker := time.NewTicker(r.eventTick)
	staleTicker := time.NewTicker(r.staleTick)
	defer eventTicker.Stop()
	defer staleTicker.Stop()

	log.Printf("[Outbox] Relay started (batch=%d, interval=%s)", r.batchSize, r.eventTick)
	for {
		select {
		case <-eventTicker.C:
			r.PublishPending(ctx)
		case <-staleTicker.C:
			if r.stale != nil {
				r.reportStale(ctx)
			}
		case <-ctx.Done():
			log.Println("[Outbox] Relay stopped")
			return
		}
	}
}

// PublishPending forwards one batch and returns how many events were
// published
func (r *Relay) PublishPending(ctx context.Context) int {
	events, err := r.source.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		log.Printf("[Outbox] Failed to fetch events: %v", err)
		return 0
	}

	published := 0
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			log.Printf("[Outbox] Failed to encode event %s: %v", e.ID, err)
			continue
		}
		if err := r.publisher.Publish(ctx, e.AggregateID, e.EventType, value); err != nil {
			log.Printf("[Outbox] Failed to publish event %s: %v", e.ID, err)
			// keep per-aggregate order: stop at the first broker failure
			break
		}
		if err := r.source.MarkPublished(ctx, e.ID); err != nil {
			log.Printf("[Outbox] Failed to mark event %s as published: %v", e.ID, err)
			continue
		}
		published++
	}
	return published
}

func (r *Relay) reportStale(ctx context.Context) {
	orders, err := r.stale.ListStalePending(ctx, r.now().Add(-r.staleAge))
	if err != nil {
		log.Printf("[Outbox] Failed to list stale pending orders: %v", err)
		return
	}
	for _, o := range orders {
		log.Printf("[Outbox] WARNING: order %s (provider order %s) pending since %s",
			o.ID, o.Reference(), o.CreatedAt.Format(time.RFC3339))
	}
}
