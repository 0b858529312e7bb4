// Package notify carries state changes out of the engine. Dispatch is
// best-effort and happens only after the owning transaction commits;
// receivers must tolerate at-least-once delivery.
package notify

import (
	"context"

	"groupbuy-be/internal/domain"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

// Dispatcher delivers notification events to whatever channel the
// deployment wires up (email, LINE, webhook). Failures are logged, not
// propagated; the committed state is the source of truth.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event)
}

// BookingExporter receives booking/invoice creation requests when a
// group succeeds. Persistence of the downstream records is the
// collaborator's responsibility.
type BookingExporter interface {
	Export(ctx context.Context, records []domain.BookingRecord) error
}

// LogDispatcher writes events to the structured log. It is the default
// dispatcher and the fallback when no delivery channel is configured.
type LogDispatcher struct {
	log *logger.Logger
}

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event domain.Event) {
	d.log.WithFields(map[string]interface{}{
		"event_id":       event.ID.String(),
		"kind":           string(event.Kind),
		"campaign_id":    event.CampaignID,
		"group_id":       event.GroupID,
		"participant_id": event.ParticipantID,
		"payment_id":     event.PaymentID,
	}).Info(event.Summary)
}

// DedupDispatcher drops duplicate events within a TTL window using a
// redis SetNX lock keyed by the event's transition, then delegates.
// Sweeps re-run idempotently, so the same transition can be observed
// more than once; receivers should only hear about it once.
type DedupDispatcher struct {
	next  Dispatcher
	redis *redis.Client
	log   *logger.Logger
}

func NewDedupDispatcher(next Dispatcher, redisClient *redis.Client, log *logger.Logger) *DedupDispatcher {
	return &DedupDispatcher{next: next, redis: redisClient, log: log}
}

func (d *DedupDispatcher) Dispatch(ctx context.Context, event domain.Event) {
	if d.redis != nil {
		key := d.redis.KeyBuilder.KeyNotifyDedup(event.DedupKey())
		acquired, err := d.redis.SetNX(ctx, key, event.ID.String(), redis.TTLNotifyDedup)
		if err != nil {
			// Deliver anyway; duplicates are preferable to silence.
			d.log.WithError(err).Warn("notify dedup check failed")
		} else if !acquired {
			d.log.WithFields(map[string]interface{}{
				"kind":     string(event.Kind),
				"group_id": event.GroupID,
			}).Debug("duplicate notification suppressed")
			return
		}
	}
	d.next.Dispatch(ctx, event)
}

// LogBookingExporter logs booking payloads; a real deployment swaps in
// an exporter that posts them to the booking system.
type LogBookingExporter struct {
	log *logger.Logger
}

func NewLogBookingExporter(log *logger.Logger) *LogBookingExporter {
	return &LogBookingExporter{log: log}
}

func (e *LogBookingExporter) Export(_ context.Context, records []domain.BookingRecord) error {
	for _, rec := range records {
		e.log.WithFields(map[string]interface{}{
			"reference":   rec.Reference,
			"is_master":   rec.IsMaster,
			"group_code":  rec.GroupCode,
			"campaign_id": rec.CampaignID,
			"pax_count":   rec.PaxCount,
			"amount":      rec.Amount.StringFixedBank(2),
		}).Info("booking record requested")
	}
	return nil
}
