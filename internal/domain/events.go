package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind enumerates the notification events the engine emits.
// Delivery is a collaborator concern; emission is best-effort and
// happens only after the local transaction commits.
type EventKind string

const (
	EventGroupCreated         EventKind = "group_created"
	EventParticipantJoined    EventKind = "participant_joined"
	EventGroupSuccess         EventKind = "group_success"
	EventGroupFailed          EventKind = "group_failed"
	EventGroupCancelled       EventKind = "group_cancelled"
	EventParticipantCancelled EventKind = "participant_cancelled"
	EventPaymentTimeout       EventKind = "payment_timeout"
	EventPaymentConfirmed     EventKind = "payment_confirmed"
	EventRefundIssued         EventKind = "refund_issued"
)

// Event is a notification event carrying the affected ids and a short
// human-readable summary.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Kind          EventKind `json:"kind"`
	CampaignID    int64     `json:"campaign_id"`
	GroupID       int64     `json:"group_id,omitempty"`
	ParticipantID int64     `json:"participant_id,omitempty"`
	PaymentID     int64     `json:"payment_id,omitempty"`
	Summary       string    `json:"summary"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(kind EventKind, summary string, occurredAt time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		Summary:    summary,
		OccurredAt: occurredAt,
	}
}

// DedupKey identifies the state transition behind the event, so the
// dispatcher can drop at-least-once duplicates.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s:%d:%d:%d:%d", e.Kind, e.CampaignID, e.GroupID, e.ParticipantID, e.PaymentID)
}

// BookingRecord is the payload of a downstream booking/invoice creation
// request emitted on group success; persistence belongs to the
// collaborator.
type BookingRecord struct {
	Reference     string          `json:"reference"`
	IsMaster      bool            `json:"is_master"`
	CampaignID    int64           `json:"campaign_id"`
	CampaignName  string          `json:"campaign_name"`
	ProductType   string          `json:"product_type"`
	GroupID       int64           `json:"group_id"`
	GroupCode     string          `json:"group_code"`
	ParticipantID int64           `json:"participant_id,omitempty"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	PaxCount      int             `json:"pax_count"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}
