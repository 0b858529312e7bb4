package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParticipantStatus is the participant lifecycle status; cancelled is
// terminal and releases the seat and pax back to the counters.
type ParticipantStatus string

const (
	ParticipantStatusActive    ParticipantStatus = "active"
	ParticipantStatusCancelled ParticipantStatus = "cancelled"
)

// Participant is one person, possibly representing several pax, inside
// one group. CampaignID is denormalized for query locality.
type Participant struct {
	ID         int64 `json:"id"`
	GroupID    int64 `json:"group_id"`
	CampaignID int64 `json:"campaign_id"`

	Name  string `json:"participant_name"`
	Email string `json:"participant_email"`
	Phone string `json:"participant_phone"`

	// IsLeader marks the group creator; exactly one per group.
	// JoinOrder is 1-based and strictly increasing within the group.
	IsLeader  bool `json:"is_leader"`
	JoinOrder int  `json:"join_order"`

	// PaxCount is the number of travellers this participant represents.
	PaxCount int `json:"pax_count"`

	// PaymentID caches the weak 1:1 reference to the payment row;
	// the payment's participant_id is authoritative.
	PaymentID     *int64          `json:"payment_id,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`

	Status       ParticipantStatus `json:"status"`
	CancelReason string            `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
